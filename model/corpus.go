package model

import (
	"math"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/pkg/sampling"
)

// CorpusBuilder 把用户的加权交互合成为训练语料。
//
// 每个用户取权重最高的 MaxItems 个物品，按 max(w,0) 的比例无放回抽取
// L = min(SessionLen, m, 非零概率数) 个物品组成一个会话，共 Sessions 个会话；
// 每个物品的 token 重复 clamp(int(1 + 2·log1p(w)), 1, MaxRepeat) 次以体现强度。
// 全部物品另外各自成为一个单 token 句子，保证都进入词表。
type CorpusBuilder struct {
	MaxItems   int
	Sessions   int
	SessionLen int
	MaxRepeat  int
	Seed       int64
}

// DefaultCorpusBuilder 返回 40 / 10 / 20 / 8。
func DefaultCorpusBuilder(seed int64) *CorpusBuilder {
	return &CorpusBuilder{MaxItems: 40, Sessions: 10, SessionLen: 20, MaxRepeat: 8, Seed: seed}
}

// RepeatCount 返回 token 的重复次数。
func (b *CorpusBuilder) RepeatCount(weight float64) int {
	r := int(1 + 2*math.Log1p(math.Max(weight, 0)))
	return min(max(r, 1), b.MaxRepeat)
}

// Build 构建语料；用户按 ID 升序处理，每个用户使用 (Seed, userID) 派生的随机源。
func (b *CorpusBuilder) Build(train map[int64][]core.Interaction, universe []int64) core.Corpus {
	var corpus core.Corpus
	for _, user := range dataset.SortedUsers(train) {
		corpus = append(corpus, b.userSessions(user, train[user])...)
	}
	for _, id := range universe {
		corpus = append(corpus, []string{core.ItemToken(id)})
	}
	return corpus
}

func (b *CorpusBuilder) userSessions(user int64, rows []core.Interaction) [][]string {
	sorted := make([]core.Interaction, len(rows))
	copy(sorted, rows)
	dataset.SortByWeight(sorted)
	m := min(len(sorted), b.MaxItems)
	if m < 2 {
		return nil
	}
	sorted = sorted[:m]

	probs := make([]float64, m)
	sum := 0.0
	for i, it := range sorted {
		probs[i] = math.Max(it.Weight, 0)
		sum += probs[i]
	}
	if sum <= core.Epsilon {
		for i := range probs {
			probs[i] = 1
		}
	}
	nonzero := 0
	for _, p := range probs {
		if p > 0 {
			nonzero++
		}
	}
	if nonzero < 2 {
		return nil
	}
	l := min(b.SessionLen, m, nonzero)

	rng := sampling.New(b.Seed, user)
	out := make([][]string, 0, b.Sessions)
	for s := 0; s < b.Sessions; s++ {
		var sent []string
		for _, idx := range sampling.WeightedWithoutReplacement(rng, probs, l) {
			it := sorted[idx]
			tok := core.ItemToken(it.ItemID)
			for r := b.RepeatCount(it.Weight); r > 0; r-- {
				sent = append(sent, tok)
			}
		}
		if len(sent) >= 2 {
			out = append(out, sent)
		}
	}
	return out
}
