package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// LogRecord 是一条行为日志：停留时长（秒）与滚动深度（0-100）。
type LogRecord struct {
	UserID      int64
	ItemID      int64
	StayTime    float64
	ScrollDepth float64
}

// ScoreRecord 是一条显式评分。
type ScoreRecord struct {
	UserID int64
	ItemID int64
	Score  float64
}

// ImplicitScore = 0.7·ln(1+stay) + 0.3·scroll/100；负停留时长按 0 处理。
func ImplicitScore(stay, scroll float64) float64 {
	return 0.7*math.Log1p(math.Max(stay, 0)) + 0.3*scroll/100
}

// Implicit 返回日志的隐式分。
func (r LogRecord) Implicit() float64 {
	return ImplicitScore(r.StayTime, r.ScrollDepth)
}

var (
	userIDExtractor   = FieldExtractor{Paths: []string{"user_no", "userNo", "user_id"}}
	itemIDExtractor   = FieldExtractor{Paths: []string{"item_no", "product_id", "productId", "pcode", "id"}}
	categoryExtractor = FieldExtractor{Paths: []string{"category_id", "categoryId"}}
	scoreExtractor    = FieldExtractor{Paths: []string{"final_score", "score"}}
)

// ParseID 解析非负整数 ID（兼容 "12"、12.0、"12.0"）；缺失或无法解析时返回 -1。
func ParseID(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return -1
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v < 0 {
			return -1
		}
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && !math.IsInf(f, 0) {
		return int64(f)
	}
	return -1
}

// ParseFloat 解析数值，失败返回 0。
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func field(raw []byte, path string) string {
	return gjson.GetBytes(raw, path).String()
}

// ProductFromJSON 把一条原始商品 JSON 规整为 Product；ID 无法解析时 ok 为 false。
func ProductFromJSON(raw []byte) (core.Product, bool) {
	p := core.Product{
		ID:           ParseID(itemIDExtractor.Extract(raw)),
		FineCategory: ParseID(categoryExtractor.Extract(raw)),
		TopCategory:  core.UnknownCategory,
		Name:         Name(raw),
		Brand:        Brand(raw),
		Price:        float64(Price(raw)),
	}
	if p.ID < 0 {
		return core.Product{}, false
	}
	return p, true
}

// scanLines 逐行回调非空 JSON 行；非法 JSON 行被跳过并计数。
func scanLines(ctx context.Context, r io.Reader, fn func(line []byte)) (skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return skipped, err
			}
		}
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			skipped++
			continue
		}
		fn(line)
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("scan: %w", err)
	}
	return skipped, nil
}

// ReadProducts 读取 JSON-lines 商品，丢弃 ID 无法解析的行。
func ReadProducts(ctx context.Context, r io.Reader) ([]core.Product, error) {
	var out []core.Product
	skipped, err := scanLines(ctx, r, func(line []byte) {
		if p, ok := ProductFromJSON(line); ok {
			out = append(out, p)
		}
	})
	logSkipped("products", skipped)
	return out, err
}

// ReadCategories 读取 JSON-lines 类目 {category_id, category_name, parent_id}。
// parent_id 缺失或非法时视为根类目。
func ReadCategories(ctx context.Context, r io.Reader) (*core.CategoryTree, error) {
	tree := core.NewCategoryTree()
	skipped, err := scanLines(ctx, r, func(line []byte) {
		id := ParseID(field(line, "category_id"))
		if id < 0 {
			return
		}
		tree.Add(id, ParseID(field(line, "parent_id")), field(line, "category_name"))
	})
	logSkipped("categories", skipped)
	return tree, err
}

// ReadLogs 读取 JSON-lines 行为日志 {user_no, product_id, stay_time, scroll_depth}。
func ReadLogs(ctx context.Context, r io.Reader) ([]LogRecord, error) {
	var out []LogRecord
	skipped, err := scanLines(ctx, r, func(line []byte) {
		rec := LogRecord{
			UserID:      ParseID(userIDExtractor.Extract(line)),
			ItemID:      ParseID(itemIDExtractor.Extract(line)),
			StayTime:    ParseFloat(field(line, "stay_time")),
			ScrollDepth: ParseFloat(field(line, "scroll_depth")),
		}
		if rec.UserID < 0 || rec.ItemID < 0 {
			return
		}
		out = append(out, rec)
	})
	logSkipped("logs", skipped)
	return out, err
}

// ReadScores 读取 JSON-lines 显式评分 {user_no, item_no, final_score}。
func ReadScores(ctx context.Context, r io.Reader) ([]ScoreRecord, error) {
	var out []ScoreRecord
	skipped, err := scanLines(ctx, r, func(line []byte) {
		rec := ScoreRecord{
			UserID: ParseID(userIDExtractor.Extract(line)),
			ItemID: ParseID(itemIDExtractor.Extract(line)),
			Score:  ParseFloat(scoreExtractor.Extract(line)),
		}
		if rec.UserID < 0 || rec.ItemID < 0 {
			return
		}
		out = append(out, rec)
	})
	logSkipped("scores", skipped)
	return out, err
}

type pairKey struct{ user, item int64 }

// Merge 把日志与显式评分合并为交互：同一 (user,item) 的隐式分求和、显式分取最大值，
// 显式分只附着在有日志的 (user,item) 上。权重为 implicit + beta·explicit。
// 输出按 (user, item) 升序。
func Merge(logs []LogRecord, scores []ScoreRecord, beta float64) []core.Interaction {
	implicit := make(map[pairKey]float64, len(logs))
	for _, l := range logs {
		implicit[pairKey{l.UserID, l.ItemID}] += l.Implicit()
	}
	explicit := make(map[pairKey]float64, len(scores))
	for _, s := range scores {
		k := pairKey{s.UserID, s.ItemID}
		if old, ok := explicit[k]; !ok || s.Score > old {
			explicit[k] = s.Score
		}
	}

	keys := make([]pairKey, 0, len(implicit))
	for k := range implicit {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].user != keys[j].user {
			return keys[i].user < keys[j].user
		}
		return keys[i].item < keys[j].item
	})

	out := make([]core.Interaction, len(keys))
	for i, k := range keys {
		out[i] = core.NewInteraction(k.user, k.item, implicit[k], explicit[k], beta)
	}
	return out
}

// CollabTable 把显式评分整理为按用户归一化的协同打分表：同一 (user,item) 取最大值，
// 再除以该用户的最大分。与 Merge 不同，没有日志的评分也会保留。
func CollabTable(scores []ScoreRecord) core.CollabScores {
	if len(scores) == 0 {
		return nil
	}
	raw := make(map[int64]map[int64]float64)
	for _, s := range scores {
		items, ok := raw[s.UserID]
		if !ok {
			items = make(map[int64]float64)
			raw[s.UserID] = items
		}
		if old, ok := items[s.ItemID]; !ok || s.Score > old {
			items[s.ItemID] = s.Score
		}
	}
	out := make(core.CollabScores, len(raw))
	for user, items := range raw {
		maxScore := math.Inf(-1)
		for _, v := range items {
			maxScore = max(maxScore, v)
		}
		norm := make(map[int64]float64, len(items))
		for id, v := range items {
			norm[id] = v / (maxScore + core.Epsilon)
		}
		out[user] = norm
	}
	return out
}

func logSkipped(kind string, n int) {
	if n == 0 {
		return
	}
	log := logging.Component("ingest")
	log.Warn().Str("kind", kind).Int("skipped", n).Msg("malformed json lines skipped")
}
