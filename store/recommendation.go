package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// KVRecommendations 把每个用户的推荐结果以 JSON 数组保存在 {KeyPrefix}:{userID}，
// 适用于任何 core.Store（Redis / Badger / 内存）。
// 本轮写入的用户列表记在 {KeyPrefix}:users，下一轮 Replace 据此删除不再出现的用户。
type KVRecommendations struct {
	Store     core.Store
	KeyPrefix string
	TTL       int // 秒，0 表示不过期
}

var _ core.RecommendationStore = (*KVRecommendations)(nil)

// NewKVRecommendations 创建 KV 结果表，keyPrefix 为空时使用 "rec:user"。
func NewKVRecommendations(s core.Store, keyPrefix string) *KVRecommendations {
	if keyPrefix == "" {
		keyPrefix = "rec:user"
	}
	return &KVRecommendations{Store: s, KeyPrefix: keyPrefix}
}

func (r *KVRecommendations) key(userID int64) string {
	return r.KeyPrefix + ":" + strconv.FormatInt(userID, 10)
}

func (r *KVRecommendations) usersKey() string {
	return r.KeyPrefix + ":users"
}

// users 读取上一轮写入的用户列表；没有记录时返回空。
func (r *KVRecommendations) users(ctx context.Context) ([]int64, error) {
	data, err := r.Store.Get(ctx, r.usersKey())
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recommendation users: %w", err)
	}
	var users []int64
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("unmarshal recommendation users: %w", err)
	}
	return users, nil
}

// Replace 整体替换推荐结果：先写入本轮全部用户与用户列表，再删除上一轮有而本轮没有的用户。
func (r *KVRecommendations) Replace(ctx context.Context, rows []core.Recommendation) error {
	previous, err := r.users(ctx)
	if err != nil {
		return err
	}

	byUser := groupRows(rows)
	users := make([]int64, 0, len(byUser))
	kvs := make(map[string][]byte, len(byUser)+1)
	for user, list := range byUser {
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("marshal recommendations of user %d: %w", user, err)
		}
		kvs[r.key(user)] = data
		users = append(users, user)
	}
	slices.Sort(users)
	index, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal recommendation users: %w", err)
	}
	kvs[r.usersKey()] = index

	if r.TTL > 0 {
		err = r.Store.BatchSet(ctx, kvs, r.TTL)
	} else {
		err = r.Store.BatchSet(ctx, kvs)
	}
	if err != nil {
		return fmt.Errorf("write recommendations: %w", err)
	}

	for _, user := range previous {
		if _, ok := byUser[user]; ok {
			continue
		}
		if err := r.Store.Delete(ctx, r.key(user)); err != nil && !core.IsStoreNotFound(err) {
			return fmt.Errorf("delete stale recommendations of user %d: %w", user, err)
		}
	}
	return nil
}

// List 返回用户的推荐结果（按 rank 升序）；用户不存在时返回空列表。
func (r *KVRecommendations) List(ctx context.Context, userID int64, limit int) ([]core.Recommendation, error) {
	data, err := r.Store.Get(ctx, r.key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recommendations: %w", err)
	}
	var rows []core.Recommendation
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	sortByRank(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func groupRows(rows []core.Recommendation) map[int64][]core.Recommendation {
	byUser := make(map[int64][]core.Recommendation)
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}
	for _, list := range byUser {
		sortByRank(list)
	}
	return byUser
}

func sortByRank(rows []core.Recommendation) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
}
