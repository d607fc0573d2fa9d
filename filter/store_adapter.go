package filter

import (
	"context"
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// StoreAdapter 将 core.Store 适配为 SeenStore：
// 用户已见物品以 JSON 数组形式保存在 {KeyPrefix}:{userID}。
type StoreAdapter struct {
	store     core.Store
	KeyPrefix string
}

var _ SeenStore = (*StoreAdapter)(nil)

// NewStoreAdapter 创建一个 core.Store 适配器，keyPrefix 为空时使用 "user:seen"。
func NewStoreAdapter(s core.Store, keyPrefix string) *StoreAdapter {
	if keyPrefix == "" {
		keyPrefix = "user:seen"
	}
	return &StoreAdapter{store: s, KeyPrefix: keyPrefix}
}

func (a *StoreAdapter) key(userID int64) string {
	return a.KeyPrefix + ":" + strconv.FormatInt(userID, 10)
}

// Seen 读取用户已见物品；key 不存在时返回空集合。
func (a *StoreAdapter) Seen(ctx context.Context, userID int64) (mapset.Set[int64], error) {
	data, err := a.store.Get(ctx, a.key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return mapset.NewThreadUnsafeSet[int64](), nil
		}
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal seen items: %w", err)
	}
	return mapset.NewThreadUnsafeSet(ids...), nil
}

// Record 写入用户已见物品（整体覆盖）。
func (a *StoreAdapter) Record(ctx context.Context, userID int64, items []int64) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal seen items: %w", err)
	}
	return a.store.Set(ctx, a.key(userID), data)
}
