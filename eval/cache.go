package eval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// WeightsCache 把网格搜索结果按输入指纹保存在 core.Store 中（生产环境为 Badger）。
// 输入相同则指纹相同，重复运行直接复用上次选出的权重。
type WeightsCache struct {
	Store     core.Store
	KeyPrefix string
}

func NewWeightsCache(s core.Store) *WeightsCache {
	return &WeightsCache{Store: s, KeyPrefix: "hybridrec:weights"}
}

func (c *WeightsCache) key(fingerprint string) string {
	return c.KeyPrefix + ":" + fingerprint
}

// Load 读取缓存；未命中时 ok 为 false 且 err 为 nil。
func (c *WeightsCache) Load(ctx context.Context, fingerprint string) (res GridResult, ok bool, err error) {
	if c == nil || c.Store == nil {
		return GridResult{}, false, nil
	}
	data, err := c.Store.Get(ctx, c.key(fingerprint))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return GridResult{}, false, nil
		}
		return GridResult{}, false, fmt.Errorf("load weights: %w", err)
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return GridResult{}, false, fmt.Errorf("decode weights: %w", err)
	}
	return res, true, nil
}

// Save 写入缓存（不过期）。
func (c *WeightsCache) Save(ctx context.Context, fingerprint string, res GridResult) error {
	if c == nil || c.Store == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if err := c.Store.Set(ctx, c.key(fingerprint), data); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// Fingerprint 对任意可 JSON 序列化的输入描述取 sha256，返回前 16 字节的十六进制。
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
