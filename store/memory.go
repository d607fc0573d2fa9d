package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// sweepInterval 是后台清理过期 key 的周期；读路径本身也会忽略过期值。
const sweepInterval = 10 * time.Second

// MemoryStore 是进程内的 KeyValueStore：单机运行时离线批任务把推荐结果、热门榜
// 与已看集合直接发布在这里，测试也用它代替 Redis。
//
// 语义尽量贴近 Redis：字符串、有序集合、哈希各占一个命名空间，Delete 同时删除三者；
// ZRange 按分数降序（同分按 member 升序），支持负下标。进程退出后数据丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]memValue
	zsets   map[string]map[string]float64
	hashes  map[string]map[string][]byte

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type memValue struct {
	data     []byte
	expireAt time.Time // 零值表示不过期
}

func (v memValue) expired(now time.Time) bool {
	return !v.expireAt.IsZero() && !now.Before(v.expireAt)
}

var _ core.KeyValueStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储并启动后台过期清理，Close 时停止。
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		strings: make(map[string]memValue),
		zsets:   make(map[string]map[string]float64),
		hashes:  make(map[string]map[string][]byte),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func expireAt(now time.Time, ttl []int) time.Time {
	if len(ttl) == 0 || ttl[0] <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(ttl[0]) * time.Second)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.strings[key]
	m.mu.RUnlock()
	if !ok || v.expired(m.now()) {
		return nil, ErrNotFound
	}
	metrics.RecordStoreOp(m.Name(), "get", nil)
	return v.data, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	m.strings[key] = memValue{data: value, expireAt: expireAt(m.now(), ttl)}
	m.mu.Unlock()
	metrics.RecordStoreOp(m.Name(), "set", nil)
	return nil
}

// Delete 删除 key 下的字符串、有序集合与哈希，key 不存在时不报错。
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.strings, key)
	delete(m.zsets, key)
	delete(m.hashes, key)
	m.mu.Unlock()
	metrics.RecordStoreOp(m.Name(), "delete", nil)
	return nil
}

// BatchGet 只返回存在且未过期的 key。
func (m *MemoryStore) BatchGet(_ context.Context, keys []string) (map[string][]byte, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.strings[k]; ok && !v.expired(now) {
			out[k] = v.data
		}
	}
	metrics.RecordStoreOp(m.Name(), "batch_get", nil)
	return out, nil
}

// BatchSet 以同一个过期时间写入全部 key。
func (m *MemoryStore) BatchSet(_ context.Context, kvs map[string][]byte, ttl ...int) error {
	exp := expireAt(m.now(), ttl)
	m.mu.Lock()
	for k, v := range kvs {
		m.strings[k] = memValue{data: v, expireAt: exp}
	}
	m.mu.Unlock()
	metrics.RecordStoreOp(m.Name(), "batch_set", nil)
	return nil
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryStore) sweepLoop() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

// sweep 删除已过期的字符串 key。
func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, v := range m.strings {
		if v.expired(now) {
			delete(m.strings, k)
			n++
		}
	}
	return n
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	zset, ok := m.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		m.zsets[key] = zset
	}
	zset[member] = score
	return nil
}

// ZRange 按分数降序返回 [start, stop] 名次的成员，负下标从末尾计数（-1 为最后一名）。
func (m *MemoryStore) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	zset := m.zsets[key]
	members := make([]string, 0, len(zset))
	for member := range zset {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := zset[members[i]], zset[members[j]]
		if si != sj {
			return si > sj
		}
		return members[i] < members[j]
	})
	m.mu.RUnlock()

	n := int64(len(members))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	start = max(start, 0)
	stop = min(stop, n-1)
	if n == 0 || start > stop {
		return nil, nil
	}
	return members[start : stop+1], nil
}

func (m *MemoryStore) ZScore(_ context.Context, key string, member string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	score, ok := m.zsets[key][member]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.hashes[key][field]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

// HGetAll 返回哈希的副本；key 不存在时返回空 map。
func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}
