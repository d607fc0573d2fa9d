package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// BadgerStore 是基于 BadgerDB 的嵌入式持久化 Store。
// 离线任务用它缓存最优权重等中间结果，重复运行时直接复用。
type BadgerStore struct {
	db *badger.DB
}

var _ core.Store = (*BadgerStore)(nil)

// OpenBadgerStore 打开（或创建）目录 dir 下的数据库；dir 为空时使用内存模式。
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore 包装已打开的数据库。
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (b *BadgerStore) Name() string { return "badger" }

func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrStoreNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if !core.IsStoreNotFound(err) {
		metrics.RecordStoreOp(b.Name(), "get", err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newEntry(key string, value []byte, ttl []int) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if len(ttl) > 0 && ttl[0] > 0 {
		e = e.WithTTL(time.Duration(ttl[0]) * time.Second)
	}
	return e
}

func (b *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	metrics.RecordStoreOp(b.Name(), "set", err)
	return err
}

func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (b *BadgerStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get([]byte(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", k, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[k] = val
		}
		return nil
	})
	metrics.RecordStoreOp(b.Name(), "batch_get", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BatchSet 使用 WriteBatch 批量写入，不受单事务大小限制。
func (b *BadgerStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range kvs {
		if err := wb.SetEntry(newEntry(k, v, ttl)); err != nil {
			metrics.RecordStoreOp(b.Name(), "batch_set", err)
			return fmt.Errorf("batch set %s: %w", k, err)
		}
	}
	err := wb.Flush()
	metrics.RecordStoreOp(b.Name(), "batch_set", err)
	return err
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
