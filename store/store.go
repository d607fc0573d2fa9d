// Package store 提供 core.Store / core.KeyValueStore / core.RecommendationStore 的实现：
// 内存、Redis、Badger 与 SQL（gorm）。接口定义在 core 包。
//
//	var kv core.KeyValueStore = store.NewMemoryStore()
//	var recs core.RecommendationStore = store.NewKVRecommendations(kv, "")
package store

import "github.com/rushteam/hybridrec/core"

// ErrNotFound 表示 key 不存在，与 core.ErrStoreNotFound 相同。
var ErrNotFound = core.ErrStoreNotFound
