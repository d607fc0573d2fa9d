package index

import (
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
)

// Snapshot 是一次构建产出的全部只读索引。发布后不再修改，读者无需加锁。
type Snapshot struct {
	Catalog    *core.Catalog
	Popularity *Popularity
	Profiles   map[int64]*core.UserProfile

	// Neighbors 是共现邻居图：item -> 按共现次数降序的邻居
	Neighbors map[int64][]int64

	// Visible 是用户可见的交互（评估时为 train，服务时为全量）
	Visible map[int64][]core.Interaction

	BuiltAt time.Time
}

// Profile 返回用户画像；没有画像时返回空画像。
func (s *Snapshot) Profile(userID int64) *core.UserProfile {
	if p, ok := s.Profiles[userID]; ok {
		return p
	}
	return core.NewUserProfile(userID)
}

// Seen 返回用户可见交互中的物品集合。
func (s *Snapshot) Seen(userID int64) mapset.Set[int64] {
	set := mapset.NewThreadUnsafeSet[int64]()
	for _, it := range s.Visible[userID] {
		set.Add(it.ItemID)
	}
	return set
}

// Holder 持有当前生效的 Snapshot；重建时整体替换指针。
type Holder struct {
	p atomic.Pointer[Snapshot]
}

// NewHolder 创建 Holder，可选初始快照。
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	if s != nil {
		h.p.Store(s)
	}
	return h
}

// Load 返回当前快照，可能为 nil（尚未构建）。
func (h *Holder) Load() *Snapshot {
	return h.p.Load()
}

// Swap 发布新快照并返回旧快照。
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	if s.BuiltAt.IsZero() {
		s.BuiltAt = time.Now()
	}
	return h.p.Swap(s)
}
