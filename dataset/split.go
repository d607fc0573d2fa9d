package dataset

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
)

// Part 标识切分后的数据分区。
type Part int

const (
	PartTrain Part = iota
	PartVal
	PartTest
)

func (p Part) String() string {
	switch p {
	case PartTrain:
		return "train"
	case PartVal:
		return "val"
	case PartTest:
		return "test"
	default:
		return "unknown"
	}
}

// Splitter 是按用户的 leave-top-k-out 切分器：
// 每个用户权重最高的 KTest 条进入 test，随后 KVal 条进入 val，其余为 train，
// 且保证 train 至少保留 MinTrain 条。
type Splitter struct {
	KTest    int
	KVal     int
	MinTrain int
}

// DefaultSplitter 返回默认切分参数（5 / 5 / 3）。
func DefaultSplitter() Splitter {
	return Splitter{KTest: 5, KVal: 5, MinTrain: 3}
}

// Split 是切分结果。三个分区对每个用户两两不相交，且并集等于该用户的全部交互。
type Split struct {
	Train map[int64][]core.Interaction
	Val   map[int64][]core.Interaction
	Test  map[int64][]core.Interaction
}

// Split 执行切分。交互数 <= MinTrain 的用户全部进入 train。
func (s Splitter) Split(interactions []core.Interaction) *Split {
	out := &Split{
		Train: make(map[int64][]core.Interaction),
		Val:   make(map[int64][]core.Interaction),
		Test:  make(map[int64][]core.Interaction),
	}
	for user, rows := range GroupByUser(interactions) {
		sorted := make([]core.Interaction, len(rows))
		copy(sorted, rows)
		SortByWeight(sorted)

		n := len(sorted)
		if n <= s.MinTrain {
			out.Train[user] = sorted
			continue
		}
		hold := min(s.KTest+s.KVal, n-s.MinTrain)
		nTest := min(s.KTest, hold)
		if nTest > 0 {
			out.Test[user] = sorted[:nTest]
		}
		if hold > nTest {
			out.Val[user] = sorted[nTest:hold]
		}
		out.Train[user] = sorted[hold:]
	}
	return out
}

// Part 返回指定分区。
func (s *Split) Part(p Part) map[int64][]core.Interaction {
	switch p {
	case PartVal:
		return s.Val
	case PartTest:
		return s.Test
	default:
		return s.Train
	}
}

// Seen 返回用户在 train 中出现过的物品集合，用于评估时的已看掩码。
func (s *Split) Seen(userID int64) mapset.Set[int64] {
	set := mapset.NewThreadUnsafeSet[int64]()
	for _, it := range s.Train[userID] {
		set.Add(it.ItemID)
	}
	return set
}

// All 返回全部交互（三个分区拼接），用于在线服务的全量可见视图。
func (s *Split) All() []core.Interaction {
	var out []core.Interaction
	for _, part := range []map[int64][]core.Interaction{s.Train, s.Val, s.Test} {
		for _, user := range SortedUsers(part) {
			out = append(out, part[user]...)
		}
	}
	return out
}

// GroundTruth 返回 val 或 test 分区的按用户真值集合。
func (s *Split) GroundTruth(p Part) GroundTruth {
	return NewGroundTruth(s.Part(p))
}

// Stats 返回 (train, val, test) 的交互条数。
func (s *Split) Stats() (train, val, test int) {
	for _, rows := range s.Train {
		train += len(rows)
	}
	for _, rows := range s.Val {
		val += len(rows)
	}
	for _, rows := range s.Test {
		test += len(rows)
	}
	return train, val, test
}
