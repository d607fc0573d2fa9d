package recall

import (
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// CoverageReport 是候选集对真值的覆盖情况。
type CoverageReport struct {
	Split      string
	HitItems   int
	TotalItems int
	HitUsers   int
	Users      int
}

// ItemCoverage 真值物品被候选覆盖的比例。
func (r CoverageReport) ItemCoverage() float64 {
	return float64(r.HitItems) / (float64(r.TotalItems) + core.Epsilon)
}

// UserCoverage 至少命中一个真值物品的用户比例（分母为全部真值用户）。
func (r CoverageReport) UserCoverage() float64 {
	return float64(r.HitUsers) / (float64(r.Users) + core.Epsilon)
}

// Coverage 统计候选覆盖率；没有候选的用户不计入物品分母，但计入用户分母。
func Coverage(candidates map[int64][]int64, gt dataset.GroundTruth, split string) CoverageReport {
	report := CoverageReport{Split: split, Users: len(gt)}
	for _, user := range gt.Users() {
		cands := candidates[user]
		if len(cands) == 0 {
			continue
		}
		set := make(map[int64]struct{}, len(cands))
		for _, id := range cands {
			set[id] = struct{}{}
		}
		hit := false
		gt[user].Each(func(id int64) bool {
			report.TotalItems++
			if _, ok := set[id]; ok {
				report.HitItems++
				hit = true
			}
			return false
		})
		if hit {
			report.HitUsers++
		}
	}
	return report
}

// Log 输出覆盖率日志并更新指标。
func (r CoverageReport) Log() {
	metrics.CandidateCoverage.WithLabelValues(r.Split, "item").Set(r.ItemCoverage())
	metrics.CandidateCoverage.WithLabelValues(r.Split, "user").Set(r.UserCoverage())
	log := logging.Component("recall")
	log.Info().
		Str("split", r.Split).
		Float64("item_coverage", r.ItemCoverage()).
		Int("hit_items", r.HitItems).
		Int("total_items", r.TotalItems).
		Float64("user_coverage", r.UserCoverage()).
		Int("hit_users", r.HitUsers).
		Int("users", r.Users).
		Msg("candidate coverage")
}
