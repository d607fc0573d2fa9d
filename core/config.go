package core

// 领域默认值。类目缺失或无法解析时使用哨兵值 UnknownCategory，
// 哨兵类目不会进入任何按类目索引的候选池。
const (
	UnknownCategory int64 = -1
	UnknownBrand          = "UNKNOWN"

	// Epsilon 用于归一化时防止除零
	Epsilon = 1e-12

	// DefaultSeed 是离线任务与采样的默认随机种子
	DefaultSeed int64 = 42

	// DefaultBetaExplicit 是显式分在交互权重中的系数：w = implicit + β·explicit
	DefaultBetaExplicit = 1.0
)
