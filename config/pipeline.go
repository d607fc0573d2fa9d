package config

import (
	_ "embed"

	"github.com/rushteam/hybridrec/pipeline"
)

//go:embed default_pipeline.yaml
var defaultPipelineYAML []byte

// DefaultPipelineConfig 返回内置的离线批量生成流水线：
// 候选 → 混合打分 → 已看掩码 → Top300 → 0-100 缩放 → 阈值优先 → 多样性 Top10。
func DefaultPipelineConfig() (*pipeline.Config, error) {
	return pipeline.Parse(defaultPipelineYAML)
}

// LoadPipeline 读取 path 指定的流水线配置；path 为空时使用内置配置。
// 配置中的 Node 类型都必须已注册。
func LoadPipeline(path string) (*pipeline.Config, error) {
	var (
		cfg *pipeline.Config
		err error
	)
	if path == "" {
		cfg, err = DefaultPipelineConfig()
	} else {
		cfg, err = pipeline.LoadFromYAML(path)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
