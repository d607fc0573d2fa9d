package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/eval"
	"github.com/rushteam/hybridrec/ingest"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/store"
)

// EnvPrefix 是环境变量前缀：HYBRIDREC_SERVER_ADDR -> server.addr。
const EnvPrefix = "HYBRIDREC_"

// ConfigPathEnvVar 可以指定配置文件路径。
const ConfigPathEnvVar = "HYBRIDREC_CONFIG"

// DefaultConfigPaths 按顺序查找配置文件，取第一个存在的。
var DefaultConfigPaths = []string{
	"hybridrec.yaml",
	"hybridrec.yml",
	"/etc/hybridrec/hybridrec.yaml",
}

// AppConfig 是离线批任务与在线服务共用的配置。
type AppConfig struct {
	Seed         int64   `koanf:"seed"`
	BetaExplicit float64 `koanf:"beta_explicit" validate:"gte=0"`
	Workers      int     `koanf:"workers" validate:"gte=0"`
	Pipeline     string  `koanf:"pipeline"` // 流水线 YAML 路径，为空时使用内置配置

	Logging    logging.Config   `koanf:"logging"`
	Input      InputConfig      `koanf:"input"`
	Output     OutputConfig     `koanf:"output"`
	Cache      CacheConfig      `koanf:"cache"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Split      SplitConfig      `koanf:"split"`
	Candidates CandidatesConfig `koanf:"candidates"`
	Eval       EvalConfig       `koanf:"eval"`
	Server     ServerConfig     `koanf:"server"`
}

// InputConfig 选择原始数据来源：JSON-lines 文件或业务库。
type InputConfig struct {
	Source string          `koanf:"source" validate:"oneof=files sql"`
	Files  ingest.Files    `koanf:"files"`
	SQL    store.SQLConfig `koanf:"sql"`
	Tables ingest.Tables   `koanf:"tables"`
}

// OutputConfig 选择推荐结果的持久化后端。
type OutputConfig struct {
	Backend   string            `koanf:"backend" validate:"oneof=memory redis sql"`
	Redis     store.RedisConfig `koanf:"redis"`
	SQL       store.SQLConfig   `koanf:"sql"`
	KeyPrefix string            `koanf:"key_prefix"`
	TTL       int               `koanf:"ttl" validate:"gte=0"`
	HotKey    string            `koanf:"hot_key"` // 全局热门有序集合，为空时不发布
	HotN      int               `koanf:"hot_n" validate:"gte=0"`
}

// CacheConfig 是离线缓存（最优权重）的 Badger 目录，为空时使用内存模式。
type CacheConfig struct {
	Dir string `koanf:"dir"`
}

// EmbeddingConfig 选择向量来源：远程训练服务或离线向量文件。
type EmbeddingConfig struct {
	Provider    string        `koanf:"provider" validate:"oneof=rpc file"`
	Endpoint    string        `koanf:"endpoint" validate:"required_if=Provider rpc,omitempty,url"`
	Path        string        `koanf:"path" validate:"required_if=Provider file"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxFailures uint32        `koanf:"max_failures"`
}

type SplitConfig struct {
	KTest    int `koanf:"k_test" validate:"gte=0"`
	KVal     int `koanf:"k_val" validate:"gte=0"`
	MinTrain int `koanf:"min_train" validate:"gte=0"`
}

type CandidatesConfig struct {
	Target   int        `koanf:"target" validate:"gt=0"`
	Scenario string     `koanf:"scenario" validate:"omitempty,oneof=GLOBAL"`
	Mix      recall.Mix `koanf:"mix"`
}

type EvalConfig struct {
	Windows      []int     `koanf:"windows" validate:"min=1,dive,gt=0"`
	Grid         eval.Grid `koanf:"grid"`
	WindowSample int       `koanf:"window_sample" validate:"gte=0"`
	GridSample   int       `koanf:"grid_sample" validate:"gte=0"`
	Ks           []int     `koanf:"ks" validate:"dive,gt=0"`
	SkipSearch   bool      `koanf:"skip_search"` // 跳过窗口与权重搜索，直接使用 Weights
	Window       int       `koanf:"window" validate:"gte=0"`
	Weights      model.Weights `koanf:"weights"`
}

// ServerConfig 是在线推荐服务配置。
type ServerConfig struct {
	Addr         string        `koanf:"addr" validate:"required"`
	JWTSecret    string        `koanf:"jwt_secret"`
	DefaultK     int           `koanf:"default_k" validate:"gt=0"`
	MaxK         int           `koanf:"max_k" validate:"gtefield=DefaultK"`
	RateLimit    int           `koanf:"rate_limit" validate:"gte=0"` // 每 IP 每分钟请求数，0 表示不限
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DefaultAppConfig 返回默认配置。
func DefaultAppConfig() *AppConfig {
	grid := eval.DefaultGrid()
	cfg := &AppConfig{
		Seed:         core.DefaultSeed,
		BetaExplicit: core.DefaultBetaExplicit,
		Logging:      logging.Config{Level: "info", Format: "json"},
		Input: InputConfig{
			Source: "files",
			Tables: ingest.DefaultTables(),
		},
		Output: OutputConfig{
			Backend:   "memory",
			KeyPrefix: "rec:user",
			HotKey:    "hot:items",
			HotN:      100,
		},
		Embedding: EmbeddingConfig{
			Provider:    "rpc",
			Endpoint:    "http://localhost:8090/train",
			Timeout:     10 * time.Minute,
			MaxFailures: 3,
		},
		Split:      SplitConfig{KTest: 5, KVal: 5, MinTrain: 3},
		Candidates: CandidatesConfig{Target: 1200, Mix: recall.DefaultMix()},
		Eval: EvalConfig{
			Windows:      []int{10, 15, 20},
			Grid:         grid,
			WindowSample: 800,
			GridSample:   1200,
			Ks:           []int{10, 50},
		},
		Server: ServerConfig{
			Addr:         ":8080",
			DefaultK:     10,
			MaxK:         50,
			RateLimit:    120,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	cfg.Eval.Weights = model.Weights{Embed: 0.6, Collab: 0.4}
	return cfg
}

// Load 按 默认值 → 配置文件 → 环境变量 的顺序叠加配置并校验。
// path 为空时依次查找 HYBRIDREC_CONFIG 与 DefaultConfigPaths，都不存在则只用默认值与环境变量。
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &AppConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envSections 是顶层配置段；环境变量中第一个下划线之前若是配置段名，则按段切分。
var envSections = []string{
	"logging", "input", "output", "cache", "embedding", "split", "candidates", "eval", "server",
}

// envTransform: HYBRIDREC_SERVER_JWT_SECRET -> server.jwt_secret，HYBRIDREC_SEED -> seed。
// 嵌套两层的字段（如 output.redis.addr）写作 HYBRIDREC_OUTPUT_REDIS__ADDR。
func envTransform(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	for _, s := range envSections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + key[len(s)+1:]
		}
	}
	return key
}

var validate = validator.New()

// Validate 做结构体标签校验与跨字段校验。
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}
	if c.Input.Source == "sql" && c.Input.SQL.Driver == "" {
		return errors.New("input.sql.driver is required when input.source is sql")
	}
	if c.Output.Backend == "sql" && c.Output.SQL.Driver == "" {
		return errors.New("output.sql.driver is required when output.backend is sql")
	}
	if c.Output.Backend == "redis" && c.Output.Redis.Addr == "" {
		return errors.New("output.redis.addr is required when output.backend is redis")
	}
	if c.Input.Source == "files" && (c.Input.Files.Logs == "" || c.Input.Files.Products == "") {
		return errors.New("input.files.logs and input.files.products are required when input.source is files")
	}
	if len(c.Eval.Grid.Combos()) == 0 {
		return errors.New("eval.grid must have at least one combination")
	}
	return nil
}
