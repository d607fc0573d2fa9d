package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// SQLConfig 是推荐结果表的数据库配置。
type SQLConfig struct {
	Driver string `koanf:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `koanf:"dsn" validate:"required_with=Driver"`
}

// recommendationRow 对应表 user_recommendations，列名与在线服务查询保持一致。
type recommendationRow struct {
	UserNo  int64   `gorm:"column:user_no;primaryKey;autoIncrement:false"`
	ItemNo  int64   `gorm:"column:item_no;primaryKey;autoIncrement:false"`
	Score   float64 `gorm:"column:score"`
	RecRank int     `gorm:"column:rec_rank;index"`
}

func (recommendationRow) TableName() string { return "user_recommendations" }

// 每批 4 列，1000 行为 4000 个绑定参数，低于 sqlite 与 postgres 的上限。
const defaultSQLBatchSize = 1000

// SQLRecommendations 是基于 gorm 的推荐结果表。
type SQLRecommendations struct {
	DB        *gorm.DB
	BatchSize int
}

var _ core.RecommendationStore = (*SQLRecommendations)(nil)

// OpenSQL 按驱动打开数据库（postgres 或 sqlite），日志输出到 zerolog。
func OpenSQL(cfg SQLConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	zl := logging.Component("sql")
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.New(&zl, gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// NewSQLRecommendations 创建结果表并自动迁移表结构。
func NewSQLRecommendations(db *gorm.DB) (*SQLRecommendations, error) {
	if err := db.AutoMigrate(&recommendationRow{}); err != nil {
		return nil, fmt.Errorf("migrate user_recommendations: %w", err)
	}
	return &SQLRecommendations{DB: db, BatchSize: defaultSQLBatchSize}, nil
}

// Replace 在一个事务内清空结果表并分批写入新结果，上一轮有而本轮没有的用户不再保留。
// 删除不带参数，写入按 BatchSize 分批，语句的绑定参数个数与用户数无关。
func (s *SQLRecommendations) Replace(ctx context.Context, rows []core.Recommendation) error {
	records := make([]recommendationRow, 0, len(rows))
	for _, r := range rows {
		records = append(records, recommendationRow{UserNo: r.UserID, ItemNo: r.ItemID, Score: r.Score, RecRank: r.Rank})
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = defaultSQLBatchSize
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&recommendationRow{}).Error; err != nil {
			return fmt.Errorf("delete old recommendations: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&records, batch).Error; err != nil {
			return fmt.Errorf("insert recommendations: %w", err)
		}
		return nil
	})
	metrics.RecordStoreOp("sql", "replace", err)
	return err
}

// List 按 rec_rank 升序读取。
func (s *SQLRecommendations) List(ctx context.Context, userID int64, limit int) ([]core.Recommendation, error) {
	q := s.DB.WithContext(ctx).Where("user_no = ?", userID).Order("rec_rank ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []recommendationRow
	err := q.Find(&records).Error
	metrics.RecordStoreOp("sql", "list", err)
	if err != nil {
		return nil, fmt.Errorf("query user_recommendations: %w", err)
	}
	out := make([]core.Recommendation, 0, len(records))
	for _, r := range records {
		out = append(out, core.Recommendation{UserID: r.UserNo, ItemID: r.ItemNo, Score: r.Score, Rank: r.RecRank})
	}
	return out, nil
}
