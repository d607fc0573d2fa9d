package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/rushteam/hybridrec/core"
)

// Tables 是业务库中的表名。
type Tables struct {
	Logs       string `koanf:"logs"`
	Products   string `koanf:"products"`
	Categories string `koanf:"categories"`
	Scores     string `koanf:"scores"`
}

func DefaultTables() Tables {
	return Tables{
		Logs:       "USER_LOG",
		Products:   "PRODUCT",
		Categories: "CATEGORY",
		Scores:     "recommendation_scores",
	}
}

// SQLSource 通过 gorm 从业务库读取原始数据。列值统一按字符串扫描再规整，
// 与 JSON-lines 读取器共享同一套容错规则。
type SQLSource struct {
	DB     *gorm.DB
	Tables Tables
}

func NewSQLSource(db *gorm.DB) *SQLSource {
	return &SQLSource{DB: db, Tables: DefaultTables()}
}

type logRow struct {
	UserID      sql.NullString `gorm:"column:user_id"`
	ProductID   sql.NullString `gorm:"column:product_id"`
	StayTime    sql.NullString `gorm:"column:stay_time"`
	ScrollDepth sql.NullString `gorm:"column:scroll_depth"`
}

// Logs 读取 product_id 非空的行为日志；用户或物品无法解析的行被丢弃。
func (s *SQLSource) Logs(ctx context.Context) ([]LogRecord, error) {
	var rows []logRow
	err := s.DB.WithContext(ctx).Table(s.Tables.Logs).
		Select("user_id, product_id, stay_time, scroll_depth").
		Where("product_id IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Tables.Logs, err)
	}
	out := make([]LogRecord, 0, len(rows))
	for _, r := range rows {
		rec := LogRecord{
			UserID:      ParseID(r.UserID.String),
			ItemID:      ParseID(r.ProductID.String),
			StayTime:    ParseFloat(r.StayTime.String),
			ScrollDepth: ParseFloat(r.ScrollDepth.String),
		}
		if rec.UserID < 0 || rec.ItemID < 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type productRow struct {
	ProductID   sql.NullString `gorm:"column:product_id"`
	CategoryID  sql.NullString `gorm:"column:category_id"`
	ProductName sql.NullString `gorm:"column:product_name"`
	Brand       sql.NullString `gorm:"column:brand"`
	Price       sql.NullString `gorm:"column:price"`
}

// Products 读取商品；品牌为空时记为 UNKNOWN。
func (s *SQLSource) Products(ctx context.Context) ([]core.Product, error) {
	var rows []productRow
	err := s.DB.WithContext(ctx).Table(s.Tables.Products).
		Select("product_id, category_id, product_name, brand, price").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Tables.Products, err)
	}
	out := make([]core.Product, 0, len(rows))
	for _, r := range rows {
		id := ParseID(r.ProductID.String)
		if id < 0 {
			continue
		}
		brand := r.Brand.String
		if brand == "" {
			brand = core.UnknownBrand
		}
		out = append(out, core.Product{
			ID:           id,
			FineCategory: ParseID(r.CategoryID.String),
			TopCategory:  core.UnknownCategory,
			Name:         r.ProductName.String,
			Brand:        brand,
			Price:        ParseFloat(r.Price.String),
		})
	}
	return out, nil
}

type categoryRow struct {
	CategoryID   sql.NullString `gorm:"column:category_id"`
	CategoryName sql.NullString `gorm:"column:category_name"`
	ParentID     sql.NullString `gorm:"column:parent_id"`
}

// Categories 读取类目父子关系。
func (s *SQLSource) Categories(ctx context.Context) (*core.CategoryTree, error) {
	var rows []categoryRow
	err := s.DB.WithContext(ctx).Table(s.Tables.Categories).
		Select("category_id, category_name, parent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Tables.Categories, err)
	}
	tree := core.NewCategoryTree()
	for _, r := range rows {
		tree.Add(ParseID(r.CategoryID.String), ParseID(r.ParentID.String), r.CategoryName.String)
	}
	return tree, nil
}

type scoreRow struct {
	UserNo     sql.NullString `gorm:"column:user_no"`
	ItemNo     sql.NullString `gorm:"column:item_no"`
	FinalScore sql.NullString `gorm:"column:final_score"`
}

// Scores 读取显式评分；表不存在时返回空结果而不是错误（显式分是可选信号）。
func (s *SQLSource) Scores(ctx context.Context) ([]ScoreRecord, error) {
	if s.Tables.Scores == "" || !s.DB.Migrator().HasTable(s.Tables.Scores) {
		return nil, nil
	}
	var rows []scoreRow
	err := s.DB.WithContext(ctx).Table(s.Tables.Scores).
		Select("user_no, item_no, final_score").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Tables.Scores, err)
	}
	out := make([]ScoreRecord, 0, len(rows))
	for _, r := range rows {
		rec := ScoreRecord{
			UserID: ParseID(r.UserNo.String),
			ItemID: ParseID(r.ItemNo.String),
			Score:  ParseFloat(r.FinalScore.String),
		}
		if rec.UserID < 0 || rec.ItemID < 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Dataset 是一次读取得到的全部输入。
type Dataset struct {
	Interactions []core.Interaction
	Catalog      *core.Catalog

	// Collab 是显式评分整理出的协同打分表，可为空
	Collab core.CollabScores
}

// Load 读取全部表并合并为交互与目录。
func (s *SQLSource) Load(ctx context.Context, beta float64) (*Dataset, error) {
	logs, err := s.Logs(ctx)
	if err != nil {
		return nil, err
	}
	scores, err := s.Scores(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		Interactions: Merge(logs, scores, beta),
		Catalog:      core.NewCatalog(products, tree),
		Collab:       CollabTable(scores),
	}, nil
}
