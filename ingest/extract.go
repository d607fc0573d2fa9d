// Package ingest 把原始商品 JSON、类目、行为日志与显式评分规整为核心数据结构。
//
// 原始商品来自不同抓取源，字段名不统一，因此每个属性都由一组按优先级排列的
// 字段路径（gjson 语法）提取，取第一个非空值。
package ingest

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// FieldExtractor 按顺序尝试 Paths，返回第一个非空值；都为空时返回 Default。
type FieldExtractor struct {
	Paths   []string
	Default string
}

// Lookup 返回第一个非空值及是否命中。
func (e FieldExtractor) Lookup(raw []byte) (string, bool) {
	for _, p := range e.Paths {
		r := gjson.GetBytes(raw, p)
		if !nonEmpty(r) {
			continue
		}
		return strings.TrimSpace(r.String()), true
	}
	return e.Default, false
}

// Extract 同 Lookup，但只返回值。
func (e FieldExtractor) Extract(raw []byte) string {
	v, _ := e.Lookup(raw)
	return v
}

func nonEmpty(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.String:
		return strings.TrimSpace(r.Str) != ""
	case gjson.JSON:
		return r.IsObject() || len(r.Array()) > 0
	case gjson.False:
		return false
	}
	return true
}

var (
	NameExtractor = FieldExtractor{
		Paths:   []string{"model_name", "Name", "name", "Product", "product_name", "title", "Title", "제품명"},
		Default: "Unknown",
	}
	PriceExtractor = FieldExtractor{
		Paths: []string{"price_krw", "Price", "price", "lowest_price", "lowestPrice", "가격", "최저가"},
	}
	BrandExtractor = FieldExtractor{
		Paths: []string{"brand", "Brand", "제조사"},
	}
	ImageExtractor = FieldExtractor{
		Paths: []string{"BaseImageURL", "Images.0", "img", "image"},
	}
)

// BrandAliases 把商品名首词（韩文品牌名）映射为英文品牌。
var BrandAliases = map[string]string{
	"레노버":   "Lenovo",
	"삼성":    "Samsung",
	"LG":    "LG",
	"ASUS":  "ASUS",
	"애플":    "Apple",
	"HP":    "HP",
	"델":     "Dell",
	"MSI":   "MSI",
	"에이서":   "Acer",
	"기가바이트": "GIGABYTE",
}

// ParsePrice 去掉千分位逗号后解析整数价格，失败返回 0。
func ParsePrice(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// Name 提取商品名，缺失时为 "Unknown"。
func Name(raw []byte) string { return NameExtractor.Extract(raw) }

// Price 提取价格。
func Price(raw []byte) int64 { return ParsePrice(PriceExtractor.Extract(raw)) }

// Brand 优先取品牌字段；没有时取商品名首词，并按 BrandAliases 映射。
func Brand(raw []byte) string {
	if b, ok := BrandExtractor.Lookup(raw); ok {
		return b
	}
	first, _, _ := strings.Cut(Name(raw), " ")
	if alias, ok := BrandAliases[first]; ok {
		return alias
	}
	return first
}
