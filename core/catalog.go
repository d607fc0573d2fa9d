package core

import "sort"

// Interaction 是一条用户-物品交互，Weight 是切分、流行度与画像的唯一排序信号。
type Interaction struct {
	UserID   int64
	ItemID   int64
	Implicit float64 // 隐式分（停留时长、滚动深度等）
	Explicit float64 // 显式分（评分/协同打分），同时作为协同信号
	Weight   float64
}

// NewInteraction 按 w = implicit + β·explicit 计算权重。
func NewInteraction(userID, itemID int64, implicit, explicit, beta float64) Interaction {
	return Interaction{
		UserID:   userID,
		ItemID:   itemID,
		Implicit: implicit,
		Explicit: explicit,
		Weight:   implicit + beta*explicit,
	}
}

// Product 是物品元信息。
type Product struct {
	ID           int64
	FineCategory int64
	TopCategory  int64
	Brand        string
	Name         string
	Price        float64
}

// CategoryTree 是类目父子关系（child -> parent）。
type CategoryTree struct {
	parent map[int64]int64
	names  map[int64]string
}

func NewCategoryTree() *CategoryTree {
	return &CategoryTree{
		parent: make(map[int64]int64),
		names:  make(map[int64]string),
	}
}

// Add 登记一个类目；parent < 0 表示根类目。
func (t *CategoryTree) Add(id, parent int64, name string) {
	if id < 0 {
		return
	}
	t.parent[id] = parent
	if name != "" {
		t.names[id] = name
	}
}

func (t *CategoryTree) Name(id int64) string {
	return t.names[id]
}

// TopCategory 沿父链走到根类目。
// 父链可能存在环：使用 visited 集合，遇到第一个重复节点即视为根；
// 父节点缺失或为负数时在当前节点终止。
func (t *CategoryTree) TopCategory(id int64) int64 {
	if id < 0 {
		return UnknownCategory
	}
	cur := id
	visited := make(map[int64]struct{}, 4)
	for {
		if _, ok := visited[cur]; ok {
			return cur
		}
		visited[cur] = struct{}{}
		p, ok := t.parent[cur]
		if !ok || p < 0 {
			return cur
		}
		cur = p
	}
}

// Catalog 是只读的物品目录。
type Catalog struct {
	products map[int64]Product
	ids      []int64
}

// NewCatalog 构建目录；TopCategory 未设置（<0）时通过 tree 解析。
func NewCatalog(products []Product, tree *CategoryTree) *Catalog {
	c := &Catalog{products: make(map[int64]Product, len(products))}
	for _, p := range products {
		if p.ID < 0 {
			continue
		}
		if p.FineCategory < 0 {
			p.FineCategory = UnknownCategory
		}
		if p.TopCategory < 0 && tree != nil {
			p.TopCategory = tree.TopCategory(p.FineCategory)
		}
		if p.TopCategory < 0 {
			p.TopCategory = UnknownCategory
		}
		if p.Brand == "" {
			p.Brand = UnknownBrand
		}
		if _, ok := c.products[p.ID]; !ok {
			c.ids = append(c.ids, p.ID)
		}
		c.products[p.ID] = p
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
	return c
}

// Get 返回物品信息；未知物品返回哨兵类目与 UNKNOWN 品牌。
func (c *Catalog) Get(id int64) (Product, bool) {
	if c != nil {
		if p, ok := c.products[id]; ok {
			return p, true
		}
	}
	return Product{ID: id, FineCategory: UnknownCategory, TopCategory: UnknownCategory, Brand: UnknownBrand}, false
}

// IDs 返回升序的物品 ID（只读，调用方不得修改）。
func (c *Catalog) IDs() []int64 {
	if c == nil {
		return nil
	}
	return c.ids
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}
