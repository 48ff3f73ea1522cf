// Package catalog 提供商品目录：元数据浏览/搜索/分页与基于训练语料的热度排序。
// 数据通过 core.KeyValueStore 承载，单机用 MemoryStore，多实例共享用 RedisStore。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/pkg/conv"
)

const (
	keyProducts = "catalog:products" // Hash: itemID -> Product JSON
	keyPopular  = "catalog:popular"  // SortedSet: itemID -> 热度分
)

// Catalog 是商品目录的读写入口。
type Catalog struct {
	store core.KeyValueStore
}

func New(store core.KeyValueStore) *Catalog {
	return &Catalog{store: store}
}

// Seed 全量写入商品元数据与热度分（预处理阶段调用一次）。
func (c *Catalog) Seed(ctx context.Context, products map[int64]*core.Product, popularity map[int64]float64) error {
	for id, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal product %d: %w", id, err)
		}
		if err := c.store.HSet(ctx, keyProducts, conv.FormatItemID(id), data); err != nil {
			return err
		}
	}
	for id, score := range popularity {
		if err := c.store.ZAdd(ctx, keyPopular, score, conv.FormatItemID(id)); err != nil {
			return err
		}
	}
	return nil
}

// Product 读取单个商品元数据。
func (c *Catalog) Product(ctx context.Context, id int64) (*core.Product, error) {
	data, err := c.store.HGet(ctx, keyProducts, conv.FormatItemID(id))
	if err != nil {
		return nil, err
	}
	var p core.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse product %d: %w", id, err)
	}
	return &p, nil
}

// Query 是目录查询条件。Search 对名称/货架/部门/ID 做大小写不敏感的子串匹配。
type Query struct {
	Search     string
	Department string
	Aisle      string
	Page       int
	PageSize   int
}

// Page 是一页目录结果。
type Page struct {
	Products   []*core.Product `json:"products"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
	HasMore    bool            `json:"has_more"`
}

// List 过滤并分页商品目录，结果按商品 ID 升序（与查询无关的稳定顺序）。
func (c *Catalog) List(ctx context.Context, q Query) (*Page, error) {
	all, err := c.store.HGetAll(ctx, keyProducts)
	if err != nil {
		return nil, err
	}

	products := make([]*core.Product, 0, len(all))
	for _, data := range all {
		var p core.Product
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		if !matches(&p, q) {
			continue
		}
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	page, pageSize := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	total := len(products)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &Page{
		Products:   products[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasMore:    end < total,
	}, nil
}

// TopPopular 返回热度最高的 n 个商品。
func (c *Catalog) TopPopular(ctx context.Context, n int) ([]*core.Product, error) {
	if n < 1 {
		return nil, nil
	}
	members, err := c.store.ZRange(ctx, keyPopular, 0, int64(n)-1)
	if err != nil {
		return nil, err
	}
	products := make([]*core.Product, 0, len(members))
	for _, member := range members {
		id, ok := conv.ParseItemID(member)
		if !ok {
			continue
		}
		p, err := c.Product(ctx, id)
		if err != nil {
			if core.IsStoreNotFound(err) {
				continue
			}
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func matches(p *core.Product, q Query) bool {
	if q.Department != "" && !strings.EqualFold(p.Department, q.Department) {
		return false
	}
	if q.Aisle != "" && !strings.EqualFold(p.Aisle, q.Aisle) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Aisle), needle) &&
			!strings.Contains(strings.ToLower(p.Department), needle) &&
			!strings.Contains(conv.FormatItemID(p.ID), needle) {
			return false
		}
	}
	return true
}
