package vocab

import (
	"sort"

	"github.com/rushteam/nextcart/core"
)

// PaddingIndex 是保留的 padding 哨兵索引，永远不会分配给真实商品。
const PaddingIndex = 0

// Vocabulary 是商品外部 ID ↔ 内部稠密索引的双射。
//
// 不变量：
//   - ItemToIndex 是到 {1 .. Size-1} 的双射，任何商品都不会映射到 0
//   - IndexToItem[0] == 0（padding 哨兵，不是真实商品）
//   - Size == 保留商品数 + 1（padding 槽位）
//
// 生命周期：构建一次后不可变；训练与在线推理必须成对加载同一份词表工件，
// 否则索引错配会无声地破坏预测结果（系统自身无法检测这种错配）。
type Vocabulary struct {
	ItemToIndex map[int64]int           `json:"item_to_index"`
	IndexToItem []int64                 `json:"index_to_item"`
	Size        int                     `json:"size"`
	Metadata    map[int64]*core.Product `json:"metadata,omitempty"`
}

// Lookup 返回商品的内部索引。商品不在词表中时返回 (0, false)。
func (v *Vocabulary) Lookup(itemID int64) (int, bool) {
	idx, ok := v.ItemToIndex[itemID]
	return idx, ok
}

// ItemAt 返回索引对应的外部商品 ID。索引越界或为 padding 时返回 (0, false)。
func (v *Vocabulary) ItemAt(index int) (int64, bool) {
	if index <= PaddingIndex || index >= v.Size {
		return 0, false
	}
	return v.IndexToItem[index], true
}

// ProductAt 返回索引对应的商品元数据（可能为 nil）。
func (v *Vocabulary) ProductAt(index int) *core.Product {
	id, ok := v.ItemAt(index)
	if !ok || v.Metadata == nil {
		return nil
	}
	return v.Metadata[id]
}

// Validate 校验双射不变量，供工件加载后自检。
func (v *Vocabulary) Validate() error {
	if v.Size != len(v.IndexToItem) || v.Size != len(v.ItemToIndex)+1 {
		return core.NewDomainError(core.ModuleVocab, core.ErrorCodeInvalidInput, "vocab: size does not match mappings")
	}
	for id, idx := range v.ItemToIndex {
		if idx <= PaddingIndex || idx >= v.Size || v.IndexToItem[idx] != id {
			return core.NewDomainError(core.ModuleVocab, core.ErrorCodeInvalidInput, "vocab: mapping is not a bijection")
		}
	}
	return nil
}

// Builder 从原始购买记录构建 Vocabulary：
// 统计全量语料中每个商品的出现次数，低于 MinItemCount 的商品被整体剔除
// （不在映射中出现，而不是映射到 0）。
type Builder struct {
	// MinItemCount 是频次过滤阈值，出现次数低于该值的商品被排除。
	MinItemCount int

	counts map[int64]int
}

// NewBuilder 创建一个新的词表构建器。minItemCount <= 1 表示不过滤。
func NewBuilder(minItemCount int) *Builder {
	return &Builder{
		MinItemCount: minItemCount,
		counts:       make(map[int64]int),
	}
}

// Add 累加一批购买记录的商品出现次数。
func (b *Builder) Add(records ...core.Transaction) {
	for _, r := range records {
		b.counts[r.ItemID]++
	}
}

// AddItem 累加单个商品的一次出现。
func (b *Builder) AddItem(itemID int64) {
	b.counts[itemID]++
}

// Build 生成 Vocabulary。
// 索引分配是保留 ID 集合排序后的纯函数：保留商品 ID 升序排列，依次分配 1..K，
// 与 map 的遍历顺序无关，因此对同一语料和阈值完全可复现。
func (b *Builder) Build() (*Vocabulary, error) {
	retained := make([]int64, 0, len(b.counts))
	for id, cnt := range b.counts {
		if cnt >= b.MinItemCount {
			retained = append(retained, id)
		}
	}
	if len(retained) == 0 {
		return nil, core.ErrEmptyVocabulary
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i] < retained[j] })

	v := &Vocabulary{
		ItemToIndex: make(map[int64]int, len(retained)),
		IndexToItem: make([]int64, len(retained)+1),
		Size:        len(retained) + 1,
	}
	v.IndexToItem[PaddingIndex] = 0
	for i, id := range retained {
		v.ItemToIndex[id] = i + 1
		v.IndexToItem[i+1] = id
	}
	return v, nil
}

// WithMetadata 附加商品元数据（仅保留词表内商品的条目）。
func (v *Vocabulary) WithMetadata(products map[int64]*core.Product) *Vocabulary {
	v.Metadata = make(map[int64]*core.Product, len(v.ItemToIndex))
	for id := range v.ItemToIndex {
		if p, ok := products[id]; ok {
			v.Metadata[id] = p
		}
	}
	return v
}
