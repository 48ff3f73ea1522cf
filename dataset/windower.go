package dataset

import (
	"context"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/vocab"
)

// Example 是一条监督训练样本。
// Cart 长度恒为 max_cart_size，右对齐（最近的商品在末尾），不足左侧补 0；
// Label 恒为非 0 的真实商品索引。
type Example struct {
	Cart  []int
	Label int
}

// Windower 把按用户分组、按时间排序的购买序列切成 (cart, next-item) 训练样本。
//
// 滑动窗口：对每个位置 i ∈ [MinCartSize, len(seq)-1]，
// cart = seq[max(0, i-MaxCartSize):i]，label = seq[i]。
//
// 词表过滤策略：
//   - label 不在词表中 → 整条样本丢弃
//   - cart 内商品不在词表中 → 该位置映射为 0，与 padding 不可区分（确认过的产品决策）
type Windower struct {
	Vocab *vocab.Vocabulary

	// MinCartSize 是形成样本所需的最短历史长度，序列长度 < MinCartSize+1 的用户贡献 0 条样本
	MinCartSize int

	// MaxCartSize 是窗口上限，更早的历史直接丢弃（不做摘要）
	MaxCartSize int

	// SampleFrac 是用户级采样比例 (0,1]；1.0 表示全量。采样不放回且由 Seed 决定，可复现
	SampleFrac float64

	// Seed 是用户采样的随机种子
	Seed int64

	// MaxConcurrent 是按用户并行切窗的最大并发数（0 表示单协程）
	MaxConcurrent int
}

// NewWindower 创建一个滑动窗口样本生成器，默认 min=1 / max=20 / 全量用户。
func NewWindower(v *vocab.Vocabulary) *Windower {
	return &Windower{
		Vocab:       v,
		MinCartSize: 1,
		MaxCartSize: 20,
		SampleFrac:  1.0,
	}
}

// Examples 把全量购买记录转成训练样本。
// 输出顺序只取决于 (用户 ID 升序, 用户内窗口位置)，与并发调度无关，保证可复现。
func (w *Windower) Examples(ctx context.Context, records []core.Transaction) ([]Example, error) {
	sequences := groupByUser(records)

	users := make([]int64, 0, len(sequences))
	for uid := range sequences {
		users = append(users, uid)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	users = w.sampleUsers(users)

	// 按用户并行切窗；结果按用户位次落槽后顺序拼接
	perUser := make([][]Example, len(users))
	eg, egCtx := errgroup.WithContext(ctx)
	if w.MaxConcurrent > 0 {
		eg.SetLimit(w.MaxConcurrent)
	} else {
		eg.SetLimit(1)
	}
	for i, uid := range users {
		i, seq := i, sequences[uid]
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			perUser[i] = w.windowSequence(seq)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []Example
	for _, exs := range perUser {
		out = append(out, exs...)
	}
	return out, nil
}

// windowSequence 对单个用户的时间序列做滑动窗口。
func (w *Windower) windowSequence(seq []int64) []Example {
	if len(seq) < w.MinCartSize+1 {
		return nil
	}
	var out []Example
	for i := w.MinCartSize; i < len(seq); i++ {
		label, ok := w.Vocab.Lookup(seq[i])
		if !ok {
			continue
		}
		lo := i - w.MaxCartSize
		if lo < 0 {
			lo = 0
		}
		cart := make([]int, w.MaxCartSize)
		window := seq[lo:i]
		offset := w.MaxCartSize - len(window)
		for j, itemID := range window {
			idx, ok := w.Vocab.Lookup(itemID)
			if !ok {
				idx = vocab.PaddingIndex
			}
			cart[offset+j] = idx
		}
		out = append(out, Example{Cart: cart, Label: label})
	}
	return out
}

// sampleUsers 对用户做不放回采样。采样只决定哪些用户贡献样本，不改变切窗算法。
func (w *Windower) sampleUsers(users []int64) []int64 {
	if w.SampleFrac >= 1.0 || w.SampleFrac <= 0 || len(users) == 0 {
		return users
	}
	n := int(float64(len(users)) * w.SampleFrac)
	if n == 0 {
		n = 1
	}
	shuffled := make([]int64, len(users))
	copy(shuffled, users)
	rng := rand.New(rand.NewSource(w.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	picked := shuffled[:n]
	sort.Slice(picked, func(i, j int) bool { return picked[i] < picked[j] })
	return picked
}

// groupByUser 把记录按用户分组并按 (订单序号, 加购顺序) 升序得到时间序列。
func groupByUser(records []core.Transaction) map[int64][]int64 {
	grouped := make(map[int64][]core.Transaction)
	for _, r := range records {
		grouped[r.UserID] = append(grouped[r.UserID], r)
	}
	sequences := make(map[int64][]int64, len(grouped))
	for uid, rs := range grouped {
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].OrderNumber != rs[j].OrderNumber {
				return rs[i].OrderNumber < rs[j].OrderNumber
			}
			return rs[i].CartPosition < rs[j].CartPosition
		})
		seq := make([]int64, len(rs))
		for i, r := range rs {
			seq[i] = r.ItemID
		}
		sequences[uid] = seq
	}
	return sequences
}
