// Package serve 提供在线推理服务：请求解析/ID 换算、模型 top-k 解码、
// 冷启动兜底、规则过滤与 HTTP 接入层。
//
// 设计原则：
// - 显式推理上下文：词表与模型在启动时装配为不可变对象注入服务，请求路径只读
// - 边界显式换算：外部商品 ID 一律为字符串，在入口处一次性换算为内部索引
// - 退化有定义：空车/全未知车走确定的冷启动兜底，而不是报错或未定义行为
package serve

import (
	"context"
	"log/slog"

	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/model"
	"github.com/rushteam/nextcart/pkg/conv"
	"github.com/rushteam/nextcart/rules"
	"github.com/rushteam/nextcart/vocab"
)

const (
	// DefaultTopK 是未显式指定 top_k 时的候选数。
	DefaultTopK = 10
	// MaxTopK 是单次请求允许的最大候选数。
	MaxTopK = 50
	// DefaultMaxCartSize 是推理时保留的购物车尾部长度（与训练窗口一致）。
	DefaultMaxCartSize = 20

	// coldStartProbability 是冷启动兜底候选的占位概率，标记「此分非模型所出」。
	coldStartProbability = 0.1
)

// CartItem 是请求中的一件购物车商品。ProductID 为外部字符串 ID。
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// PredictRequest 是预测请求。TopK 为 0 时取 DefaultTopK。
// UserID 为预留字段，当前模型不做用户个性化。
type PredictRequest struct {
	Cart   []CartItem `json:"cart"`
	TopK   int        `json:"top_k"`
	UserID string     `json:"user_id,omitempty"`
}

// PredictionItem 是一个候选商品及其打分与元数据。
// Score 与 Probability 同值（冷启动兜底时同为占位概率），两个字段都保留
// 是为了兼容按 score 排序的既有消费方。
type PredictionItem struct {
	ProductID   string  `json:"product_id"`
	Probability float64 `json:"probability"`
	Score       float64 `json:"score"`
	Name        string  `json:"name,omitempty"`
	Aisle       string  `json:"aisle,omitempty"`
	Department  string  `json:"department,omitempty"`
}

// CoPurchasePair 是购物车内相邻两件已识别商品的共购分数。
type CoPurchasePair struct {
	ProductA string  `json:"product_a"`
	ProductB string  `json:"product_b"`
	Score    float64 `json:"score"`
}

// PredictResponse 是预测响应。
// ColdStart 为 true 表示购物车为空或全部未识别，候选来自冷启动兜底而非模型。
type PredictResponse struct {
	Predictions  []PredictionItem `json:"predictions"`
	TopK         int              `json:"top_k"`
	CartSize     int              `json:"cart_size"`
	ColdStart    bool             `json:"cold_start"`
	UnknownItems []string         `json:"unknown_items,omitempty"`
	CoPurchase   []CoPurchasePair `json:"co_purchase,omitempty"`
}

// InferenceService 是推理入口。词表与模型在构建后不可变，可被任意并发请求共享
// （模型必须处于推理模式，PredictTopK 内部保证这一点）。
type InferenceService struct {
	vocab       *vocab.Vocabulary
	model       *model.Predictor
	maxCartSize int
	filter      *rules.Filter
	logger      *slog.Logger
}

// Option 配置 InferenceService。
type Option func(*InferenceService)

// WithMaxCartSize 设置推理时保留的购物车尾部长度。
func WithMaxCartSize(n int) Option {
	return func(s *InferenceService) {
		if n > 0 {
			s.maxCartSize = n
		}
	}
}

// WithFilter 挂载一条 CEL 过滤规则，作用于模型候选（冷启动兜底不过滤）。
func WithFilter(f *rules.Filter) Option {
	return func(s *InferenceService) { s.filter = f }
}

// WithLogger 设置结构化日志器。
func WithLogger(l *slog.Logger) Option {
	return func(s *InferenceService) { s.logger = l }
}

// NewInferenceService 装配推理服务。vocab 或 model 为 nil 时服务可以启动，
// 但 Ready 为 false，Predict 返回 ErrModelNotLoaded（允许「先起服务后补工件」的运维路径）。
func NewInferenceService(v *vocab.Vocabulary, m *model.Predictor, opts ...Option) *InferenceService {
	s := &InferenceService{
		vocab:       v,
		model:       m,
		maxCartSize: DefaultMaxCartSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready 返回服务是否已装载词表与模型。
func (s *InferenceService) Ready() bool {
	return s.vocab != nil && s.model != nil
}

// Vocabulary 返回服务持有的词表（未装载时为 nil）。
func (s *InferenceService) Vocabulary() *vocab.Vocabulary { return s.vocab }

// Model 返回服务持有的模型（未装载时为 nil）。
func (s *InferenceService) Model() *model.Predictor { return s.model }

// Predict 执行一次预测：
//  1. 外部 ID 换算为内部索引，未识别项记录后丢弃
//  2. 全部未识别或空车 → 冷启动兜底
//  3. 否则截取尾部 maxCartSize 件、左侧补零，走模型 top-k 解码
//
// top_k 超出 [1, MaxTopK] 返回 ErrInvalidTopK；服务未就绪返回 ErrModelNotLoaded。
func (s *InferenceService) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if !s.Ready() {
		return nil, core.ErrModelNotLoaded
	}
	k := req.TopK
	if k == 0 {
		k = DefaultTopK
	}
	if k < 1 || k > MaxTopK {
		return nil, core.ErrInvalidTopK
	}

	indices, unknown := s.resolveCart(req.Cart)
	if len(indices) == 0 {
		return &PredictResponse{
			Predictions:  s.coldStart(k),
			TopK:         k,
			ColdStart:    true,
			UnknownItems: unknown,
		}, nil
	}

	if len(indices) > s.maxCartSize {
		indices = indices[len(indices)-s.maxCartSize:]
	}
	padded := make([]int, s.maxCartSize)
	copy(padded[s.maxCartSize-len(indices):], indices)

	// 多要一个候选：top-k 里可能混入 padding 类（索引 0），解码时跳过
	ask := k + 1
	if ask > s.model.VocabSize {
		ask = s.model.VocabSize
	}
	batches, err := s.model.PredictTopK([][]int{padded}, ask)
	if err != nil {
		return nil, err
	}

	items := s.decode(batches[0], k)
	resp := &PredictResponse{
		Predictions:  items,
		TopK:         k,
		CartSize:     len(indices),
		UnknownItems: unknown,
		CoPurchase:   s.coPurchase(indices),
	}
	return resp, nil
}

// resolveCart 把请求购物车换算为内部索引序列（保序）。
// 不可解析或不在词表中的 ID 被丢弃并记入 unknown。
func (s *InferenceService) resolveCart(cart []CartItem) (indices []int, unknown []string) {
	for _, item := range cart {
		id, ok := conv.ParseItemID(item.ProductID)
		if !ok {
			unknown = append(unknown, item.ProductID)
			continue
		}
		idx, ok := s.vocab.Lookup(id)
		if !ok {
			unknown = append(unknown, item.ProductID)
			continue
		}
		indices = append(indices, idx)
	}
	return indices, unknown
}

// coldStart 返回确定的兜底候选：词表前 min(k, Size-1) 个商品，索引升序，
// 概率为统一占位值（调用方可据 ColdStart 标志区分来源）。
func (s *InferenceService) coldStart(k int) []PredictionItem {
	n := k
	if max := s.vocab.Size - 1; n > max {
		n = max
	}
	items := make([]PredictionItem, 0, n)
	for idx := 1; idx <= n; idx++ {
		items = append(items, s.enrich(idx, coldStartProbability))
	}
	return items
}

// decode 把内部索引候选换算回外部商品，跳过 padding 类，应用过滤规则，截断到 k 个。
func (s *InferenceService) decode(preds []model.Prediction, k int) []PredictionItem {
	items := make([]PredictionItem, 0, k)
	for _, pred := range preds {
		if len(items) == k {
			break
		}
		if _, ok := s.vocab.ItemAt(pred.Index); !ok {
			continue
		}
		item := s.enrich(pred.Index, pred.Probability)
		if s.filter != nil {
			keep, err := s.filter.Keep(map[string]any{
				"probability": item.Probability,
				"score":       item.Score,
				"product_id":  item.ProductID,
				"name":        item.Name,
				"aisle":       item.Aisle,
				"department":  item.Department,
			})
			if err != nil {
				s.logger.Warn("rule eval failed, keeping candidate",
					"product_id", item.ProductID, "err", err)
			}
			if !keep {
				continue
			}
		}
		items = append(items, item)
	}
	return items
}

// enrich 组装候选条目并附加词表中的商品元数据（缺失时仅有 ID 与概率）。
func (s *InferenceService) enrich(index int, prob float64) PredictionItem {
	id, _ := s.vocab.ItemAt(index)
	item := PredictionItem{
		ProductID:   conv.FormatItemID(id),
		Probability: prob,
		Score:       prob,
	}
	if p := s.vocab.ProductAt(index); p != nil {
		item.Name = p.Name
		item.Aisle = p.Aisle
		item.Department = p.Department
	}
	return item
}

// coPurchase 对购物车内相邻的已识别商品对计算共购分数。
func (s *InferenceService) coPurchase(indices []int) []CoPurchasePair {
	if len(indices) < 2 {
		return nil
	}
	pairs := make([]CoPurchasePair, 0, len(indices)-1)
	for i := 0; i+1 < len(indices); i++ {
		a, okA := s.vocab.ItemAt(indices[i])
		b, okB := s.vocab.ItemAt(indices[i+1])
		if !okA || !okB {
			continue
		}
		pairs = append(pairs, CoPurchasePair{
			ProductA: conv.FormatItemID(a),
			ProductB: conv.FormatItemID(b),
			Score:    s.model.CoPurchaseScore(indices[i], indices[i+1]),
		})
	}
	return pairs
}

// Stats 汇总服务统计信息，供 /stats 接口使用。
type Stats struct {
	NumItems        int   `json:"num_items"`
	VocabularySize  int   `json:"vocabulary_size"`
	EmbeddingDim    int   `json:"embedding_dim"`
	HiddenDim       int   `json:"hidden_dim"`
	ModelParameters int64 `json:"model_parameters"`
}

// Stats 返回当前统计信息；服务未就绪时返回 ErrModelNotLoaded。
func (s *InferenceService) Stats() (*Stats, error) {
	if !s.Ready() {
		return nil, core.ErrModelNotLoaded
	}
	return &Stats{
		NumItems:        s.vocab.Size - 1,
		VocabularySize:  s.vocab.Size,
		EmbeddingDim:    s.model.EmbeddingDim,
		HiddenDim:       s.model.HiddenDim,
		ModelParameters: s.model.ParameterCount(),
	}, nil
}
