package serve

import (
	"context"
	"reflect"
	"testing"

	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/model"
	"github.com/rushteam/nextcart/rules"
	"github.com/rushteam/nextcart/vocab"
)

// testService 构造一个 10 商品（词表 Size=11）的就绪服务。
func testService(t *testing.T, opts ...Option) *InferenceService {
	t.Helper()
	b := vocab.NewBuilder(1)
	for id := int64(101); id <= 110; id++ {
		b.AddItem(id)
	}
	v, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	m := model.NewPredictor(v.Size, 8, 16, 42)
	m.SetTraining(false)
	return NewInferenceService(v, m, opts...)
}

func TestPredict_ColdStartEmptyCart(t *testing.T) {
	s := testService(t)
	resp, err := s.Predict(context.Background(), &PredictRequest{Cart: nil, TopK: 5})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !resp.ColdStart {
		t.Error("empty cart must take the cold-start path")
	}
	if len(resp.Predictions) != 5 {
		t.Fatalf("got %d predictions, want 5", len(resp.Predictions))
	}
	// 兜底候选：词表前 5 个商品，ID 升序，占位概率一致
	wantIDs := []string{"101", "102", "103", "104", "105"}
	for i, p := range resp.Predictions {
		if p.ProductID != wantIDs[i] {
			t.Errorf("prediction[%d].ProductID = %s, want %s", i, p.ProductID, wantIDs[i])
		}
		if p.Probability != 0.1 || p.Score != 0.1 {
			t.Errorf("prediction[%d] = {prob %v, score %v}, want both 0.1", i, p.Probability, p.Score)
		}
	}
}

func TestPredict_AllUnknownEqualsEmpty(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	empty, err := s.Predict(ctx, &PredictRequest{TopK: 3})
	if err != nil {
		t.Fatalf("Predict(empty) error = %v", err)
	}
	unknown, err := s.Predict(ctx, &PredictRequest{
		Cart: []CartItem{{ProductID: "99999"}, {ProductID: "not-a-number"}},
		TopK: 3,
	})
	if err != nil {
		t.Fatalf("Predict(unknown) error = %v", err)
	}
	if !unknown.ColdStart {
		t.Error("all-unknown cart must take the cold-start path")
	}
	if !reflect.DeepEqual(empty.Predictions, unknown.Predictions) {
		t.Errorf("all-unknown cart predictions %v differ from empty cart %v",
			unknown.Predictions, empty.Predictions)
	}
	if len(unknown.UnknownItems) != 2 {
		t.Errorf("UnknownItems = %v, want 2 entries", unknown.UnknownItems)
	}
}

func TestPredict_Idempotent(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	req := &PredictRequest{
		Cart: []CartItem{{ProductID: "103"}, {ProductID: "107"}},
		TopK: 4,
	}
	first, err := s.Predict(ctx, req)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	second, err := s.Predict(ctx, req)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated inference differs:\nfirst  = %+v\nsecond = %+v", first, second)
	}
	if first.ColdStart {
		t.Error("known cart must not take the cold-start path")
	}
	if len(first.Predictions) != 4 {
		t.Errorf("got %d predictions, want 4", len(first.Predictions))
	}
	if first.CartSize != 2 {
		t.Errorf("CartSize = %d, want 2", first.CartSize)
	}
	for i, p := range first.Predictions {
		if p.Score != p.Probability {
			t.Errorf("prediction[%d]: score %v != probability %v", i, p.Score, p.Probability)
		}
	}
}

func TestPredict_DropsUnknownKeepsKnown(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	mixed, err := s.Predict(ctx, &PredictRequest{
		Cart: []CartItem{{ProductID: "103"}, {ProductID: "99999"}, {ProductID: "107"}},
		TopK: 4,
	})
	if err != nil {
		t.Fatalf("Predict(mixed) error = %v", err)
	}
	clean, err := s.Predict(ctx, &PredictRequest{
		Cart: []CartItem{{ProductID: "103"}, {ProductID: "107"}},
		TopK: 4,
	})
	if err != nil {
		t.Fatalf("Predict(clean) error = %v", err)
	}
	if !reflect.DeepEqual(mixed.Predictions, clean.Predictions) {
		t.Error("unknown cart items must be dropped without affecting the result")
	}
	if want := []string{"99999"}; !reflect.DeepEqual(mixed.UnknownItems, want) {
		t.Errorf("UnknownItems = %v, want %v", mixed.UnknownItems, want)
	}
}

func TestPredict_TopKValidation(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	for _, k := range []int{-1, 51} {
		if _, err := s.Predict(ctx, &PredictRequest{TopK: k}); !core.IsInvalidTopK(err) {
			t.Errorf("Predict(top_k=%d) error = %v, want INVALID_TOP_K", k, err)
		}
	}
	// k=0 使用默认值
	resp, err := s.Predict(ctx, &PredictRequest{Cart: []CartItem{{ProductID: "105"}}})
	if err != nil {
		t.Fatalf("Predict(default) error = %v", err)
	}
	if resp.TopK != DefaultTopK {
		t.Errorf("TopK = %d, want %d", resp.TopK, DefaultTopK)
	}
	if len(resp.Predictions) != DefaultTopK {
		t.Errorf("got %d predictions, want %d", len(resp.Predictions), DefaultTopK)
	}
}

func TestPredict_NotReady(t *testing.T) {
	s := NewInferenceService(nil, nil)
	if s.Ready() {
		t.Error("service without artifacts must not be ready")
	}
	if _, err := s.Predict(context.Background(), &PredictRequest{TopK: 5}); !core.IsModelNotLoaded(err) {
		t.Errorf("Predict() error = %v, want MODEL_NOT_LOADED", err)
	}
	if _, err := s.Stats(); !core.IsModelNotLoaded(err) {
		t.Errorf("Stats() error = %v, want MODEL_NOT_LOADED", err)
	}
}

func TestPredict_PaddingNeverReturned(t *testing.T) {
	s := testService(t)
	resp, err := s.Predict(context.Background(), &PredictRequest{
		Cart: []CartItem{{ProductID: "101"}},
		TopK: 10, // 全部真实商品
	})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(resp.Predictions) != 10 {
		t.Fatalf("got %d predictions, want 10", len(resp.Predictions))
	}
	seen := make(map[string]bool)
	for _, p := range resp.Predictions {
		if p.ProductID == "0" || p.ProductID == "" {
			t.Errorf("padding leaked into predictions: %+v", p)
		}
		if seen[p.ProductID] {
			t.Errorf("duplicate candidate %s", p.ProductID)
		}
		seen[p.ProductID] = true
	}
	for i := 1; i < len(resp.Predictions); i++ {
		if resp.Predictions[i].Probability > resp.Predictions[i-1].Probability {
			t.Errorf("predictions not sorted by probability at %d", i)
		}
	}
}

func TestPredict_RuleFilter(t *testing.T) {
	f, err := rules.NewFilter(`product_id != "101"`)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	s := testService(t, WithFilter(f))
	resp, err := s.Predict(context.Background(), &PredictRequest{
		Cart: []CartItem{{ProductID: "105"}},
		TopK: 10,
	})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for _, p := range resp.Predictions {
		if p.ProductID == "101" {
			t.Error("filtered product must not appear in predictions")
		}
	}
}

func TestStats(t *testing.T) {
	s := testService(t)
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.NumItems != 10 || stats.VocabularySize != 11 {
		t.Errorf("stats = %+v, want 10 items / size 11", stats)
	}
	if stats.ModelParameters <= 0 {
		t.Errorf("ModelParameters = %d, want > 0", stats.ModelParameters)
	}
}
