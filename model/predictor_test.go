package model

import (
	"math"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestEncodeCarts_MaskedMeanPooling(t *testing.T) {
	p := NewPredictor(4, 3, 8, 1)
	p.Emb[1] = []float64{1, 2, 3}
	p.Emb[2] = []float64{3, 2, 1}

	vecs, counts := p.EncodeCarts([][]int{
		{0, 1, 2},    // 两个真实商品
		{0, 0, 1},    // 一个真实商品
		{0, 0, 0},    // 全 padding（空车）
	})

	if want := []float64{2, 2, 2}; !reflect.DeepEqual(vecs[0], want) {
		t.Errorf("vecs[0] = %v, want %v", vecs[0], want)
	}
	if want := []float64{1, 2, 3}; !reflect.DeepEqual(vecs[1], want) {
		t.Errorf("vecs[1] = %v, want %v", vecs[1], want)
	}
	if want := []float64{0, 0, 0}; !reflect.DeepEqual(vecs[2], want) {
		t.Errorf("all-padding cart must encode to the zero vector, got %v", vecs[2])
	}
	if counts[2] != 1 {
		t.Errorf("counts[2] = %v, want clamp to 1", counts[2])
	}
}

func TestEncodeCarts_PaddingRowIgnored(t *testing.T) {
	p := NewPredictor(3, 2, 4, 1)
	// 即使 padding 行被污染，也不得影响 pooling
	p.Emb[0] = []float64{100, 100}
	p.Emb[1] = []float64{4, 6}

	vecs, _ := p.EncodeCarts([][]int{{0, 0, 1}})
	if want := []float64{4, 6}; !reflect.DeepEqual(vecs[0], want) {
		t.Errorf("vecs[0] = %v, want %v", vecs[0], want)
	}
}

func TestSoftmax_SumsToOne(t *testing.T) {
	p := NewPredictor(11, 8, 16, 7)
	p.SetTraining(false)

	logits := p.Forward([][]int{{0, 1, 5, 9}})
	probs := Softmax(logits[0])
	var sum float64
	for _, v := range probs {
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("softmax sum = %v, want 1.0 ± 1e-5", sum)
	}
}

func TestPredictTopK_OrderingAndBounds(t *testing.T) {
	p := NewPredictor(11, 8, 16, 7)
	p.SetTraining(false)

	preds, err := p.PredictTopK([][]int{{1, 2, 3, 0}}, 5)
	if err != nil {
		t.Fatalf("PredictTopK() error = %v", err)
	}
	if len(preds[0]) != 5 {
		t.Fatalf("got %d predictions, want 5", len(preds[0]))
	}
	for i := 1; i < len(preds[0]); i++ {
		prev, cur := preds[0][i-1], preds[0][i]
		if cur.Probability > prev.Probability {
			t.Errorf("probabilities not non-increasing at %d: %v > %v", i, cur.Probability, prev.Probability)
		}
		if cur.Probability == prev.Probability && cur.Index < prev.Index {
			t.Errorf("tie at %d not broken by ascending index", i)
		}
	}

	if _, err := p.PredictTopK([][]int{{1}}, 12); err == nil {
		t.Error("k > vocab size must fail, not clamp")
	}
	if _, err := p.PredictTopK([][]int{{1}}, 0); err == nil {
		t.Error("k = 0 must fail")
	}
}

func TestTopK_TieBreaking(t *testing.T) {
	probs := []float64{0.1, 0.3, 0.3, 0.2, 0.1}
	got := topK(probs, 4)
	want := []Prediction{
		{Index: 1, Probability: 0.3},
		{Index: 2, Probability: 0.3},
		{Index: 3, Probability: 0.2},
		{Index: 0, Probability: 0.1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("topK = %v, want %v", got, want)
	}
}

func TestPredictTopK_Deterministic(t *testing.T) {
	p := NewPredictor(20, 8, 16, 99)
	p.SetTraining(false)

	cart := [][]int{{0, 0, 3, 7, 11}}
	first, err := p.PredictTopK(cart, 10)
	if err != nil {
		t.Fatalf("PredictTopK() error = %v", err)
	}
	second, err := p.PredictTopK(cart, 10)
	if err != nil {
		t.Fatalf("PredictTopK() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("inference is not bit-identical across identical requests")
	}
}

func TestPredictTopK_ConcurrentSharedModel(t *testing.T) {
	p := NewPredictor(30, 8, 16, 11)
	p.SetTraining(false)

	cart := [][]int{{0, 0, 3, 7, 11}}
	want, err := p.PredictTopK(cart, 10)
	if err != nil {
		t.Fatalf("PredictTopK() error = %v", err)
	}

	// 多个请求无锁共享同一个推理模式模型，结果必须与串行一致
	const workers = 8
	results := make([][][]Prediction, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got, err := p.PredictTopK(cart, 10)
				if err != nil {
					t.Errorf("worker %d: PredictTopK() error = %v", w, err)
					return
				}
				results[w] = got
			}
		}(w)
	}
	wg.Wait()

	for w, got := range results {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("worker %d diverged from serial result", w)
		}
	}
	if p.fwd != nil {
		t.Error("eval-mode inference must not populate the forward cache")
	}
}

func TestPredictTopK_RejectsTrainingMode(t *testing.T) {
	p := NewPredictor(6, 4, 8, 3)
	p.SetTraining(true)
	if _, err := p.PredictTopK([][]int{{1, 2, 0}}, 3); err == nil {
		t.Error("top-k decode in training mode must fail instead of toggling shared state")
	}
}

func TestForward_TrainEvalModeDiffer(t *testing.T) {
	p := NewPredictor(6, 4, 8, 3)
	carts := [][]int{{1, 2, 0, 0}, {3, 4, 5, 0}, {2, 2, 1, 0}, {5, 1, 0, 0}}

	p.SetTraining(true)
	p.Forward(carts) // 训练前向更新滑动统计量并应用 dropout

	p.SetTraining(false)
	evalFirst := p.Forward(carts)
	evalSecond := p.Forward(carts)
	if !reflect.DeepEqual(evalFirst, evalSecond) {
		t.Error("eval forward must be deterministic")
	}
}

func TestCoPurchaseScore(t *testing.T) {
	p := NewPredictor(4, 2, 4, 1)
	p.Emb[1] = []float64{1, 0}
	p.Emb[2] = []float64{2, 0}
	p.Emb[3] = []float64{0, 5}

	if got := p.CoPurchaseScore(1, 2); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("parallel embeddings: score = %v, want 1.0", got)
	}
	if got := p.CoPurchaseScore(1, 3); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal embeddings: score = %v, want 0", got)
	}
	if got := p.CoPurchaseScore(0, 1); got != 0 {
		t.Errorf("padding index: score = %v, want 0", got)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	p := NewPredictor(9, 4, 8, 5)
	p.SetTraining(false)
	carts := [][]int{{1, 4, 8, 0}}
	wantLogits := p.Forward(carts)

	ck := p.Snapshot(1.23, map[int]float64{1: 0.4, 5: 0.8}, 3)
	path := filepath.Join(t.TempDir(), "best_model.json")
	if err := ck.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if loaded.VocabSize != 9 || loaded.EmbeddingDim != 4 || loaded.HiddenDim != 8 {
		t.Fatalf("shape = (%d,%d,%d), want (9,4,8)", loaded.VocabSize, loaded.EmbeddingDim, loaded.HiddenDim)
	}
	if loaded.ValLoss != 1.23 || loaded.ValAccuracy[5] != 0.8 {
		t.Errorf("metrics not preserved: %+v", loaded)
	}

	restored := loaded.Restore()
	if restored.Training() {
		t.Error("restored model must start in eval mode")
	}
	gotLogits := restored.Forward(carts)
	for j := range wantLogits[0] {
		if math.Abs(gotLogits[0][j]-wantLogits[0][j]) > 1e-12 {
			t.Fatalf("logit %d = %v, want %v", j, gotLogits[0][j], wantLogits[0][j])
		}
	}
}
