package train

import (
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/dataset"
	"github.com/rushteam/nextcart/model"
)

// Config 是训练超参数。
type Config struct {
	EmbeddingDim   int     `yaml:"embedding_dim"`
	HiddenDim      int     `yaml:"hidden_dim"`
	BatchSize      int     `yaml:"batch_size"`
	Epochs         int     `yaml:"epochs"`
	LearningRate   float64 `yaml:"learning_rate"`
	KValues        []int   `yaml:"k_values"`        // top-k accuracy 的 k 取值
	Seed           int64   `yaml:"seed"`            // 参数初始化与 epoch 洗牌种子
	CheckpointPath string  `yaml:"checkpoint_path"` // 最优 checkpoint 落盘路径；空表示由调用方决定
}

// DefaultConfig 返回对齐原始训练脚本的默认超参数。
// CheckpointPath 留空：训练入口会回退到工件配置的 checkpoint 路径，
// 保证默认配置下训练写出的文件就是推理服务读取的文件。
func DefaultConfig() Config {
	return Config{
		EmbeddingDim: 128,
		HiddenDim:    256,
		BatchSize:    256,
		Epochs:       8,
		LearningRate: 0.001,
		KValues:      []int{1, 5, 10},
		Seed:         1,
	}
}

// Trainer 是单线程训练控制循环：逐 batch 顺序执行前向/反向/优化器步进，
// 按验证 loss 保留最优 checkpoint。
type Trainer struct {
	Model  *model.Predictor
	Config Config
	Logger *slog.Logger

	opt *Adam
	rng *rand.Rand
}

// New 创建 Trainer 并初始化模型与优化器。
func New(vocabSize int, cfg Config, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	m := model.NewPredictor(vocabSize, cfg.EmbeddingDim, cfg.HiddenDim, cfg.Seed)
	return &Trainer{
		Model:  m,
		Config: cfg,
		Logger: logger,
		opt:    NewAdam(m, cfg.LearningRate),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Fit 训练模型并返回验证 loss 最优的 checkpoint。
// CheckpointPath 非空时，每次刷新最优都会落盘。
func (t *Trainer) Fit(trainSet, valSet []dataset.Example) (*model.Checkpoint, error) {
	best := math.Inf(1)
	var bestCk *model.Checkpoint

	for epoch := 1; epoch <= t.Config.Epochs; epoch++ {
		start := time.Now()
		dataset.Shuffle(trainSet, t.rng)
		trainLoss := t.trainEpoch(trainSet)

		valLoss, valAcc := t.Evaluate(valSet)
		t.Logger.Info("epoch finished",
			"epoch", epoch,
			"train_loss", trainLoss,
			"val_loss", valLoss,
			"val_accuracy", formatAccuracy(valAcc),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)

		if valLoss < best {
			best = valLoss
			bestCk = t.Model.Snapshot(valLoss, valAcc, epoch)
			if t.Config.CheckpointPath != "" {
				if err := bestCk.Save(t.Config.CheckpointPath); err != nil {
					return nil, err
				}
				t.Logger.Info("saved best checkpoint", "path", t.Config.CheckpointPath, "val_loss", valLoss)
			}
		}
	}
	// 验证 loss 非有限（NaN）或 epoch 数为 0 时没有任何快照可返回
	if bestCk == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "train: no epoch produced a finite validation loss")
	}
	return bestCk, nil
}

// trainEpoch 跑一个 epoch，返回平均 batch loss。
func (t *Trainer) trainEpoch(examples []dataset.Example) float64 {
	t.Model.SetTraining(true)
	defer t.Model.SetTraining(false)

	var totalLoss float64
	batches := dataset.Batches(examples, t.Config.BatchSize)
	for _, batch := range batches {
		carts, labels := tensors(batch)
		logits := t.Model.Forward(carts)
		loss, dLogits := crossEntropy(logits, labels)
		t.Model.Backward(dLogits)
		t.opt.Step()
		totalLoss += loss
	}
	if len(batches) == 0 {
		return 0
	}
	return totalLoss / float64(len(batches))
}

// Evaluate 在推理模式下计算平均 loss 与各 k 的 top-k accuracy。
func (t *Trainer) Evaluate(examples []dataset.Example) (float64, map[int]float64) {
	t.Model.SetTraining(false)

	kValues := t.Config.KValues
	correct := make(map[int]int, len(kValues))
	acc := make(map[int]float64, len(kValues))
	if len(examples) == 0 {
		return 0, acc
	}

	var totalLoss float64
	batches := dataset.Batches(examples, t.Config.BatchSize)
	for _, batch := range batches {
		carts, labels := tensors(batch)
		logits := t.Model.Forward(carts)
		loss, _ := crossEntropy(logits, labels)
		totalLoss += loss

		for b, row := range logits {
			rank := labelRank(row, labels[b])
			for _, k := range kValues {
				if rank < k {
					correct[k]++
				}
			}
		}
	}
	for _, k := range kValues {
		acc[k] = float64(correct[k]) / float64(len(examples))
	}
	return totalLoss / float64(len(batches)), acc
}

// crossEntropy 计算批平均交叉熵与对 logits 的梯度。
func crossEntropy(logits [][]float64, labels []int) (float64, [][]float64) {
	n := len(logits)
	var loss float64
	dLogits := make([][]float64, n)
	for b, row := range logits {
		probs := model.Softmax(row)
		p := probs[labels[b]]
		if p < 1e-12 {
			p = 1e-12
		}
		loss += -math.Log(p)

		grad := probs // softmax 输出直接复用为梯度缓冲
		grad[labels[b]] -= 1
		for j := range grad {
			grad[j] /= float64(n)
		}
		dLogits[b] = grad
	}
	return loss / float64(n), dLogits
}

// labelRank 返回 label 在该样本打分中的名次（0 为最高）。
// 与 PredictTopK 的次级排序键一致：同分时索引更小者名次更靠前。
func labelRank(logits []float64, label int) int {
	target := logits[label]
	rank := 0
	for j, v := range logits {
		if v > target || (v == target && j < label) {
			rank++
		}
	}
	return rank
}

func tensors(batch []dataset.Example) ([][]int, []int) {
	carts := make([][]int, len(batch))
	labels := make([]int, len(batch))
	for i, ex := range batch {
		carts[i] = ex.Cart
		labels[i] = ex.Label
	}
	return carts, labels
}

func formatAccuracy(acc map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(acc))
	for k, v := range acc {
		out[k] = math.Round(v*1e4) / 1e4
	}
	return out
}
