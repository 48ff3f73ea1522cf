package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Checkpoint 是训练产出的唯一工件：模型参数 + 网络形状 + 验证指标。
// 在线推理只从 checkpoint 读取 VocabSize/EmbeddingDim/HiddenDim 重建网络形状，
// 不允许在加载侧另行配置（形状错配必须在加载时暴露）。
//
// checkpoint 必须与训练它的词表工件成对分发；跨词表混用的行为未定义。
type Checkpoint struct {
	VocabSize    int     `json:"vocab_size"`
	EmbeddingDim int     `json:"embedding_dim"`
	HiddenDim    int     `json:"hidden_dim"`
	DropoutRate  float64 `json:"dropout_rate"`

	ValLoss     float64         `json:"val_loss"`
	ValAccuracy map[int]float64 `json:"val_accuracy,omitempty"`
	Epoch       int             `json:"epoch"`

	Emb    [][]float64  `json:"emb"`
	Linear []linearDump `json:"linear"` // fc1, fc2, fc3, out
	Norm   []normDump   `json:"norm"`   // bn1, bn2, bn3
}

type linearDump struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

type normDump struct {
	Gamma   []float64 `json:"gamma"`
	Beta    []float64 `json:"beta"`
	RunMean []float64 `json:"run_mean"`
	RunVar  []float64 `json:"run_var"`
}

// Snapshot 把当前参数打成 checkpoint（深拷贝，后续训练不影响已生成的快照）。
func (p *Predictor) Snapshot(valLoss float64, valAccuracy map[int]float64, epoch int) *Checkpoint {
	ck := &Checkpoint{
		VocabSize:    p.VocabSize,
		EmbeddingDim: p.EmbeddingDim,
		HiddenDim:    p.HiddenDim,
		DropoutRate:  p.DropoutRate,
		ValLoss:      valLoss,
		ValAccuracy:  valAccuracy,
		Epoch:        epoch,
		Emb:          copyRows(p.Emb),
	}
	for _, l := range []*Linear{p.FC1, p.FC2, p.FC3, p.Out} {
		ck.Linear = append(ck.Linear, linearDump{W: copyRows(l.W), B: append([]float64(nil), l.B...)})
	}
	for _, bn := range []*BatchNorm{p.BN1, p.BN2, p.BN3} {
		ck.Norm = append(ck.Norm, normDump{
			Gamma:   append([]float64(nil), bn.Gamma...),
			Beta:    append([]float64(nil), bn.Beta...),
			RunMean: append([]float64(nil), bn.RunMean...),
			RunVar:  append([]float64(nil), bn.RunVar...),
		})
	}
	return ck
}

// Save 将 checkpoint 持久化为 JSON 工件。
func (ck *Checkpoint) Save(path string) error {
	data, err := json.Marshal(ck)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint 读取 checkpoint 工件。
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if len(ck.Linear) != 4 || len(ck.Norm) != 3 || len(ck.Emb) != ck.VocabSize {
		return nil, fmt.Errorf("checkpoint shape mismatch: vocab=%d emb_rows=%d", ck.VocabSize, len(ck.Emb))
	}
	return &ck, nil
}

// Restore 用 checkpoint 的形状与参数重建一个推理模式的模型。
func (ck *Checkpoint) Restore() *Predictor {
	p := NewPredictor(ck.VocabSize, ck.EmbeddingDim, ck.HiddenDim, 0)
	p.DropoutRate = ck.DropoutRate
	p.Emb = copyRows(ck.Emb)
	for i, l := range []*Linear{p.FC1, p.FC2, p.FC3, p.Out} {
		l.W = copyRows(ck.Linear[i].W)
		l.B = append([]float64(nil), ck.Linear[i].B...)
	}
	for i, bn := range []*BatchNorm{p.BN1, p.BN2, p.BN3} {
		bn.Gamma = append([]float64(nil), ck.Norm[i].Gamma...)
		bn.Beta = append([]float64(nil), ck.Norm[i].Beta...)
		bn.RunMean = append([]float64(nil), ck.Norm[i].RunMean...)
		bn.RunVar = append([]float64(nil), ck.Norm[i].RunVar...)
	}
	p.SetTraining(false)
	return p
}
