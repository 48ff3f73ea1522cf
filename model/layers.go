package model

import (
	"math"
	"math/rand"
)

// Linear 是全连接层 y = W·x + b。
// W 形状为 [out][in]，与批量输入逐行相乘。
type Linear struct {
	W [][]float64
	B []float64

	// GW / GB 是最近一次 Backward 计算的梯度
	GW [][]float64
	GB []float64
}

// NewLinear 创建一个全连接层，Xavier 均匀初始化。
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	limit := math.Sqrt(6.0 / float64(in+out))
	l := &Linear{
		W:  make([][]float64, out),
		B:  make([]float64, out),
		GW: make([][]float64, out),
		GB: make([]float64, out),
	}
	for o := 0; o < out; o++ {
		l.W[o] = make([]float64, in)
		l.GW[o] = make([]float64, in)
		for i := 0; i < in; i++ {
			l.W[o][i] = rng.Float64()*2*limit - limit
		}
	}
	return l
}

// Forward 计算批量前向：y[b][o] = B[o] + Σ_i W[o][i]·x[b][i]。
func (l *Linear) Forward(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for b, row := range x {
		y := make([]float64, len(l.W))
		for o, w := range l.W {
			sum := l.B[o]
			for i, v := range row {
				sum += w[i] * v
			}
			y[o] = sum
		}
		out[b] = y
	}
	return out
}

// Backward 计算并保存参数梯度，返回对输入的梯度。
// x 必须是本次 Forward 的输入。
func (l *Linear) Backward(x, dy [][]float64) [][]float64 {
	for o := range l.GW {
		for i := range l.GW[o] {
			l.GW[o][i] = 0
		}
		l.GB[o] = 0
	}
	dx := make([][]float64, len(x))
	for b := range x {
		dx[b] = make([]float64, len(x[b]))
	}
	for b, row := range x {
		for o, g := range dy[b] {
			if g == 0 {
				continue
			}
			l.GB[o] += g
			w := l.W[o]
			gw := l.GW[o]
			for i, v := range row {
				gw[i] += g * v
				dx[b][i] += g * w[i]
			}
		}
	}
	return dx
}

// BatchNorm 是一维批归一化。
// 训练模式使用 batch 统计量并更新滑动均值/方差；
// 推理模式只读滑动统计量（隐藏可变状态被显式模式开关控制，见 Predictor.SetTraining）。
type BatchNorm struct {
	Gamma, Beta      []float64
	RunMean, RunVar  []float64
	Momentum, Eps    float64
	GGamma, GBeta    []float64

	// 反向传播缓存（仅训练模式填充）
	xhat   [][]float64
	invStd []float64
}

// NewBatchNorm 创建一个批归一化层（momentum 0.1，eps 1e-5，对齐常见默认值）。
func NewBatchNorm(dim int) *BatchNorm {
	bn := &BatchNorm{
		Gamma:    make([]float64, dim),
		Beta:     make([]float64, dim),
		RunMean:  make([]float64, dim),
		RunVar:   make([]float64, dim),
		Momentum: 0.1,
		Eps:      1e-5,
		GGamma:   make([]float64, dim),
		GBeta:    make([]float64, dim),
	}
	for j := range bn.Gamma {
		bn.Gamma[j] = 1
		bn.RunVar[j] = 1
	}
	return bn
}

// Forward 计算批归一化。training 为真时使用 batch 统计量并更新滑动统计量。
func (bn *BatchNorm) Forward(x [][]float64, training bool) [][]float64 {
	n := len(x)
	dim := len(bn.Gamma)
	out := make([][]float64, n)
	for b := range out {
		out[b] = make([]float64, dim)
	}

	if !training {
		for j := 0; j < dim; j++ {
			invStd := 1 / math.Sqrt(bn.RunVar[j]+bn.Eps)
			for b := 0; b < n; b++ {
				out[b][j] = bn.Gamma[j]*(x[b][j]-bn.RunMean[j])*invStd + bn.Beta[j]
			}
		}
		return out
	}

	bn.xhat = make([][]float64, n)
	for b := range bn.xhat {
		bn.xhat[b] = make([]float64, dim)
	}
	bn.invStd = make([]float64, dim)

	for j := 0; j < dim; j++ {
		var mean float64
		for b := 0; b < n; b++ {
			mean += x[b][j]
		}
		mean /= float64(n)
		var variance float64
		for b := 0; b < n; b++ {
			d := x[b][j] - mean
			variance += d * d
		}
		variance /= float64(n)

		invStd := 1 / math.Sqrt(variance+bn.Eps)
		bn.invStd[j] = invStd
		for b := 0; b < n; b++ {
			xhat := (x[b][j] - mean) * invStd
			bn.xhat[b][j] = xhat
			out[b][j] = bn.Gamma[j]*xhat + bn.Beta[j]
		}

		// 滑动统计量：方差按无偏估计（n>1 时）
		runVar := variance
		if n > 1 {
			runVar = variance * float64(n) / float64(n-1)
		}
		bn.RunMean[j] = (1-bn.Momentum)*bn.RunMean[j] + bn.Momentum*mean
		bn.RunVar[j] = (1-bn.Momentum)*bn.RunVar[j] + bn.Momentum*runVar
	}
	return out
}

// Backward 计算批归一化的反向传播（依赖训练模式 Forward 的缓存）。
func (bn *BatchNorm) Backward(dy [][]float64) [][]float64 {
	n := len(dy)
	dim := len(bn.Gamma)
	dx := make([][]float64, n)
	for b := range dx {
		dx[b] = make([]float64, dim)
	}
	for j := 0; j < dim; j++ {
		var sumDy, sumDyXhat float64
		for b := 0; b < n; b++ {
			sumDy += dy[b][j]
			sumDyXhat += dy[b][j] * bn.xhat[b][j]
		}
		bn.GGamma[j] = sumDyXhat
		bn.GBeta[j] = sumDy

		scale := bn.Gamma[j] * bn.invStd[j] / float64(n)
		for b := 0; b < n; b++ {
			dx[b][j] = scale * (float64(n)*dy[b][j] - sumDy - bn.xhat[b][j]*sumDyXhat)
		}
	}
	return dx
}

// reluForward 就地应用 ReLU，返回掩码（正值位置为 true）。
func reluForward(x [][]float64) [][]bool {
	mask := make([][]bool, len(x))
	for b, row := range x {
		mask[b] = make([]bool, len(row))
		for i, v := range row {
			if v > 0 {
				mask[b][i] = true
			} else {
				row[i] = 0
			}
		}
	}
	return mask
}

// reluBackward 就地把掩码外位置的梯度清零。
func reluBackward(dy [][]float64, mask [][]bool) {
	for b, row := range dy {
		for i := range row {
			if !mask[b][i] {
				row[i] = 0
			}
		}
	}
}

// dropoutForward 应用 inverted dropout，就地缩放并返回缩放系数矩阵。
// rate <= 0 或推理模式下返回 nil（恒等）。
func dropoutForward(x [][]float64, rate float64, rng *rand.Rand) [][]float64 {
	if rate <= 0 {
		return nil
	}
	keep := 1 - rate
	scale := make([][]float64, len(x))
	for b, row := range x {
		scale[b] = make([]float64, len(row))
		for i := range row {
			if rng.Float64() < rate {
				row[i] = 0
			} else {
				row[i] /= keep
				scale[b][i] = 1 / keep
			}
		}
	}
	return scale
}

// dropoutBackward 就地按前向的缩放系数回传梯度。
func dropoutBackward(dy, scale [][]float64) {
	if scale == nil {
		return
	}
	for b, row := range dy {
		for i := range row {
			row[i] *= scale[b][i]
		}
	}
}
