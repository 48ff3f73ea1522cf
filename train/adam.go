package train

import (
	"math"

	"github.com/rushteam/nextcart/model"
)

// paramGrad 是一对对齐的参数/梯度切片视图。
type paramGrad struct {
	value []float64
	grad  []float64
}

// collectParams 枚举模型全部可训练参数。
// embedding 第 0 行（padding）被跳过：它不参与 pooling，必须保持冻结。
func collectParams(p *model.Predictor) []paramGrad {
	var params []paramGrad
	for v := 1; v < p.VocabSize; v++ {
		params = append(params, paramGrad{p.Emb[v], p.GEmb[v]})
	}
	for _, l := range []*model.Linear{p.FC1, p.FC2, p.FC3, p.Out} {
		for o := range l.W {
			params = append(params, paramGrad{l.W[o], l.GW[o]})
		}
		params = append(params, paramGrad{l.B, l.GB})
	}
	for _, bn := range []*model.BatchNorm{p.BN1, p.BN2, p.BN3} {
		params = append(params, paramGrad{bn.Gamma, bn.GGamma})
		params = append(params, paramGrad{bn.Beta, bn.GBeta})
	}
	return params
}

// Adam 优化器（Kingma & Ba, 2015），带偏差修正。
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t      int
	params []paramGrad
	m, v   [][]float64
}

// NewAdam 为模型创建 Adam 优化器，默认 β1=0.9 / β2=0.999 / eps=1e-8。
func NewAdam(p *model.Predictor, lr float64) *Adam {
	params := collectParams(p)
	a := &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-8,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, pg := range params {
		a.m[i] = make([]float64, len(pg.value))
		a.v[i] = make([]float64, len(pg.value))
	}
	return a
}

// Step 用当前梯度更新一次全部参数。
func (a *Adam) Step() {
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, pg := range a.params {
		m, v := a.m[i], a.v[i]
		for j, g := range pg.grad {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			pg.value[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}
