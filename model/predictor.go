package model

import (
	"math"
	"math/rand"

	"github.com/rushteam/nextcart/core"
)

// Prediction 是一个候选商品的打分结果。
type Prediction struct {
	Index       int     // 内部索引
	Probability float64 // softmax 概率
}

// Predictor 是「下一件商品」预测模型：
// embedding 表 + 三层残差 MLP + softmax 输出层。
//
// 结构：
//   - CartEncoder: 对购物车索引做 masked mean pooling（padding 位置永不参与）
//   - fc1(D→H) → bn → relu → dropout
//   - fc2(H→H) → bn → relu → dropout，残差相加
//   - fc3(H→H) → bn → relu → dropout，残差相加
//   - fcOut(H→V) 输出原始 logits（不做 softmax）
//
// 训练/推理模式是显式开关（SetTraining）：推理模式关闭 dropout、冻结批归一化
// 滑动统计量，保证同一请求重复推理输出逐位一致。推理模式下前向对模型状态只读，
// 并发请求共享同一实例无需加锁。
type Predictor struct {
	VocabSize    int
	EmbeddingDim int
	HiddenDim    int
	DropoutRate  float64

	// Emb 是 [V][D] 的 embedding 表；第 0 行是 padding，保持全零且从不更新
	Emb  [][]float64
	GEmb [][]float64

	FC1, FC2, FC3, Out *Linear
	BN1, BN2, BN3      *BatchNorm

	training bool
	rng      *rand.Rand

	fwd *forwardCache
}

// forwardCache 保存训练前向的中间量，供 Backward 使用。
type forwardCache struct {
	carts  [][]int
	counts []float64
	x0     [][]float64 // pooled cart vectors
	d1     [][]float64 // block1 输出（block2 输入）
	h2     [][]float64 // block2 残差输出（block3 输入）
	h3     [][]float64 // block3 残差输出（输出层输入）

	mask1, mask2, mask3 [][]bool    // relu 掩码
	drop1, drop2, drop3 [][]float64 // dropout 缩放
}

// NewPredictor 创建一个新模型。vocabSize 含 padding 槽位；seed 决定参数初始化。
func NewPredictor(vocabSize, embeddingDim, hiddenDim int, seed int64) *Predictor {
	rng := rand.New(rand.NewSource(seed))
	p := &Predictor{
		VocabSize:    vocabSize,
		EmbeddingDim: embeddingDim,
		HiddenDim:    hiddenDim,
		DropoutRate:  0.4,
		Emb:          make([][]float64, vocabSize),
		GEmb:         make([][]float64, vocabSize),
		FC1:          NewLinear(embeddingDim, hiddenDim, rng),
		FC2:          NewLinear(hiddenDim, hiddenDim, rng),
		FC3:          NewLinear(hiddenDim, hiddenDim, rng),
		Out:          NewLinear(hiddenDim, vocabSize, rng),
		BN1:          NewBatchNorm(hiddenDim),
		BN2:          NewBatchNorm(hiddenDim),
		BN3:          NewBatchNorm(hiddenDim),
		rng:          rng,
	}
	limit := math.Sqrt(6.0 / float64(vocabSize+embeddingDim))
	for v := 0; v < vocabSize; v++ {
		p.Emb[v] = make([]float64, embeddingDim)
		p.GEmb[v] = make([]float64, embeddingDim)
		if v == 0 {
			continue // padding 行恒为零
		}
		for d := 0; d < embeddingDim; d++ {
			p.Emb[v][d] = rng.Float64()*2*limit - limit
		}
	}
	return p
}

// SetTraining 切换训练/推理模式。
func (p *Predictor) SetTraining(training bool) { p.training = training }

// Training 返回当前是否处于训练模式。
func (p *Predictor) Training() bool { return p.training }

// EncodeCarts 是共享的 CartEncoder：把批量定长购物车编码为 [B][D] 向量。
// masked mean pooling：索引 ≠0 的 embedding 求和除以非 padding 个数（下限 1）。
// 全 padding 的购物车（空车）得到确定的全零向量，而不是除零。
func (p *Predictor) EncodeCarts(carts [][]int) ([][]float64, []float64) {
	out := make([][]float64, len(carts))
	counts := make([]float64, len(carts))
	for b, cart := range carts {
		vec := make([]float64, p.EmbeddingDim)
		n := 0.0
		for _, idx := range cart {
			if idx == 0 {
				continue
			}
			emb := p.Emb[idx]
			for d := range vec {
				vec[d] += emb[d]
			}
			n++
		}
		if n < 1 {
			n = 1
		}
		for d := range vec {
			vec[d] /= n
		}
		out[b] = vec
		counts[b] = n
	}
	return out, counts
}

// Forward 计算批量 logits（[B][V]，未归一化）。
// 训练模式下缓存中间量供 Backward 使用。
func (p *Predictor) Forward(carts [][]int) [][]float64 {
	x0, counts := p.EncodeCarts(carts)

	z1 := p.FC1.Forward(x0)
	a1 := p.BN1.Forward(z1, p.training)
	mask1 := reluForward(a1)
	var drop1 [][]float64
	if p.training {
		drop1 = dropoutForward(a1, p.DropoutRate, p.rng)
	}
	d1 := a1

	z2 := p.FC2.Forward(d1)
	a2 := p.BN2.Forward(z2, p.training)
	mask2 := reluForward(a2)
	var drop2 [][]float64
	if p.training {
		drop2 = dropoutForward(a2, p.DropoutRate, p.rng)
	}
	h2 := addRows(d1, a2)

	z3 := p.FC3.Forward(h2)
	a3 := p.BN3.Forward(z3, p.training)
	mask3 := reluForward(a3)
	var drop3 [][]float64
	if p.training {
		drop3 = dropoutForward(a3, p.DropoutRate, p.rng)
	}
	h3 := addRows(h2, a3)

	logits := p.Out.Forward(h3)

	// 只有训练前向写共享状态；推理前向全程只读，可被并发请求共享
	if p.training {
		p.fwd = &forwardCache{
			carts: carts, counts: counts,
			x0: x0, d1: d1, h2: h2, h3: h3,
			mask1: mask1, mask2: mask2, mask3: mask3,
			drop1: drop1, drop2: drop2, drop3: drop3,
		}
	}
	return logits
}

// Backward 从 dLogits 反向传播，填充所有参数梯度（含 embedding 表）。
// 必须紧随训练模式的 Forward 调用。
func (p *Predictor) Backward(dLogits [][]float64) {
	c := p.fwd

	dH3 := p.Out.Backward(c.h3, dLogits)

	// block3：h3 = h2 + dropout(relu(bn3(fc3(h2))))
	dA3 := copyRows(dH3)
	dropoutBackward(dA3, c.drop3)
	reluBackward(dA3, c.mask3)
	dZ3 := p.BN3.Backward(dA3)
	dH2 := p.FC3.Backward(c.h2, dZ3)
	accumulateRows(dH2, dH3) // 残差捷径

	// block2：h2 = d1 + dropout(relu(bn2(fc2(d1))))
	dA2 := copyRows(dH2)
	dropoutBackward(dA2, c.drop2)
	reluBackward(dA2, c.mask2)
	dZ2 := p.BN2.Backward(dA2)
	dD1 := p.FC2.Backward(c.d1, dZ2)
	accumulateRows(dD1, dH2)

	// block1
	dropoutBackward(dD1, c.drop1)
	reluBackward(dD1, c.mask1)
	dZ1 := p.BN1.Backward(dD1)
	dX0 := p.FC1.Backward(c.x0, dZ1)

	// pooling 反向：梯度均分到非 padding 位置的 embedding 行
	for v := range p.GEmb {
		for d := range p.GEmb[v] {
			p.GEmb[v][d] = 0
		}
	}
	for b, cart := range c.carts {
		inv := 1 / c.counts[b]
		for _, idx := range cart {
			if idx == 0 {
				continue
			}
			g := p.GEmb[idx]
			for d, gv := range dX0[b] {
				g[d] += gv * inv
			}
		}
	}
}

// PredictTopK 对批量购物车输出概率最高的 k 个候选（按概率降序，概率相等按索引升序）。
// k 超出 [1, VocabSize] 时返回 ErrInvalidTopK，不做静默截断。
//
// 必须在推理模式（SetTraining(false)）下调用：推理路径不写任何共享状态，
// 同一个 Predictor 可被任意多个请求无锁并发调用。训练模式下直接拒绝，
// 而不是临时切换模式（切换本身就是一次共享状态写入）。
func (p *Predictor) PredictTopK(carts [][]int, k int) ([][]Prediction, error) {
	if k < 1 || k > p.VocabSize {
		return nil, core.ErrInvalidTopK
	}
	if p.training {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: top-k decode requires eval mode")
	}

	logits := p.Forward(carts)
	out := make([][]Prediction, len(logits))
	for b, row := range logits {
		probs := Softmax(row)
		out[b] = topK(probs, k)
	}
	return out, nil
}

// CoPurchaseScore 计算两个内部索引的共购分数（embedding 余弦相似度）。
func (p *Predictor) CoPurchaseScore(i, j int) float64 {
	if i <= 0 || j <= 0 || i >= p.VocabSize || j >= p.VocabSize {
		return 0
	}
	var dot, ni, nj float64
	for d := 0; d < p.EmbeddingDim; d++ {
		dot += p.Emb[i][d] * p.Emb[j][d]
		ni += p.Emb[i][d] * p.Emb[i][d]
		nj += p.Emb[j][d] * p.Emb[j][d]
	}
	if ni == 0 || nj == 0 {
		return 0
	}
	return dot / (math.Sqrt(ni) * math.Sqrt(nj))
}

// ParameterCount 返回可训练参数总量（用于 /stats）。
func (p *Predictor) ParameterCount() int64 {
	var n int64
	n += int64(p.VocabSize) * int64(p.EmbeddingDim)
	for _, l := range []*Linear{p.FC1, p.FC2, p.FC3, p.Out} {
		n += int64(len(l.W)) * int64(len(l.W[0]))
		n += int64(len(l.B))
	}
	for _, bn := range []*BatchNorm{p.BN1, p.BN2, p.BN3} {
		n += 2 * int64(len(bn.Gamma))
	}
	return n
}

// Softmax 返回数值稳定的 softmax 分布（全类概率和为 1）。
func Softmax(logits []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range logits {
		if v > maxV {
			maxV = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxV)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// topK 选出概率最高的 k 个类，概率相等时按索引升序（显式次级排序键，保证输出稳定）。
func topK(probs []float64, k int) []Prediction {
	out := make([]Prediction, 0, k)
	for idx, pr := range probs {
		pred := Prediction{Index: idx, Probability: pr}
		if len(out) < k {
			out = append(out, pred)
			siftUp(out)
			continue
		}
		if less(out[0], pred) {
			out[0] = pred
			siftDown(out)
		}
	}
	// 堆转有序：概率降序、同概率索引升序
	for end := len(out) - 1; end > 0; end-- {
		out[0], out[end] = out[end], out[0]
		siftDownN(out, end)
	}
	return out
}

// less 定义最小堆序：a 排在 b 前（更差）当 a 概率更小，或概率相等但索引更大。
func less(a, b Prediction) bool {
	if a.Probability != b.Probability {
		return a.Probability < b.Probability
	}
	return a.Index > b.Index
}

func siftUp(h []Prediction) {
	i := len(h) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if !less(h[i], h[parent]) {
			break
		}
		h[i], h[parent] = h[parent], h[i]
		i = parent
	}
}

func siftDown(h []Prediction) { siftDownN(h, len(h)) }

func siftDownN(h []Prediction, n int) {
	i := 0
	for {
		l, r := 2*i+1, 2*i+2
		smallest := i
		if l < n && less(h[l], h[smallest]) {
			smallest = l
		}
		if r < n && less(h[r], h[smallest]) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h[i], h[smallest] = h[smallest], h[i]
		i = smallest
	}
}

func addRows(a, b [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		row := make([]float64, len(a[i]))
		for j := range row {
			row[j] = a[i][j] + b[i][j]
		}
		out[i] = row
	}
	return out
}

func copyRows(a [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		out[i] = append([]float64(nil), a[i]...)
	}
	return out
}

func accumulateRows(dst, src [][]float64) {
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] += src[i][j]
		}
	}
}
