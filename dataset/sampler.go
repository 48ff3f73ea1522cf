package dataset

import "math/rand"

// Split 按样本顺序切分训练/验证集（前 1-valFrac 训练，后 valFrac 验证）。
func Split(examples []Example, valFrac float64) (train, val []Example) {
	if valFrac <= 0 {
		return examples, nil
	}
	if valFrac >= 1 {
		return nil, examples
	}
	cut := int(float64(len(examples)) * (1 - valFrac))
	return examples[:cut], examples[cut:]
}

// Shuffle 就地打乱样本顺序（训练每个 epoch 前调用，rng 由调用方持有保证可复现）。
func Shuffle(examples []Example, rng *rand.Rand) {
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
}

// Batches 把样本切成连续的 mini-batch（最后一个 batch 可能不满）。
func Batches(examples []Example, batchSize int) [][]Example {
	if batchSize <= 0 {
		batchSize = 1
	}
	out := make([][]Example, 0, (len(examples)+batchSize-1)/batchSize)
	for lo := 0; lo < len(examples); lo += batchSize {
		hi := lo + batchSize
		if hi > len(examples) {
			hi = len(examples)
		}
		out = append(out, examples[lo:hi])
	}
	return out
}
