package dataset

// ComputePopularity 统计样本购物车中各内部索引的出现占比（跳过 padding）。
// 用于为商品目录的热度排序打底，不参与模型计算。
func ComputePopularity(examples []Example) map[int]float64 {
	counts := make(map[int]int)
	total := 0
	for _, ex := range examples {
		for _, idx := range ex.Cart {
			if idx > 0 {
				counts[idx]++
				total++
			}
		}
	}
	popularity := make(map[int]float64, len(counts))
	if total == 0 {
		return popularity
	}
	for idx, cnt := range counts {
		popularity[idx] = float64(cnt) / float64(total)
	}
	return popularity
}
