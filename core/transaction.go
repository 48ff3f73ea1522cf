package core

// Transaction 是一条原始购买记录：某用户在某次订单中把某商品加入购物车。
// 同一用户的记录按 (OrderNumber, CartPosition) 升序构成其完整的购买序列。
type Transaction struct {
	UserID       int64 // 用户 ID
	OrderNumber  int   // 订单序号（用户内递增，主排序键）
	CartPosition int   // 订单内加购顺序（次排序键）
	ItemID       int64 // 商品外部 ID
}

// Product 是商品元数据，仅用于响应 enrich 与目录浏览，不参与模型计算。
type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Aisle      string `json:"aisle,omitempty"`
	Department string `json:"department,omitempty"`
}
