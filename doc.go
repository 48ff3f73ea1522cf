// Package nextcart 是一个购物车「下一件商品」预测系统（Next-Item Prediction）。
//
// 设计要点：
// - Vocabulary-first: 商品 ID ↔ 稠密索引的双射是训练/推理正确性的根基（索引 0 恒为 padding）
// - 共享编码: 训练前向与在线推理共用同一个 masked mean pooling 的 CartEncoder
// - 显式推理上下文: 模型与词表在启动时构建为不可变对象注入 handler，而非全局可变单例
package nextcart

import "github.com/rushteam/nextcart/serve"

// 轻量 facade：便于用户直接 import "nextcart" 使用核心抽象。
type InferenceService = serve.InferenceService
type PredictRequest = serve.PredictRequest
type PredictResponse = serve.PredictResponse
