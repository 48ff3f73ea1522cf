// Package store 提供 core.Store / core.KeyValueStore 的具体实现。
//
// 当前后端：
//   - MemoryStore：进程内实现，用于测试/开发/单机部署
//   - RedisStore：生产环境常用，商品目录与热度排序可跨进程共享
package store
