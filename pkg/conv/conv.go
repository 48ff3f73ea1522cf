// Package conv 提供类型转换工具，集中定义边界层的 ID 解析/格式化契约。
package conv

import "strconv"

// ParseItemID 是外部商品 ID 的显式解析契约：
// 上游系统以字符串传递商品 ID，内部统一使用 int64。
// 解析失败（非十进制整数）返回 false，由调用方决定丢弃策略，而非隐式 try/except。
func ParseItemID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FormatItemID 将内部 int64 商品 ID 格式化为边界层字符串。
func FormatItemID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}
