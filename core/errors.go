package core

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 使用场景：
//   - 词表错误：EMPTY_VOCABULARY
//   - 模型错误：INVALID_TOP_K, MODEL_NOT_LOADED
//   - 存储错误：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_TOP_K"）
	Message string // 错误消息
	Module  string // 模块名称（如 "vocab", "model", "store"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound        = "NOT_FOUND"        // 资源不存在
	ErrorCodeNotSupported    = "NOT_SUPPORTED"    // 操作不支持
	ErrorCodeUnavailable     = "UNAVAILABLE"      // 服务不可用
	ErrorCodeInvalidInput    = "INVALID_INPUT"    // 输入无效
	ErrorCodeEmptyVocabulary = "EMPTY_VOCABULARY" // 词表为空（无商品通过频次过滤）
	ErrorCodeInvalidTopK     = "INVALID_TOP_K"    // top-k 超出词表范围
	ErrorCodeModelNotLoaded  = "MODEL_NOT_LOADED" // 模型/词表未加载完成
)

// 模块名称常量
const (
	ModuleVocab   = "vocab"   // 词表模块
	ModuleDataset = "dataset" // 样本生成模块
	ModuleModel   = "model"   // 模型模块
	ModuleServe   = "serve"   // 在线推理模块
	ModuleStore   = "store"   // 存储模块
	ModuleCatalog = "catalog" // 商品目录模块
)

// 领域错误定义（使用统一的 DomainError）
var (
	// ErrEmptyVocabulary 表示没有任何商品达到 min_item_count 频次阈值
	ErrEmptyVocabulary = NewDomainError(ModuleVocab, ErrorCodeEmptyVocabulary, "vocab: no items meet the minimum count threshold")

	// ErrInvalidTopK 表示请求的 k 超出 [1, vocabulary_size] 范围
	ErrInvalidTopK = NewDomainError(ModuleModel, ErrorCodeInvalidTopK, "model: top-k out of range")

	// ErrModelNotLoaded 表示模型或词表尚未成功初始化
	ErrModelNotLoaded = NewDomainError(ModuleServe, ErrorCodeModelNotLoaded, "serve: model or vocabulary not loaded")
)

// IsEmptyVocabulary 检查错误是否为词表为空
func IsEmptyVocabulary(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeEmptyVocabulary
	}
	return false
}

// IsInvalidTopK 检查错误是否为 top-k 越界
func IsInvalidTopK(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeInvalidTopK
	}
	return false
}

// IsModelNotLoaded 检查错误是否为模型未加载
func IsModelNotLoaded(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeModelNotLoaded
	}
	return false
}
