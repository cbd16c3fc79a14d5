package gateway

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

// ErrorType 是分类车道的失败分类。三种取值是对下游的既定契约，
// 不能随意更名。
type ErrorType string

const (
	// ErrorTypeTimeout 表示竞速输给了固定截止时间。
	ErrorTypeTimeout ErrorType = "timeout_error"
	// ErrorTypeNetwork 表示传输层失败，也是无法识别时的兜底分类。
	ErrorTypeNetwork ErrorType = "network_error"
	// ErrorTypeAPI 表示上游可达但报告了应用级错误（状态码或正文字段）。
	ErrorTypeAPI ErrorType = "api_error"
)

// Envelope 是合成错误信封。它总是以传输成功（HTTP 200）的形式下发，
// 让页面只根据正文里的 error 字段分支，而不用捕获传输异常。
type Envelope struct {
	Error     bool      `json:"error"`
	Message   string    `json:"message"`
	ErrorType ErrorType `json:"errorType"`
	Timestamp string    `json:"timestamp"`
}

// NewEnvelope 构造一个带 ISO-8601 时间戳的错误信封。
func NewEnvelope(message string, errType ErrorType, now time.Time) Envelope {
	return Envelope{
		Error:     true,
		Message:   message,
		ErrorType: errType,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// APIError 标记"上游可达但业务失败"的错误，分类时稳定映射到 api_error。
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// errDeadlineLost 由竞速计时器产生，包装 context.DeadlineExceeded
// 以便结构化分类直接识别。
var errDeadlineLost = errors.New("predict request timed out")

// Classify 把底层失败映射到 ErrorType。优先使用结构化的错误类型；
// 字符串匹配只作为最后的兜底，默认落到 network_error。
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNetwork
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ErrorTypeAPI
	}

	if errors.Is(err, errDeadlineLost) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	return classifyByMessage(err.Error())
}

// classifyByMessage 按子串匹配分类，保留原有优先级：
// 超时字样 → 网络字样 → "API Error" 标记 → 兜底 network_error。
func classifyByMessage(message string) ErrorType {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(lower, "failed to fetch") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "connection"):
		return ErrorTypeNetwork
	case strings.Contains(lower, "api error"):
		return ErrorTypeAPI
	default:
		return ErrorTypeNetwork
	}
}
