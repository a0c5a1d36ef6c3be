package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind API错误分类
type Kind int

const (
	// KindTransport 网络不可达、超时或请求被取消
	KindTransport Kind = iota
	// KindAuth 401，令牌缺失或失效
	KindAuth
	// KindValidation 客户端校验失败或服务端400
	KindValidation
	// KindNotFound 404
	KindNotFound
	// KindConflict 409
	KindConflict
	// KindServer 5xx 或 success=false
	KindServer
	// KindDecode 响应体无法解析
	KindDecode
)

// String 实现fmt.Stringer
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// APIError 所有请求失败统一转换成的错误类型
type APIError struct {
	Kind    Kind
	Status  int    // HTTP状态码，传输错误时为0
	Message string // 服务端返回的消息，缺失时为通用提示
	Op      string // 例如 "POST /api/rules"
	Err     error  // 底层错误
}

// Error 实现error接口
func (e *APIError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap 返回底层错误
func (e *APIError) Unwrap() error {
	return e.Err
}

// kindForStatus 根据HTTP状态码确定错误分类
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// fallbackMessage 服务端未提供消息时使用的通用提示
func fallbackMessage(status int) string {
	return fmt.Sprintf("request failed with status %d", status)
}

func newStatusError(op string, status int, message string) *APIError {
	if message == "" {
		message = fallbackMessage(status)
	}
	return &APIError{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: message,
		Op:      op,
	}
}

func newTransportError(op string, err error) *APIError {
	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "request canceled"
	} else if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &APIError{Kind: KindTransport, Message: msg, Op: op, Err: err}
}

func newDecodeError(op string, status int, err error) *APIError {
	return &APIError{
		Kind:    KindDecode,
		Status:  status,
		Message: fmt.Sprintf("invalid response: %v", err),
		Op:      op,
		Err:     err,
	}
}

// ValidationError 构造客户端校验错误，不会发出请求
func ValidationError(message string) *APIError {
	return &APIError{Kind: KindValidation, Message: message}
}

// IsKind 判断错误链中是否有指定分类的APIError
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// IsUnauthorized 是否为401错误
func IsUnauthorized(err error) bool {
	return IsKind(err, KindAuth)
}

// IsNotFound 是否为404错误
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// ErrorMessage 返回适合展示给用户的错误消息
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
