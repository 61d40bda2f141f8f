package types

import (
	"errors"
	"fmt"
)

// ErrorCode 全模块统一的错误码
type ErrorCode string

// 存储错误码
const (
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrSerialization      ErrorCode = "SERIALIZATION"
	ErrNotFound           ErrorCode = "NOT_FOUND"
)

// LLM 错误码
const (
	ErrLLM         ErrorCode = "LLM_ERROR"
	ErrParse       ErrorCode = "PARSE_ERROR"
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	ErrTimeout     ErrorCode = "TIMEOUT"
)

// 编排错误码
const (
	ErrConfig         ErrorCode = "CONFIG_ERROR"
	ErrStageViolation ErrorCode = "STAGE_VIOLATION"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
)

// Error 带错误码、消息与元数据的结构化错误
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层原因
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 用错误码和消息创建 Error
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 附加底层原因
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable 标记是否可重试
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider 设置提供商名称
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError 沿错误链查找 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode 提取错误码
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode 错误链上任一位置是否带有指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewStageViolation 在阶段之外执行操作
func NewStageViolation(current, attempted Stage) *Error {
	return NewError(ErrStageViolation,
		fmt.Sprintf("cannot move from stage %q to %q", current, attempted))
}

// NewConfigError 配置项缺失或无效
func NewConfigError(field, reason string) *Error {
	return NewError(ErrConfig, fmt.Sprintf("%s: %s", field, reason))
}

// WrapLLMError 包装提供商错误，保留可重试标记
func WrapLLMError(op string, cause error) *Error {
	return NewError(ErrLLM, op+" failed").
		WithCause(cause).
		WithRetryable(IsRetryable(cause))
}
