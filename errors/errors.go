// Package errors 提供库存核心的统一错误类型与错误代码
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
//
// 错误分类对应各自的处理策略：
//   - 验证错误：输入非法，永不重试，直接返回调用方
//   - 未找到：读取/条件写入路径的预期结果，通过 IsNotFound 判定，不作为异常抛出
//   - 存储错误：存储不可达或操作失败，记录日志后向调用方传播，命令中止且不追加事件
//   - 连接错误：监听器连接断开，触发无上限的延迟重连循环，对进程永不致命
//   - 消息处理错误：单条消息处理失败，记录日志后仍然确认该消息
const (
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeStorage           ErrorCode = "STORAGE_ERROR"
	ErrCodeBrokerConnection  ErrorCode = "BROKER_CONNECTION_ERROR"
	ErrCodeMessageProcessing ErrorCode = "MESSAGE_PROCESSING_ERROR"
)

// AppError 应用错误实现
//
// 携带错误代码、消息、原因与上下文详情，支持 errors.Is / errors.As。
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) *AppError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
	}
}

// WrapError 包装错误，保留原因链
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
	}
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code 获取错误代码
func (e *AppError) Code() ErrorCode { return e.code }

// Message 获取错误消息
func (e *AppError) Message() string { return e.message }

// Cause 获取原始错误
func (e *AppError) Cause() error { return e.cause }

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 检查是否为指定类型的错误（按错误代码比较）
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error { return e.cause }

// WithContext 添加上下文详情，返回新错误
func (e *AppError) WithContext(key string, value any) *AppError {
	details := make(map[string]any, len(e.details)+1)
	for k, v := range e.details {
		details[k] = v
	}
	details[key] = value
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: details,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(format string, args ...any) *AppError {
	return NewError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(format string, args ...any) *AppError {
	return NewError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// NewStorageError 创建存储错误
func NewStorageError(message string, cause error) *AppError {
	if cause == nil {
		return NewError(ErrCodeStorage, message)
	}
	return WrapError(cause, ErrCodeStorage, message)
}

// NewBrokerConnectionError 创建消息代理连接错误
func NewBrokerConnectionError(message string, cause error) *AppError {
	if cause == nil {
		return NewError(ErrCodeBrokerConnection, message)
	}
	return WrapError(cause, ErrCodeBrokerConnection, message)
}

// NewMessageProcessingError 创建消息处理错误
func NewMessageProcessingError(message string, cause error) *AppError {
	if cause == nil {
		return NewError(ErrCodeMessageProcessing, message)
	}
	return WrapError(cause, ErrCodeMessageProcessing, message)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool { return IsErrorCode(err, ErrCodeValidation) }

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool { return IsErrorCode(err, ErrCodeNotFound) }

// IsStorage 检查是否为存储错误
func IsStorage(err error) bool { return IsErrorCode(err, ErrCodeStorage) }

// IsBrokerConnection 检查是否为连接错误
func IsBrokerConnection(err error) bool { return IsErrorCode(err, ErrCodeBrokerConnection) }

// IsErrorCode 检查是否为指定错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码，非 AppError 一律视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}
