// Package errors 提供 revtrail 统一的错误码体系。
//
// 采集链路（capture）、存储链路（store）与展示链路（resolve）各自对应一个错误码，
// 调用方通过 IsErrorCode / errors.Is 判断错误类别，而不是比较错误文本。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
)

// ErrorCode 错误代码
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"

	// 采集、写入与展示
	ErrCodeCapture            ErrorCode = "CAPTURE_ERROR"
	ErrCodeStorageWrite       ErrorCode = "STORAGE_WRITE_ERROR"
	ErrCodeRelationResolution ErrorCode = "RELATION_RESOLUTION_ERROR"
	ErrCodeFormatParse        ErrorCode = "FORMAT_PARSE_ERROR"

	// 基础设施
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
)

// IError 带错误码的错误
type IError interface {
	error
	Code() ErrorCode
	// Details 附加的结构化上下文，只读
	Details() map[string]any
	// WithContext 返回附加了一条详情的副本
	WithContext(key string, value any) IError
}

// AppError IError 的唯一实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message}
}

// WrapError 以 code 包装 err，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err}
}

func (e *AppError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *AppError) Code() ErrorCode { return e.code }

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) Details() map[string]any {
	if e.details == nil {
		return map[string]any{}
	}
	return e.details
}

func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	maps.Copy(details, e.details)
	details[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: details}
}

// Is 同错误码的 AppError 视为同一类错误，否则沿 cause 链继续比较
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return t.code == e.code
	}
	return e.cause != nil && stdErrors.Is(e.cause, target)
}

// IsErrorCode 错误链上任一 AppError 的错误码为 code
func IsErrorCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for stdErrors.As(err, &appErr) {
		if appErr.code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}

// GetErrorCode 最外层 AppError 的错误码；非 AppError 视为内部错误
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

func IsNotFound(err error) bool    { return IsErrorCode(err, ErrCodeNotFound) }
func IsValidation(err error) bool  { return IsErrorCode(err, ErrCodeValidation) }
func IsFormatParse(err error) bool { return IsErrorCode(err, ErrCodeFormatParse) }
