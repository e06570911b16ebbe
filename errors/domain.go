package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
)

// 哨兵错误，只用于 errors.Is 按错误码比较
var (
	ErrNotFound           = NewError(ErrCodeNotFound, "not found")
	ErrStorageWrite       = NewError(ErrCodeStorageWrite, "revision write failed")
	ErrRelationResolution = NewError(ErrCodeRelationResolution, "relation resolution failed")
	ErrFormatParse        = NewError(ErrCodeFormatParse, "format parse failed")
)

func NewValidationError(msg string) error {
	return NewError(ErrCodeValidation, msg)
}

func NewNotFoundError(format string, args ...any) error {
	return NewError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// NewFormatParseError 格式化器 formatter 无法解析 value
func NewFormatParseError(formatter string, value any, cause error) error {
	msg := fmt.Sprintf("%s 无法解析值 %q", formatter, fmt.Sprint(value))
	var e IError = &AppError{code: ErrCodeFormatParse, message: msg, cause: cause}
	return e.WithContext("formatter", formatter)
}

// NewRelationError subjectType 上的关联 relation 无法解析
func NewRelationError(subjectType, relation string, cause error) error {
	return &AppError{
		code:    ErrCodeRelationResolution,
		message: fmt.Sprintf("关联 %s 在 %s 上不可用", relation, subjectType),
		cause:   cause,
	}
}

// WrapDatabase 包装驱动层错误
//
// sql.ErrNoRows 归为 NOT_FOUND；取消与超时保留原始错误以便 errors.Is 判断；
// 已带错误码的错误原样返回。
func WrapDatabase(err error, operation string) error {
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, sql.ErrNoRows):
		return WrapError(err, ErrCodeNotFound, operation)
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return err
	}
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrCodeDatabase, operation+" interrupted")
	}
	return WrapError(err, ErrCodeDatabase, operation)
}
