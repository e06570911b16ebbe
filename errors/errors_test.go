package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "[CAPTURE_ERROR] snapshot failed", NewError(ErrCodeCapture, "snapshot failed").Error())

	wrapped := WrapError(errors.New("disk full"), ErrCodeStorageWrite, "insert revisions")
	assert.Equal(t, "[STORAGE_WRITE_ERROR] insert revisions: disk full", wrapped.Error())
	assert.Nil(t, WrapError(nil, ErrCodeStorageWrite, "insert revisions"))
}

// TestWrapError_KeepsCause 包装后仍能通过 errors.Is 找到原始错误
func TestWrapError_KeepsCause(t *testing.T) {
	original := errors.New("磁盘已满")

	wrapped := WrapError(original, ErrCodeStorageWrite, "写入修订失败")

	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, original)
	assert.Equal(t, ErrCodeStorageWrite, GetErrorCode(fmt.Errorf("capture: %w", wrapped)))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(original))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}

func TestWrapDatabase(t *testing.T) {
	t.Run("nil 错误", func(t *testing.T) {
		assert.NoError(t, WrapDatabase(nil, "查询修订"))
	})

	t.Run("sql.ErrNoRows 视为未找到", func(t *testing.T) {
		err := WrapDatabase(sql.ErrNoRows, "查询修订")
		assert.True(t, IsNotFound(err))
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("超时保留原始错误", func(t *testing.T) {
		err := WrapDatabase(context.DeadlineExceeded, "查询修订")
		assert.True(t, IsErrorCode(err, ErrCodeDatabase))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("已带错误码的错误原样返回", func(t *testing.T) {
		inner := NewNotFoundError("revision %d", 7)
		assert.Same(t, inner, WrapDatabase(inner, "查询修订"))
	})

	t.Run("其他错误视为数据库错误", func(t *testing.T) {
		err := WrapDatabase(errors.New("connection refused"), "查询修订")
		assert.True(t, IsErrorCode(err, ErrCodeDatabase))
		assert.False(t, IsNotFound(err))
	})
}

// TestIsErrorCode_Nested 嵌套包装时按链查找错误码
func TestIsErrorCode_Nested(t *testing.T) {
	inner := NewFormatParseError("datetime", "not-a-date", errors.New("bad layout"))
	outer := WrapError(inner, ErrCodeCapture, "采集失败")

	assert.True(t, IsErrorCode(outer, ErrCodeCapture))
	assert.True(t, IsErrorCode(outer, ErrCodeFormatParse))
	assert.True(t, IsFormatParse(fmt.Errorf("render: %w", outer)))
	assert.False(t, IsErrorCode(outer, ErrCodeNotFound))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrCodeCapture))
	assert.False(t, IsErrorCode(nil, ErrCodeCapture))
}

func TestAppError_Is(t *testing.T) {
	err := NewRelationError("post", "category", nil)

	assert.ErrorIs(t, err, ErrRelationResolution)
	assert.NotErrorIs(t, err, ErrStorageWrite)
	assert.ErrorIs(t, NewFormatParseError("boolean", "x", nil), ErrFormatParse)
}

// TestAppError_WithContext 附加上下文不修改原错误
func TestAppError_WithContext(t *testing.T) {
	base := NewError(ErrCodeCapture, "snapshot failed")
	withCtx := base.WithContext("subject_type", "post").WithContext("key", "title")

	assert.Empty(t, base.Details())
	assert.Equal(t, map[string]any{"subject_type": "post", "key": "title"}, withCtx.Details())
	assert.Equal(t, base.Code(), withCtx.Code())
	assert.Equal(t, base.Error(), withCtx.Error())
}

func TestNewFormatParseError(t *testing.T) {
	err := NewFormatParseError("datetime", "soon", nil)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "datetime", appErr.Details()["formatter"])
	assert.Nil(t, errors.Unwrap(err))
}
