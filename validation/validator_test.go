package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revtrail/errors"
)

type sample struct {
	Table string `validate:"required,identifier"`
	Limit int    `validate:"gte=0"`
}

func TestStructValidator(t *testing.T) {
	t.Run("合法输入", func(t *testing.T) {
		assert.NoError(t, Struct(sample{Table: "public.revisions", Limit: 3}))
	})

	t.Run("字段错误转换为验证错误", func(t *testing.T) {
		err := Struct(sample{Table: "revisions; drop", Limit: -1})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))

		appErr, ok := err.(errors.IError)
		require.True(t, ok)
		fields, ok := appErr.Details()["fields"].(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "identifier", fields["sample.Table"])
		assert.Equal(t, "gte=0", fields["sample.Limit"])
	})

	t.Run("非结构体", func(t *testing.T) {
		err := New().Validate(42)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestSimpleValidators(t *testing.T) {
	assert.NoError(t, ValidateRequired("x", "name"))
	assert.True(t, errors.IsValidation(ValidateRequired("  ", "name")))

	assert.NoError(t, ValidatePositive(1, "count"))
	assert.Error(t, ValidatePositive(0, "count"))

	assert.NoError(t, ValidateEnum("json", "output", []string{"table", "json"}))
	assert.Error(t, ValidateEnum("xml", "output", []string{"table", "json"}))

	assert.NoError(t, NoopValidator{}.Validate(nil))
}
