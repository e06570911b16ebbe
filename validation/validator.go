// Package validation 基于 go-playground/validator 的结构体校验
//
// 校验失败统一转换为 errors.ErrCodeValidation，字段级原因放在 Details 的 "fields" 中。
package validation

import (
	stdErrors "errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"revtrail/errors"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// IValidator 定义通用验证器接口
type IValidator interface {
	Validate(value any) error
}

// NoopValidator 空操作验证器
type NoopValidator struct{}

func (NoopValidator) Validate(value any) error { return nil }

// StructValidator 使用 struct tag 校验
type StructValidator struct {
	v *validator.Validate
}

var (
	defaultOnce      sync.Once
	defaultValidator *StructValidator
)

// Default 返回共享的 StructValidator
func Default() *StructValidator {
	defaultOnce.Do(func() {
		defaultValidator = New()
	})
	return defaultValidator
}

// New 创建 StructValidator，并注册 identifier 标签（SQL 表名/列名）
func New() *StructValidator {
	v := validator.New()
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierRegex.MatchString(fl.Field().String())
	})
	return &StructValidator{v: v}
}

// Validate 实现 IValidator 接口
func (s *StructValidator) Validate(value any) error {
	err := s.v.Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		return errors.WrapError(err, errors.ErrCodeValidation, "校验失败")
	}

	fields := make(map[string]string, len(fieldErrs))
	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		fields[fe.Namespace()] = reason
		reasons = append(reasons, fmt.Sprintf("%s(%s)", fe.Namespace(), reason))
	}
	return errors.NewError(errors.ErrCodeValidation, "字段校验失败: "+strings.Join(reasons, ", ")).
		WithContext("fields", fields)
}

// Struct 使用默认校验器校验
func Struct(value any) error {
	return Default().Validate(value)
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation, fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidatePositive 验证正数
func ValidatePositive(value int, fieldName string) error {
	if value <= 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s必须为正数（当前%d）", fieldName, value))
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues))
}
