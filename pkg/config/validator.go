package config

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Validator 配置验证器
type Validator struct {
	validate *validator.Validate
}

// NewValidator 创建验证器
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate 验证配置结构体，支持标准 validator tag：
// required、min/max、oneof、url、hostname|ip 等
func (v *Validator) Validate(cfg any) error {
	if cfg == nil {
		return ErrNilConfig
	}
	if err := v.validate.Struct(cfg); err != nil {
		return errors.Wrap(ErrValidationFailed, formatValidationErrors(err))
	}
	return nil
}

// ValidateField 验证单个值
func (v *Validator) ValidateField(field any, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return errors.Wrap(ErrValidationFailed, formatValidationErrors(err))
	}
	return nil
}

// RegisterValidation 注册自定义规则
func (v *Validator) RegisterValidation(tag string, fn validator.Func) error {
	if err := v.validate.RegisterValidation(tag, fn); err != nil {
		return errors.Wrapf(err, "failed to register custom validation %s", tag)
	}
	return nil
}

// formatValidationErrors 格式化验证错误信息
func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	var sb strings.Builder
	for i, fieldErr := range validationErrors {
		if i > 0 {
			sb.WriteString("; ")
		}

		field := fieldErr.Namespace()
		if field == "" {
			field = fieldErr.Field()
		}
		param := fieldErr.Param()

		switch fieldErr.Tag() {
		case "required":
			fmt.Fprintf(&sb, "field '%s' is required", field)
		case "min", "gte":
			fmt.Fprintf(&sb, "field '%s' must be at least %s", field, param)
		case "max", "lte":
			fmt.Fprintf(&sb, "field '%s' must be at most %s", field, param)
		case "oneof":
			fmt.Fprintf(&sb, "field '%s' must be one of [%s]", field, param)
		case "url":
			fmt.Fprintf(&sb, "field '%s' must be a valid URL", field)
		default:
			fmt.Fprintf(&sb, "field '%s' failed validation '%s'", field, fieldErr.Tag())
		}
	}
	return sb.String()
}
