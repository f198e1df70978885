// Package validation 提供命令输入的通用验证辅助
package validation

import (
	"regexp"
	"strings"

	"stockroom/errors"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError("%s is required", fieldName)
	}
	return nil
}

// ValidateNonNegative 验证非负整数
func ValidateNonNegative(value int, fieldName string) error {
	if value < 0 {
		return errors.NewValidationError("%s must not be negative (got %d)", fieldName, value)
	}
	return nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return errors.NewValidationError("invalid email address %q", email)
	}
	return nil
}
