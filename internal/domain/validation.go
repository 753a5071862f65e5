package domain

import (
	"errors"
	"net/mail"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrEmailTooLong = errors.New("email address too long")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength = 254

	// 消息字段长度限制
	MaxSubjectLength = 255
	MaxContentLength = 100000
)

// ValidateEmail 校验邮箱地址格式。
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateSubject 校验主题：长度限制且不允许控制字符。
func ValidateSubject(subject string) bool {
	if len(subject) > MaxSubjectLength {
		return false
	}
	for _, r := range subject {
		if r < 32 {
			return false
		}
	}
	return true
}

// ValidateContent 校验正文长度。
func ValidateContent(content string) bool {
	return len(content) <= MaxContentLength
}

// NormalizeEmail 地址规整：去空白并小写。解析与去重统一使用该形式。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
