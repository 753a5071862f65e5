// Package gateway 定义外部邮件投递网关的抽象。
// 未注册身份的收件人通过网关以邮件形式送达。
package gateway

import (
	"context"
	"errors"
)

// ErrSenderNotVerified 发件身份未在邮件服务商处完成验证。
// 该错误不可重试，调用方应停止对剩余收件人的投递。
var ErrSenderNotVerified = errors.New("sender identity not verified")

// Attachment 外发邮件的附件。
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Email 一封待外发的邮件。
type Email struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Sender 邮件投递网关。
type Sender interface {
	// Send 投递一封邮件。发件身份未验证时返回 ErrSenderNotVerified。
	Send(ctx context.Context, email *Email) error
	// Name 返回网关的可读名称。
	Name() string
}
