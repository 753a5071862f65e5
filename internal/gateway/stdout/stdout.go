// Package stdout 将邮件打印到标准输出的网关实现，用于开发验证。
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"bizmail/backend/internal/gateway"
)

// Gateway 将邮件以可读格式写到输出流。
type Gateway struct {
	writer io.Writer
}

// New 创建写到 os.Stdout 的网关。
func New() *Gateway {
	return &Gateway{writer: os.Stdout}
}

// NewWithWriter 创建写到指定输出流的网关，便于测试。
func NewWithWriter(w io.Writer) *Gateway {
	return &Gateway{writer: w}
}

// Send 打印邮件内容，恒定成功。
func (g *Gateway) Send(_ context.Context, email *gateway.Email) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(email.To, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\n", email.Subject))
	b.WriteString("Body:\n")

	body := email.TextBody
	if body == "" {
		body = email.HTMLBody
	}
	b.WriteString(body + "\n")

	if len(email.Attachments) > 0 {
		names := make([]string, 0, len(email.Attachments))
		for _, att := range email.Attachments {
			names = append(names, fmt.Sprintf("%s (%d B)", att.Filename, len(att.Content)))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(names, ", ")))
	}

	b.WriteString("========================================\n")

	fmt.Fprint(g.writer, b.String())
	return nil
}

// Name 返回网关名称。
func (g *Gateway) Name() string {
	return "stdout"
}
