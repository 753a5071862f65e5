// Package ses 基于 AWS SES v2 实现邮件投递网关。
package ses

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"bizmail/backend/internal/gateway"
)

// maxRetries 瞬时失败的最大重试次数。
const maxRetries = 3

// baseRetryDelay 指数退避的初始等待时间。
const baseRetryDelay = 1 * time.Second

// Config SES 网关配置。
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string // 已验证的发件身份
}

// SendEmailAPI SES v2 SendEmail 操作接口，便于测试注入。
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Gateway 通过 AWS SES v2 API 投递邮件。
type Gateway struct {
	sender string
	client SendEmailAPI
	logger *zap.Logger
}

// New 创建 SES 网关。AccessKeyID 为空时走默认凭证链。
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Gateway, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Gateway{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// NewWithClient 使用自定义客户端创建网关，用于测试。
func NewWithClient(sender string, client SendEmailAPI, logger *zap.Logger) *Gateway {
	return &Gateway{
		sender: sender,
		client: client,
		logger: logger,
	}
}

// Send 投递一封邮件。带附件时构造 raw MIME 报文，否则走简单格式。
// 瞬时错误按指数退避重试；发件身份未验证立即返回，不重试。
func (g *Gateway) Send(ctx context.Context, email *gateway.Email) error {
	var input *sesv2.SendEmailInput

	if len(email.Attachments) > 0 {
		raw, err := buildRawMessage(g.sender, email)
		if err != nil {
			return fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			Content: &types.EmailContent{
				Raw: &types.RawMessage{Data: raw},
			},
		}
	} else {
		input = buildSimpleInput(g.sender, email)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Debug("重试 SES 投递",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries))
			if err := sleepWithContext(ctx, backoffDelay(attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := g.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}
		if isNotVerified(err) {
			return fmt.Errorf("%w: %s", gateway.ErrSenderNotVerified, g.sender)
		}

		lastErr = err
		g.logger.Warn("SES 投递失败",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name 返回网关名称。
func (g *Gateway) Name() string {
	return "ses"
}

// isNotVerified 判断错误是否为发件身份未验证。
func isNotVerified(err error) bool {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "email address is not verified") ||
		strings.Contains(msg, "identity not verified")
}

// buildSimpleInput 构造不带附件的简单邮件请求。
func buildSimpleInput(sender string, email *gateway.Email) *sesv2.SendEmailInput {
	body := &types.Body{}
	if email.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(email.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if email.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(email.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: email.To,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(email.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

// buildRawMessage 构造带附件的 raw MIME 报文。
func buildRawMessage(sender string, email *gateway.Email) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	if len(email.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(email.To, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", email.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	if email.HTMLBody != "" {
		bodyHeader.Set("Content-Type", "text/html; charset=UTF-8")
		part, err := writer.CreatePart(bodyHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(email.HTMLBody))
	} else if email.TextBody != "" {
		bodyHeader.Set("Content-Type", "text/plain; charset=UTF-8")
		part, err := writer.CreatePart(bodyHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(email.TextBody))
	}

	for _, att := range email.Attachments {
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", att.ContentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		part.Write([]byte(encodeBase64WithLineBreaks(att.Content)))
	}

	writer.Close()
	return buf.Bytes(), nil
}

// encodeBase64WithLineBreaks 按 RFC 2045 以 76 字符换行编码 base64。
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}

// backoffDelay 返回第 attempt 次重试的指数退避时间。
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext 等待指定时间或 context 取消。
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
