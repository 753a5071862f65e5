package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizmail/backend/internal/attachment"
	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/gateway"
	"bizmail/backend/internal/monitoring"
)

// ErrNoVerifiedSender 未配置已验证的发件身份，外部投递无法进行。
var ErrNoVerifiedSender = errors.New("no verified sender configured")

// Dispatcher 外部投递器：把消息逐个投递到外部邮件地址。
// 每个收件人相互隔离，单个失败不影响其余；发件身份未验证例外，
// 该错误是系统性的，剩余收件人直接记失败。
type Dispatcher struct {
	sender       gateway.Sender
	materializer *attachment.Materializer
	limiter      *rate.Limiter
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// NewDispatcher 创建外部投递器。sender 为 nil 表示未配置发件身份。
func NewDispatcher(
	sender gateway.Sender,
	materializer *attachment.Materializer,
	sendRate rate.Limit,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		sender:       sender,
		materializer: materializer,
		limiter:      rate.NewLimiter(sendRate, 1),
		metrics:      metrics,
		logger:       logger,
	}
}

// Dispatch 按序向每个外部地址投递消息。
// 未配置发件身份时返回 ErrNoVerifiedSender，一个地址都不尝试。
func (d *Dispatcher) Dispatch(ctx context.Context, message *domain.Message, recipients []string) (*domain.DeliveryReport, error) {
	if d.sender == nil {
		return nil, ErrNoVerifiedSender
	}

	report := domain.NewDeliveryReport()
	if len(recipients) == 0 {
		return report, nil
	}

	// 先统一回读附件内容，取不到的附件投递时省略
	attachments := d.materializer.InlineAll(ctx, message.Attachments)
	gwAttachments := make([]gateway.Attachment, 0, len(attachments))
	for _, att := range attachments {
		gwAttachments = append(gwAttachments, gateway.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}

	textBody := message.Content
	htmlBody := htmlify(message.Content)

	for index, recipient := range recipients {
		if err := d.limiter.Wait(ctx); err != nil {
			remaining := fmt.Sprintf("dispatch cancelled: %v", err)
			for _, rest := range recipients[index:] {
				report.AddFailure(rest, remaining)
				d.metrics.ExternalDeliveryFailure.Inc()
			}
			return report, nil
		}

		err := d.sender.Send(ctx, &gateway.Email{
			To:          []string{recipient},
			Subject:     message.Subject,
			TextBody:    textBody,
			HTMLBody:    htmlBody,
			Attachments: gwAttachments,
		})
		if err == nil {
			report.AddSuccess(recipient)
			d.metrics.ExternalDeliverySuccess.Inc()
			continue
		}

		d.logger.Warn("外部投递失败",
			zap.String("message_id", message.ID),
			zap.String("recipient", recipient),
			zap.Error(err))
		report.AddFailure(recipient, err.Error())
		d.metrics.ExternalDeliveryFailure.Inc()

		if errors.Is(err, gateway.ErrSenderNotVerified) {
			// 系统性错误：剩余地址不再尝试，统一记同一失败原因
			for _, rest := range recipients[index+1:] {
				report.AddFailure(rest, err.Error())
				d.metrics.ExternalDeliveryFailure.Inc()
			}
			break
		}
	}

	return report, nil
}

// htmlify 将纯文本正文转为最小 HTML 信封。已是 HTML 的内容原样返回。
func htmlify(content string) string {
	trimmed := strings.TrimSpace(strings.ToLower(content))
	if strings.HasPrefix(trimmed, "<html") || strings.HasPrefix(trimmed, "<!doctype") {
		return content
	}
	escaped := html.EscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return "<html><body>" + escaped + "</body></html>"
}
