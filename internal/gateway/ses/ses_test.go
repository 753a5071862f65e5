package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizmail/backend/internal/gateway"
)

// mockSESClient 实现 SendEmailAPI，用于测试。
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func TestSendSimpleEmail(t *testing.T) {
	mock := &mockSESClient{}
	g := NewWithClient("sender@example.com", mock, zap.NewNop())

	err := g.Send(context.Background(), &gateway.Email{
		To:       []string{"to@example.com"},
		Subject:  "测试主题",
		TextBody: "正文",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.callCount)

	require.NotNil(t, mock.lastInput.Content.Simple)
	assert.Equal(t, "sender@example.com", *mock.lastInput.FromEmailAddress)
	assert.Equal(t, []string{"to@example.com"}, mock.lastInput.Destination.ToAddresses)
}

func TestSendWithAttachmentUsesRawMessage(t *testing.T) {
	mock := &mockSESClient{}
	g := NewWithClient("sender@example.com", mock, zap.NewNop())

	err := g.Send(context.Background(), &gateway.Email{
		To:      []string{"to@example.com"},
		Subject: "带附件",
		HTMLBody: "<p>见附件</p>",
		Attachments: []gateway.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf data")},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, mock.lastInput.Content.Raw)
	raw := string(mock.lastInput.Content.Raw.Data)
	assert.Contains(t, raw, "Content-Disposition: attachment")
	assert.Contains(t, raw, "report.pdf")
}

func TestSendSenderNotVerified(t *testing.T) {
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, &types.MessageRejected{Message: aws.String("Email address is not verified.")}
		},
	}
	g := NewWithClient("unverified@example.com", mock, zap.NewNop())

	err := g.Send(context.Background(), &gateway.Email{
		To:      []string{"to@example.com"},
		Subject: "x",
		TextBody: "y",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrSenderNotVerified)
	// 不可重试，只调用一次
	assert.Equal(t, 1, mock.callCount)
}

func TestSendRetriesTransientError(t *testing.T) {
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("throttling: rate exceeded")
		},
	}
	g := NewWithClient("sender@example.com", mock, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	// 第一次失败后立即取消，避免测试等待退避
	mock.sendFn = func(_ context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
		cancel()
		return nil, errors.New("throttling: rate exceeded")
	}

	err := g.Send(ctx, &gateway.Email{To: []string{"to@example.com"}, Subject: "x", TextBody: "y"})
	require.Error(t, err)
	assert.Equal(t, 1, mock.callCount)
}
