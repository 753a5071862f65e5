package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizmail/backend/internal/attachment"
	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/gateway"
)

func newTestDispatcher(sender gateway.Sender) *Dispatcher {
	logger := zap.NewNop()
	materializer := attachment.NewMaterializer(newFakeBlobStore(), logger)
	return NewDispatcher(sender, materializer, rate.Inf, sharedMetrics(), logger)
}

func TestDispatchNoSenderConfigured(t *testing.T) {
	d := newTestDispatcher(nil)

	_, err := d.Dispatch(context.Background(), &domain.Message{ID: "m1"}, []string{"a@example.com"})
	assert.ErrorIs(t, err, ErrNoVerifiedSender)
}

func TestDispatchVerificationShortCircuit(t *testing.T) {
	sender := newFakeSender()
	sender.failures["b@example.com"] = fmt.Errorf("%w: noreply@biz.test", gateway.ErrSenderNotVerified)
	d := newTestDispatcher(sender)

	message := &domain.Message{ID: "m1", Subject: "s", Content: "c"}
	report, err := d.Dispatch(context.Background(), message, []string{
		"a@example.com", "b@example.com", "c@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com"}, report.Success)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "b@example.com", report.Failed[0].Email)
	assert.Equal(t, "c@example.com", report.Failed[1].Email)
	// 剩余地址记同一失败原因，且不再调用网关
	assert.Equal(t, report.Failed[0].Error, report.Failed[1].Error)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sender.calls)
}

func TestDispatchOrdinaryFailuresDoNotShortCircuit(t *testing.T) {
	sender := newFakeSender()
	sender.failures["b@example.com"] = fmt.Errorf("mailbox unavailable")
	d := newTestDispatcher(sender)

	message := &domain.Message{ID: "m1", Subject: "s", Content: "c"}
	report, err := d.Dispatch(context.Background(), message, []string{
		"a@example.com", "b@example.com", "c@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "c@example.com"}, report.Success)
	require.Len(t, report.Failed, 1)
	assert.Len(t, sender.calls, 3)
}

func TestDispatchEmptyRecipientList(t *testing.T) {
	sender := newFakeSender()
	d := newTestDispatcher(sender)

	report, err := d.Dispatch(context.Background(), &domain.Message{ID: "m1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Success)
	assert.Empty(t, report.Failed)
	assert.Empty(t, sender.calls)
}

func TestHtmlify(t *testing.T) {
	t.Run("纯文本换行转br并转义", func(t *testing.T) {
		got := htmlify("第一行\n第二行 <b>")
		assert.Equal(t, "<html><body>第一行<br>第二行 &lt;b&gt;</body></html>", got)
	})

	t.Run("已是HTML原样返回", func(t *testing.T) {
		input := "<html><body><p>hi</p></body></html>"
		assert.Equal(t, input, htmlify(input))
	})
}
