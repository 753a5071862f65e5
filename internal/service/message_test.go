package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizmail/backend/internal/attachment"
	"bizmail/backend/internal/directory"
	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/gateway"
	"bizmail/backend/internal/monitoring"
	"bizmail/backend/internal/spam"
	"bizmail/backend/internal/storage/memory"
)

// fakeBlobStore 内存 blob 存储。
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, _ string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return "https://blob.example.com/" + key, nil
}

// fakeSender 可编排结果的网关，按收件人返回预设错误。
type fakeSender struct {
	mu       sync.Mutex
	failures map[string]error
	calls    []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: make(map[string]error)}
}

func (f *fakeSender) Send(_ context.Context, email *gateway.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	recipient := email.To[0]
	f.calls = append(f.calls, recipient)
	if err, ok := f.failures[recipient]; ok {
		return err
	}
	return nil
}

func (f *fakeSender) Name() string { return "fake" }

var testMetricsOnce sync.Once
var testMetrics *monitoring.Metrics

// sharedMetrics promauto 指标只能注册一次，测试共用一份。
func sharedMetrics() *monitoring.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = monitoring.NewMetrics()
	})
	return testMetrics
}

type testEnv struct {
	store      *memory.Store
	sender     *fakeSender
	service    *MessageService
	dispatcher *Dispatcher
	resolver   *directory.Resolver
}

// newTestEnv 组装内存版服务。sender 传 nil 表示未配置发件身份。
func newTestEnv(withSender bool) *testEnv {
	logger := zap.NewNop()
	store := memory.NewStore()
	dir := directory.NewStatic([]domain.Identity{
		{ID: "u1", Email: "alice@corp.test"},
		{ID: "u2", Email: "bob@corp.test"},
	})
	resolver := directory.NewResolver(dir, logger)
	materializer := attachment.NewMaterializer(newFakeBlobStore(), logger)
	metrics := sharedMetrics()

	env := &testEnv{store: store, resolver: resolver}
	var gw gateway.Sender
	if withSender {
		env.sender = newFakeSender()
		gw = env.sender
	}
	env.dispatcher = NewDispatcher(gw, materializer, rate.Inf, metrics, logger)
	env.service = NewMessageService(store, resolver, spam.NewEvaluator(), materializer, env.dispatcher, metrics, logger)
	return env
}

func TestCreateDraftAllowsEmptyFields(t *testing.T) {
	env := newTestEnv(true)

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:    "u1",
		SenderEmail: "alice@corp.test",
		Status:      domain.StatusDraft,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDraft, result.Message.Status)
	assert.Equal(t, domain.FolderDrafts, result.Message.Folder)
	// 草稿归发送方自己
	assert.Equal(t, "u1", result.Message.RecipientID)
	assert.Nil(t, result.Delivery)
}

func TestCreateSentRequiresSubjectAndContent(t *testing.T) {
	env := newTestEnv(true)

	_, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:    "u1",
		SenderEmail: "alice@corp.test",
		Status:      domain.StatusSent,
		Content:     "正文",
	})
	assert.ErrorIs(t, err, ErrSubjectRequired)

	_, err = env.service.Create(context.Background(), CreateMessageInput{
		SenderID:    "u1",
		SenderEmail: "alice@corp.test",
		Status:      domain.StatusSent,
		Subject:     "主题",
	})
	assert.ErrorIs(t, err, ErrContentRequired)
}

func TestCreateSentToInternalRecipient(t *testing.T) {
	env := newTestEnv(true)

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "午餐",
		Content:        "一起吃饭吗",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	assert.Equal(t, "u2", result.Message.RecipientID)
	assert.Equal(t, domain.FolderInbox, result.Message.Folder)
	// 内部收件人不走外部网关
	require.NotNil(t, result.Delivery)
	assert.Empty(t, result.Delivery.Success)
	assert.Empty(t, result.Delivery.Failed)
	assert.Empty(t, env.sender.calls)
}

func TestCreateSentClearsScheduleTime(t *testing.T) {
	env := newTestEnv(true)

	future := time.Now().Add(time.Hour).UTC()
	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "现在就发",
		Content:        "不用等",
		Status:         domain.StatusSent,
		ScheduledAt:    &future,
	})
	require.NoError(t, err)

	// sent 消息不携带定时时间
	assert.Equal(t, domain.StatusSent, result.Message.Status)
	assert.Nil(t, result.Message.ScheduledAt)
}

func TestCreateSentDetectsExternalRecipient(t *testing.T) {
	env := newTestEnv(true)

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "outsider@external.test",
		Subject:        "你好",
		Content:        "测试",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	// 查无内部身份，owner 回落为发送方
	assert.Equal(t, "u1", result.Message.RecipientID)
	require.NotNil(t, result.Delivery)
	assert.Equal(t, []string{"outsider@external.test"}, result.Delivery.Success)
	assert.Equal(t, []string{"outsider@external.test"}, env.sender.calls)
}

func TestCreateSentNoVerifiedSenderReportsAllFailed(t *testing.T) {
	env := newTestEnv(false)

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "unknown@external.test",
		Subject:        "Hello",
		Content:        "Hi there",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	// 消息照常持久化
	stored, err := env.store.GetMessage(result.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.Equal(t, "u1", stored.RecipientID)
	assert.Equal(t, domain.FolderInbox, stored.Folder)

	// 投递报告全员失败，零成功
	require.NotNil(t, result.Delivery)
	assert.Empty(t, result.Delivery.Success)
	require.Len(t, result.Delivery.Failed, 1)
	assert.Equal(t, "unknown@external.test", result.Delivery.Failed[0].Email)
	assert.Contains(t, result.Delivery.Failed[0].Error, "no verified sender")
}

func TestCreateDeduplicatesExternalAddresses(t *testing.T) {
	env := newTestEnv(true)

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "Ext@External.Test",
		CC:             "ext@external.test, bob@corp.test",
		Subject:        "主题",
		Content:        "正文",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Delivery)
	assert.Equal(t, []string{"ext@external.test"}, result.Delivery.Success)
	assert.Len(t, env.sender.calls, 1)
}

func TestCreateComputesSpamScore(t *testing.T) {
	env := newTestEnv(true)

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "viagra gratuit",
		Content:        "cliquez ici urgent",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	assert.Equal(t, 80, result.Message.SpamScore)
	assert.True(t, result.Message.IsSpam)
}

func TestUpdatePromotesDraftToSent(t *testing.T) {
	env := newTestEnv(true)

	created, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:    "u1",
		SenderEmail: "alice@corp.test",
		Status:      domain.StatusDraft,
	})
	require.NoError(t, err)

	sent := domain.StatusSent
	recipient := "outsider@external.test"
	subject := "迟到的消息"
	content := "现在发出"
	result, err := env.service.Update(context.Background(), UpdateMessageInput{
		ActorID:        "u1",
		MessageID:      created.Message.ID,
		Status:         &sent,
		RecipientEmail: &recipient,
		Subject:        &subject,
		Content:        &content,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSent, result.Message.Status)
	require.NotNil(t, result.Delivery)
	assert.Equal(t, []string{"outsider@external.test"}, result.Delivery.Success)
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	env := newTestEnv(true)

	created, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	draft := domain.StatusDraft
	_, err = env.service.Update(context.Background(), UpdateMessageInput{
		ActorID:   "u1",
		MessageID: created.Message.ID,
		Status:    &draft,
	})
	assert.ErrorIs(t, err, ErrStatusTransition)
}

func TestUpdateRejectsNonParticipant(t *testing.T) {
	env := newTestEnv(true)

	created, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	subject := "篡改"
	_, err = env.service.Update(context.Background(), UpdateMessageInput{
		ActorID:   "u3",
		MessageID: created.Message.ID,
		Subject:   &subject,
	})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestUpdateDoesNotRedispatchSentMessage(t *testing.T) {
	env := newTestEnv(true)

	created, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "ext@external.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)
	require.Len(t, env.sender.calls, 1)

	// 已发送消息上改星标之类的字段不触发再次投递
	result, err := env.service.SetStarred("u1", created.Message.ID, true)
	require.NoError(t, err)
	assert.True(t, result.IsStarred)
	assert.Len(t, env.sender.calls, 1)
}

func TestSoftDeletePerViewerVisibility(t *testing.T) {
	env := newTestEnv(true)

	created, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	require.NoError(t, env.service.SoftDelete("u2", created.Message.ID))

	// 删除方不再可见
	inbox, err := env.service.ListInbox("u2", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, inbox.Total)

	_, err = env.service.Get("u2", created.Message.ID)
	assert.Error(t, err)

	// 另一参与方照常可见
	sent, err := env.service.ListSent("u1", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sent.Total)
}

func TestMarkReadOnlyRecipient(t *testing.T) {
	env := newTestEnv(true)

	created, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "bob@corp.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	_, err = env.service.MarkRead("u1", created.Message.ID)
	assert.ErrorIs(t, err, ErrNotRecipient)

	message, err := env.service.MarkRead("u2", created.Message.ID)
	require.NoError(t, err)
	assert.True(t, message.Read)
	require.NotNil(t, message.ReadAt)
}

func TestScheduledCreateDefersDelivery(t *testing.T) {
	env := newTestEnv(true)

	_, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "ext@external.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusScheduled,
	})
	assert.ErrorIs(t, err, ErrScheduleTimeRequired)
}

func TestCreateExternalFailureIsolated(t *testing.T) {
	env := newTestEnv(true)
	env.sender.failures["bad@external.test"] = errors.New("mailbox full")

	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       "u1",
		SenderEmail:    "alice@corp.test",
		RecipientEmail: "good@external.test",
		CC:             "bad@external.test",
		Subject:        "a",
		Content:        "b",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Delivery)
	assert.Equal(t, []string{"good@external.test"}, result.Delivery.Success)
	require.Len(t, result.Delivery.Failed, 1)
	assert.Equal(t, "bad@external.test", result.Delivery.Failed[0].Email)
	assert.Contains(t, result.Delivery.Failed[0].Error, "mailbox full")
}
