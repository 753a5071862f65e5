package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizmail/backend/internal/domain"
)

func sendBetween(t *testing.T, env *testEnv, senderID, senderEmail, recipientEmail, subject string) *domain.Message {
	t.Helper()
	result, err := env.service.Create(context.Background(), CreateMessageInput{
		SenderID:       senderID,
		SenderEmail:    senderEmail,
		RecipientEmail: recipientEmail,
		Subject:        subject,
		Content:        "正文",
		Status:         domain.StatusSent,
	})
	require.NoError(t, err)
	return result.Message
}

func TestConversationListGroupsByOtherParticipant(t *testing.T) {
	env := newTestEnv(true)
	conversations := NewConversationService(env.store)

	sendBetween(t, env, "u1", "alice@corp.test", "bob@corp.test", "第一条")
	time.Sleep(2 * time.Millisecond)
	sendBetween(t, env, "u2", "bob@corp.test", "alice@corp.test", "回复")

	list, err := conversations.List("u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	conversation := list[0]
	assert.Equal(t, "u2", conversation.ParticipantID)
	assert.Equal(t, "回复", conversation.LastMessage.Subject)
	// u1 作为接收方有一条未读
	assert.Equal(t, 1, conversation.UnreadCount)
}

func TestConversationUnreadCountExcludesRead(t *testing.T) {
	env := newTestEnv(true)
	conversations := NewConversationService(env.store)

	first := sendBetween(t, env, "u1", "alice@corp.test", "bob@corp.test", "一")
	sendBetween(t, env, "u1", "alice@corp.test", "bob@corp.test", "二")

	_, err := env.service.MarkRead("u2", first.ID)
	require.NoError(t, err)

	count, err := conversations.UnreadCount("u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConversationListOrderedByRecency(t *testing.T) {
	env := newTestEnv(true)
	conversations := NewConversationService(env.store)

	// u3 不在身份目录里也可以作为历史参与方出现，这里只用注册身份
	sendBetween(t, env, "u1", "alice@corp.test", "bob@corp.test", "给bob")
	time.Sleep(2 * time.Millisecond)
	sendBetween(t, env, "u2", "bob@corp.test", "alice@corp.test", "bob的回复")

	list, err := conversations.List("u2")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].ParticipantID)
}

func TestConversationExcludesSoftDeleted(t *testing.T) {
	env := newTestEnv(true)
	conversations := NewConversationService(env.store)

	message := sendBetween(t, env, "u1", "alice@corp.test", "bob@corp.test", "唯一一条")
	require.NoError(t, env.service.SoftDelete("u2", message.ID))

	list, err := conversations.List("u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}
