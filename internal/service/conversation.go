package service

import (
	"sort"

	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/storage"
)

// ConversationService 会话投影：按对方身份聚合消息的只读视图。
type ConversationService struct {
	repo storage.MessageRepository
}

// NewConversationService 创建会话服务。
func NewConversationService(repo storage.MessageRepository) *ConversationService {
	return &ConversationService{repo: repo}
}

// List 列出 viewer 的全部会话，按最近消息时间降序。
// 每次查询时重算，不落库。
func (s *ConversationService) List(viewerID string) ([]domain.Conversation, error) {
	messages, err := s.repo.ListParticipantMessages(viewerID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]*domain.Conversation)
	for i := range messages {
		message := &messages[i]

		other := message.SenderID
		if other == viewerID {
			other = message.RecipientID
		}
		// 自己发给自己的草稿等不构成会话
		if other == "" || other == viewerID {
			continue
		}

		conversation, ok := grouped[other]
		if !ok {
			conversation = &domain.Conversation{ParticipantID: other}
			grouped[other] = conversation
		}
		// 输入按创建时间降序，首条即最近一条
		if conversation.LastMessage == nil {
			conversation.LastMessage = message
		}
		if message.RecipientID == viewerID && !message.Read {
			conversation.UnreadCount++
		}
	}

	conversations := make([]domain.Conversation, 0, len(grouped))
	for _, conversation := range grouped {
		conversations = append(conversations, *conversation)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessage.CreatedAt.After(conversations[j].LastMessage.CreatedAt)
	})
	return conversations, nil
}

// UnreadCount 统计 viewer 的未读消息总数。
func (s *ConversationService) UnreadCount(viewerID string) (int, error) {
	messages, err := s.repo.ListParticipantMessages(viewerID)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range messages {
		if messages[i].RecipientID == viewerID && messages[i].SenderID != viewerID && !messages[i].Read {
			count++
		}
	}
	return count, nil
}
