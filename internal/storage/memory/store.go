// Package memory 提供内存版消息存储，主要用于开发验证与测试。
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/storage"
)

// Store 使用内存保存消息数据。所有读写都返回副本，
// 调用方修改返回值不会影响存储内容。
type Store struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		messages: make(map[string]*domain.Message),
	}
}

// SaveMessage 保存消息。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[message.ID] = cloneMessage(message)
	return nil
}

// GetMessage 根据 ID 获取消息。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	return cloneMessage(message), nil
}

// UpdateMessage 更新已存在的消息。
func (s *Store) UpdateMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[message.ID]; !ok {
		return storage.ErrMessageNotFound
	}
	updated := cloneMessage(message)
	updated.UpdatedAt = time.Now()
	s.messages[message.ID] = updated
	return nil
}

// ListMessages 按条件分页查询消息，按创建时间降序。
func (s *Store) ListMessages(filter domain.MessageFilter) (*domain.MessagePage, error) {
	filter.Normalize()

	s.mu.RLock()
	matched := make([]*domain.Message, 0)
	for _, message := range s.messages {
		if matchesFilter(message, filter) {
			matched = append(matched, message)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	page := &domain.MessagePage{
		Messages:   make([]domain.Message, 0, end-start),
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}
	for _, message := range matched[start:end] {
		page.Messages = append(page.Messages, *cloneMessage(message))
	}
	return page, nil
}

// ListParticipantMessages 返回身份参与且未软删除的全部消息，按创建时间降序。
func (s *Store) ListParticipantMessages(identityID string) ([]domain.Message, error) {
	s.mu.RLock()
	matched := make([]domain.Message, 0)
	for _, message := range s.messages {
		if !message.IsParticipant(identityID) || message.DeletedFor(identityID) {
			continue
		}
		matched = append(matched, *cloneMessage(message))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// ListDueScheduled 返回到期的定时消息。
func (s *Store) ListDueScheduled(now time.Time) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]domain.Message, 0)
	for _, message := range s.messages {
		if message.Status != domain.StatusScheduled {
			continue
		}
		if message.ScheduledAt == nil || message.ScheduledAt.After(now) {
			continue
		}
		due = append(due, *cloneMessage(message))
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(*due[j].ScheduledAt)
	})
	return due, nil
}

// PromoteScheduled 条件推进定时消息为已发送。当前状态不是 scheduled
// 时返回 false，保证并发扫描下每条消息只被投递一次。
func (s *Store) PromoteScheduled(id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return false, storage.ErrMessageNotFound
	}
	if message.Status != domain.StatusScheduled {
		return false, nil
	}
	message.Status = domain.StatusSent
	message.Folder = domain.FolderSent
	message.ScheduledAt = nil
	message.UpdatedAt = now
	return true, nil
}

// Health 健康检查，内存存储恒为健康。
func (s *Store) Health() error {
	return nil
}

// Close 关闭存储。
func (s *Store) Close() error {
	return nil
}

func matchesFilter(message *domain.Message, filter domain.MessageFilter) bool {
	if filter.ViewerID != "" && message.DeletedFor(filter.ViewerID) {
		return false
	}
	if filter.SenderID != "" && message.SenderID != filter.SenderID {
		return false
	}
	if filter.RecipientID != "" && message.RecipientID != filter.RecipientID {
		return false
	}
	if filter.ParticipantID != "" && !message.IsParticipant(filter.ParticipantID) {
		return false
	}
	if len(filter.Folders) > 0 && !folderMatches(message.Folder, filter) {
		return false
	}
	if filter.Status != "" && message.Status != filter.Status {
		return false
	}
	if filter.IsStarred != nil && message.IsStarred != *filter.IsStarred {
		return false
	}
	if filter.Read != nil && message.Read != *filter.Read {
		return false
	}
	if filter.Priority != "" && message.Priority != filter.Priority {
		return false
	}
	if filter.StartDate != nil && message.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && message.CreatedAt.After(*filter.EndDate) {
		return false
	}
	if filter.Query != "" && !matchesQuery(message, filter.Query) {
		return false
	}
	return true
}

func folderMatches(folder domain.Folder, filter domain.MessageFilter) bool {
	if folder == "" && filter.IncludeNoFolder {
		return true
	}
	for _, candidate := range filter.Folders {
		if folder == candidate {
			return true
		}
	}
	return false
}

func matchesQuery(message *domain.Message, query string) bool {
	return containsIgnoreCase(message.Subject, query) ||
		containsIgnoreCase(message.Content, query) ||
		containsIgnoreCase(message.SenderEmail, query) ||
		containsIgnoreCase(message.RecipientEmail, query)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func cloneMessage(message *domain.Message) *domain.Message {
	clone := *message
	if message.DeletedBy != nil {
		clone.DeletedBy = append(domain.StringList(nil), message.DeletedBy...)
	}
	if message.Attachments != nil {
		clone.Attachments = make([]*domain.Attachment, 0, len(message.Attachments))
		for _, attachment := range message.Attachments {
			copied := *attachment
			clone.Attachments = append(clone.Attachments, &copied)
		}
	}
	return &clone
}
