// Package storage 定义消息持久化接口及其实现。
package storage

import (
	"errors"
	"time"

	"bizmail/backend/internal/domain"
)

var (
	// ErrMessageNotFound 消息未找到错误
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRepository 定义消息数据存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	GetMessage(id string) (*domain.Message, error)
	UpdateMessage(message *domain.Message) error
	ListMessages(filter domain.MessageFilter) (*domain.MessagePage, error)
	// ListParticipantMessages 返回身份参与的全部可见消息（会话投影用），
	// 按创建时间降序。
	ListParticipantMessages(identityID string) ([]domain.Message, error)
	// ListDueScheduled 返回 scheduled_at <= now 的待投递定时消息。
	ListDueScheduled(now time.Time) ([]domain.Message, error)
	// PromoteScheduled 将定时消息条件推进为已发送：仅当当前状态仍为
	// scheduled 时生效，返回是否发生了推进。并发扫描依赖该原子判定。
	PromoteScheduled(id string, now time.Time) (bool, error)
}

// Store 聚合存储接口，带生命周期管理。
type Store interface {
	MessageRepository
	Health() error
	Close() error
}
