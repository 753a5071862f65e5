package domain

import (
	"strings"
	"time"
)

// MessageStatus 消息状态。状态只能单向推进：
// draft -> sent / scheduled，scheduled -> sent，sent 为终态。
type MessageStatus string

const (
	StatusDraft     MessageStatus = "draft"     // 草稿，尚未投递
	StatusScheduled MessageStatus = "scheduled" // 定时投递，等待到期
	StatusSent      MessageStatus = "sent"      // 已投递
)

// Folder 消息文件夹。存储中的 folder 字段只是查询提示，
// 展示给用户的文件夹以 FolderFor 的读取时投影为准。
type Folder string

const (
	FolderDrafts  Folder = "drafts"
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderArchive Folder = "archive"
)

// Priority 消息优先级，仅供展示。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message 表示一条站内消息。
type Message struct {
	ID             string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SenderID       string        `json:"senderId" gorm:"type:varchar(36);index;not null"` // 创建后不可变
	SenderEmail    string        `json:"senderEmail" gorm:"type:varchar(255)"`
	RecipientID    string        `json:"recipientId,omitempty" gorm:"type:varchar(36);index"`
	RecipientEmail string        `json:"recipientEmail" gorm:"type:varchar(255)"`
	CC             string        `json:"cc,omitempty" gorm:"type:varchar(1000)"`  // 逗号分隔的地址列表
	BCC            string        `json:"bcc,omitempty" gorm:"type:varchar(1000)"` // 逗号分隔的地址列表
	Subject        string        `json:"subject" gorm:"type:varchar(500)"`
	Content        string        `json:"content" gorm:"type:text"`
	Status         MessageStatus `json:"status" gorm:"type:varchar(16);index"`
	Folder         Folder        `json:"folder" gorm:"type:varchar(16);index"`
	Priority       Priority      `json:"priority" gorm:"type:varchar(8)"`
	SpamScore      int           `json:"spamScore"` // 始终由系统重算，不接受调用方赋值
	IsSpam         bool          `json:"isSpam"`
	Read           bool          `json:"read" gorm:"column:is_read;default:false;index"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`
	IsStarred      bool          `json:"isStarred" gorm:"default:false"`
	IsArchived     bool          `json:"isArchived" gorm:"default:false"`
	ScheduledAt    *time.Time    `json:"scheduledAt,omitempty" gorm:"index"`          // 仅 status=scheduled 时有意义
	ReplyToID      string        `json:"replyToId,omitempty" gorm:"type:varchar(36)"` // 非拥有型回链，仅存 ID
	DeletedBy      StringList    `json:"deletedBy,omitempty" gorm:"type:text"`        // 已软删除该消息的身份集合，只增不减
	Attachments    []*Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	DeletedAt      *time.Time    `json:"deletedAt,omitempty"`
}

// FolderFor 返回 viewer 视角下消息所属的文件夹。
// 同一条存储为 inbox 的消息，对发送方展示为 sent。
func (m *Message) FolderFor(viewerID string) Folder {
	switch {
	case m.Status == StatusDraft || m.Status == StatusScheduled:
		return FolderDrafts
	case m.IsArchived:
		return FolderArchive
	case viewerID == m.SenderID:
		return FolderSent
	default:
		return FolderInbox
	}
}

// IsParticipant 判断身份是否为消息的参与方（发送方或接收方）。
func (m *Message) IsParticipant(identityID string) bool {
	if identityID == "" {
		return false
	}
	return identityID == m.SenderID || identityID == m.RecipientID
}

// DeletedFor 判断消息是否已被该身份软删除。
func (m *Message) DeletedFor(identityID string) bool {
	return m.DeletedBy.Contains(identityID)
}

// MarkDeletedBy 将身份追加到软删除集合。重复追加是幂等的。
func (m *Message) MarkDeletedBy(identityID string) {
	m.DeletedBy = m.DeletedBy.Append(identityID)
}

// AddressList 将逗号分隔的地址字段解析为去除空白的地址切片。
func AddressList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AllRecipientAddresses 收集消息的全部收件地址（主收件人、抄送、密送）。
func (m *Message) AllRecipientAddresses() []string {
	addresses := make([]string, 0, 4)
	if strings.TrimSpace(m.RecipientEmail) != "" {
		addresses = append(addresses, strings.TrimSpace(m.RecipientEmail))
	}
	addresses = append(addresses, AddressList(m.CC)...)
	addresses = append(addresses, AddressList(m.BCC)...)
	return addresses
}

// CanTransition 校验状态迁移是否合法。
func CanTransition(from, to MessageStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusDraft:
		return to == StatusSent || to == StatusScheduled
	case StatusScheduled:
		return to == StatusSent
	default:
		return false
	}
}
