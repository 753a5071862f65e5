// Package service 实现消息的创建、更新、查询与投递编排。
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizmail/backend/internal/attachment"
	"bizmail/backend/internal/directory"
	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/monitoring"
	"bizmail/backend/internal/spam"
	"bizmail/backend/internal/storage"
)

// 业务错误定义
var (
	ErrSubjectRequired      = errors.New("subject is required for non-draft messages")
	ErrContentRequired      = errors.New("content is required for non-draft messages")
	ErrScheduleTimeRequired = errors.New("scheduled_at is required for scheduled messages")
	ErrSubjectInvalid       = errors.New("subject is too long or contains control characters")
	ErrContentTooLong       = errors.New("content exceeds maximum length")
	ErrInvalidStatus        = errors.New("invalid message status")
	ErrStatusTransition     = errors.New("illegal status transition")
	ErrNotParticipant       = errors.New("actor is not a participant of this message")
	ErrNotRecipient         = errors.New("only the recipient can perform this operation")
)

// MessageService 消息管线：创建、更新、查询与投递编排的核心。
type MessageService struct {
	repo         storage.MessageRepository
	resolver     *directory.Resolver
	evaluator    *spam.Evaluator
	materializer *attachment.Materializer
	dispatcher   *Dispatcher
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// NewMessageService 创建消息服务。
func NewMessageService(
	repo storage.MessageRepository,
	resolver *directory.Resolver,
	evaluator *spam.Evaluator,
	materializer *attachment.Materializer,
	dispatcher *Dispatcher,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		repo:         repo,
		resolver:     resolver,
		evaluator:    evaluator,
		materializer: materializer,
		dispatcher:   dispatcher,
		metrics:      metrics,
		logger:       logger,
	}
}

// CreateMessageInput 定义创建消息的输入。
type CreateMessageInput struct {
	SenderID       string
	SenderEmail    string
	RecipientEmail string
	CC             string // 逗号分隔
	BCC            string // 逗号分隔
	Subject        string
	Content        string
	Status         domain.MessageStatus // 缺省为 draft
	Priority       domain.Priority
	ScheduledAt    *time.Time
	ReplyToID      string

	// 外部投递选项
	SendExternal       bool
	ExternalRecipients []string

	// 新上传的附件内容在 Content 字段，已有附件只带 URL
	Attachments []*domain.Attachment
}

// MessageResult 创建/更新的结果：持久化的消息加可选的投递报告。
type MessageResult struct {
	Message  *domain.Message        `json:"message"`
	Delivery *domain.DeliveryReport `json:"delivery,omitempty"`
}

// Create 新建一条消息并按状态触发投递。
// 消息一经持久化即提交，后续投递失败只反映在报告里，不回滚。
func (s *MessageService) Create(ctx context.Context, input CreateMessageInput) (*MessageResult, error) {
	status := input.Status
	if status == "" {
		status = domain.StatusDraft
	}
	if status != domain.StatusDraft && status != domain.StatusSent && status != domain.StatusScheduled {
		return nil, ErrInvalidStatus
	}

	if err := validateContentFields(status, input.Subject, input.Content); err != nil {
		return nil, err
	}
	if status == domain.StatusScheduled && input.ScheduledAt == nil {
		return nil, ErrScheduleTimeRequired
	}
	scheduledAt := input.ScheduledAt
	if status == domain.StatusSent {
		scheduledAt = nil
	}

	// 物化新上传的附件，失败的附件被丢弃不阻断创建
	attachments := s.materializeNew(ctx, input.SenderID, input.Attachments)

	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	now := time.Now().UTC()
	message := &domain.Message{
		ID:             uuid.NewString(),
		SenderID:       input.SenderID,
		SenderEmail:    domain.NormalizeEmail(input.SenderEmail),
		RecipientEmail: domain.NormalizeEmail(input.RecipientEmail),
		CC:             input.CC,
		BCC:            input.BCC,
		Subject:        input.Subject,
		Content:        input.Content,
		Status:         status,
		Priority:       priority,
		ScheduledAt:    scheduledAt,
		ReplyToID:      input.ReplyToID,
		Attachments:    attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	externalRecipients := s.routeAndScore(ctx, message, input.SendExternal, input.ExternalRecipients)

	if err := s.repo.SaveMessage(message); err != nil {
		return nil, err
	}
	s.metrics.MessagesCreated.Inc()
	if message.IsSpam {
		s.metrics.SpamFlagged.Inc()
	}
	if message.Status == domain.StatusDraft {
		s.metrics.DraftsSaved.Inc()
	}

	result := &MessageResult{Message: message}
	if message.Status == domain.StatusSent {
		s.metrics.MessagesSent.Inc()
		result.Delivery = s.deliver(ctx, message, externalRecipients)
	}
	return result, nil
}

// UpdateMessageInput 定义更新消息的输入。nil 字段表示不变更。
type UpdateMessageInput struct {
	ActorID        string
	MessageID      string
	RecipientEmail *string
	CC             *string
	BCC            *string
	Subject        *string
	Content        *string
	Status         *domain.MessageStatus
	Priority       *domain.Priority
	ScheduledAt    *time.Time

	SendExternal       bool
	ExternalRecipients []string
	Attachments        []*domain.Attachment // 追加的新附件
}

// Update 合并部分变更并重走校验/路由/打分。草稿可借此推进为
// sent 或 scheduled（立即发送该草稿）。
func (s *MessageService) Update(ctx context.Context, input UpdateMessageInput) (*MessageResult, error) {
	message, err := s.repo.GetMessage(input.MessageID)
	if err != nil {
		return nil, err
	}
	if !message.IsParticipant(input.ActorID) {
		return nil, ErrNotParticipant
	}

	previousStatus := message.Status
	if input.Status != nil {
		if *input.Status != domain.StatusDraft && *input.Status != domain.StatusSent && *input.Status != domain.StatusScheduled {
			return nil, ErrInvalidStatus
		}
		if !domain.CanTransition(previousStatus, *input.Status) {
			return nil, ErrStatusTransition
		}
		message.Status = *input.Status
	}
	if input.RecipientEmail != nil {
		message.RecipientEmail = domain.NormalizeEmail(*input.RecipientEmail)
	}
	if input.CC != nil {
		message.CC = *input.CC
	}
	if input.BCC != nil {
		message.BCC = *input.BCC
	}
	if input.Subject != nil {
		message.Subject = *input.Subject
	}
	if input.Content != nil {
		message.Content = *input.Content
	}
	if input.Priority != nil {
		message.Priority = *input.Priority
	}
	if input.ScheduledAt != nil {
		message.ScheduledAt = input.ScheduledAt
	}

	if err := validateContentFields(message.Status, message.Subject, message.Content); err != nil {
		return nil, err
	}
	if message.Status == domain.StatusScheduled && message.ScheduledAt == nil {
		return nil, ErrScheduleTimeRequired
	}
	if message.Status == domain.StatusSent {
		message.ScheduledAt = nil
	}

	if len(input.Attachments) > 0 {
		message.Attachments = append(message.Attachments, s.materializeNew(ctx, message.SenderID, input.Attachments)...)
	}

	externalRecipients := s.routeAndScore(ctx, message, input.SendExternal, input.ExternalRecipients)

	message.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateMessage(message); err != nil {
		return nil, err
	}
	if message.IsSpam {
		s.metrics.SpamFlagged.Inc()
	}

	result := &MessageResult{Message: message}
	// 只有本次调用把消息推进为 sent 才触发投递，避免重复投递
	if message.Status == domain.StatusSent && previousStatus != domain.StatusSent {
		s.metrics.MessagesSent.Inc()
		result.Delivery = s.deliver(ctx, message, externalRecipients)
	}
	return result, nil
}

// Get 获取单条消息，仅限参与方且未被其软删除。
func (s *MessageService) Get(actorID, messageID string) (*domain.Message, error) {
	message, err := s.repo.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if !message.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if message.DeletedFor(actorID) {
		return nil, storage.ErrMessageNotFound
	}
	return message, nil
}

// ListOptions 列表查询的可选条件。
type ListOptions struct {
	IsStarred *bool
	Read      *bool
	Priority  domain.Priority
	Page      int
	PageSize  int
}

// ListInbox 收件箱：viewer 为接收方的消息。
// 历史数据中 folder 可能为空，一并计入收件箱。
func (s *MessageService) ListInbox(viewerID string, opts ListOptions) (*domain.MessagePage, error) {
	return s.repo.ListMessages(domain.MessageFilter{
		ViewerID:        viewerID,
		RecipientID:     viewerID,
		Folders:         []domain.Folder{domain.FolderInbox},
		IncludeNoFolder: true,
		Status:          domain.StatusSent,
		IsStarred:       opts.IsStarred,
		Read:            opts.Read,
		Priority:        opts.Priority,
		Page:            opts.Page,
		PageSize:        opts.PageSize,
	})
}

// ListSent 发件箱：viewer 为发送方的已发送消息。存储为 inbox 的行
// 从发送方视角同样属于发件箱。
func (s *MessageService) ListSent(viewerID string, opts ListOptions) (*domain.MessagePage, error) {
	return s.repo.ListMessages(domain.MessageFilter{
		ViewerID:  viewerID,
		SenderID:  viewerID,
		Folders:   []domain.Folder{domain.FolderSent, domain.FolderInbox},
		Status:    domain.StatusSent,
		IsStarred: opts.IsStarred,
		Priority:  opts.Priority,
		Page:      opts.Page,
		PageSize:  opts.PageSize,
	})
}

// ListDrafts 草稿箱：viewer 的草稿与待投递定时消息。
func (s *MessageService) ListDrafts(viewerID string, opts ListOptions) (*domain.MessagePage, error) {
	return s.repo.ListMessages(domain.MessageFilter{
		ViewerID: viewerID,
		SenderID: viewerID,
		Folders:  []domain.Folder{domain.FolderDrafts},
		Page:     opts.Page,
		PageSize: opts.PageSize,
	})
}

// Search 在 viewer 参与的消息中按关键词与条件检索。
func (s *MessageService) Search(viewerID string, filter domain.MessageFilter) (*domain.MessagePage, error) {
	filter.ViewerID = viewerID
	filter.ParticipantID = viewerID
	return s.repo.ListMessages(filter)
}

// SoftDelete 将 actor 加入消息的软删除集合。行不会被物理删除。
func (s *MessageService) SoftDelete(actorID, messageID string) error {
	message, err := s.repo.GetMessage(messageID)
	if err != nil {
		return err
	}
	if !message.IsParticipant(actorID) {
		return ErrNotParticipant
	}
	if message.DeletedFor(actorID) {
		return nil
	}
	message.MarkDeletedBy(actorID)
	now := time.Now().UTC()
	message.DeletedAt = &now
	return s.repo.UpdateMessage(message)
}

// SetStarred 设置星标，发送方与接收方均可操作，幂等。
func (s *MessageService) SetStarred(actorID, messageID string, starred bool) (*domain.Message, error) {
	return s.updateFlag(actorID, messageID, func(message *domain.Message) {
		message.IsStarred = starred
	})
}

// SetArchived 设置归档标记，发送方与接收方均可操作，幂等。
func (s *MessageService) SetArchived(actorID, messageID string, archived bool) (*domain.Message, error) {
	return s.updateFlag(actorID, messageID, func(message *domain.Message) {
		message.IsArchived = archived
	})
}

// MarkRead 标记已读，仅接收方可操作。
func (s *MessageService) MarkRead(actorID, messageID string) (*domain.Message, error) {
	message, err := s.repo.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if !message.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if actorID != message.RecipientID {
		return nil, ErrNotRecipient
	}
	if message.Read {
		return message, nil
	}
	now := time.Now().UTC()
	message.Read = true
	message.ReadAt = &now
	message.UpdatedAt = now
	if err := s.repo.UpdateMessage(message); err != nil {
		return nil, err
	}
	s.metrics.MessagesRead.Inc()
	return message, nil
}

func (s *MessageService) updateFlag(actorID, messageID string, apply func(*domain.Message)) (*domain.Message, error) {
	message, err := s.repo.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if !message.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	apply(message)
	message.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateMessage(message); err != nil {
		return nil, err
	}
	return message, nil
}

// materializeNew 物化带内容的新附件，已带 URL 的附件原样保留。
func (s *MessageService) materializeNew(ctx context.Context, senderID string, attachments []*domain.Attachment) []*domain.Attachment {
	kept := make([]*domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		if att.ID == "" {
			att.ID = uuid.NewString()
		}
		if len(att.Content) == 0 && att.URL != "" {
			kept = append(kept, att)
			continue
		}
		if err := s.materializer.Store(ctx, senderID, att); err != nil {
			s.logger.Warn("附件物化失败，已从消息中省略",
				zap.String("filename", att.Filename),
				zap.Error(err))
			s.metrics.AttachmentsDropped.Inc()
			continue
		}
		s.metrics.AttachmentsStored.Inc()
		s.metrics.AttachmentSize.Observe(float64(att.Size))
		kept = append(kept, att)
	}
	return kept
}

// routeAndScore 解析收件人、合并外部地址、重算垃圾分数，并决定
// recipient_id 与存储 folder。返回最终的外部投递地址表。
func (s *MessageService) routeAndScore(ctx context.Context, message *domain.Message, sendExternal bool, externalRecipients []string) []string {
	resolution := s.resolver.Resolve(ctx, message.AllRecipientAddresses())

	// 检测到外部地址即强制外投，调用方未勾选也一样
	if message.Status != domain.StatusDraft && len(resolution.External) > 0 {
		sendExternal = true
	}

	external := make([]string, 0, len(externalRecipients)+len(resolution.External))
	if sendExternal {
		seen := make(map[string]bool)
		appendExternal := func(email string) {
			normalized := domain.NormalizeEmail(email)
			if normalized == "" || seen[normalized] {
				return
			}
			seen[normalized] = true
			external = append(external, normalized)
		}
		for _, email := range externalRecipients {
			appendExternal(email)
		}
		for _, email := range resolution.External {
			appendExternal(email)
		}
	}

	// 垃圾分数永远由系统重算
	message.SpamScore = s.evaluator.Score(message.SenderEmail, message.Subject, message.Content)
	message.IsSpam = s.evaluator.IsSpam(message.SpamScore)

	// recipient_id：草稿归发送方自己；否则取解析结果，查无则回落发送方
	if message.Status == domain.StatusDraft {
		message.RecipientID = message.SenderID
	} else if identity, ok := resolution.Internal[message.RecipientEmail]; ok {
		message.RecipientID = identity.ID
	} else if message.RecipientID == "" {
		message.RecipientID = message.SenderID
	}

	switch message.Status {
	case domain.StatusDraft, domain.StatusScheduled:
		message.Folder = domain.FolderDrafts
	default:
		message.Folder = domain.FolderInbox
	}

	return external
}

// deliver 触发外部投递并把系统性失败折算成全失败报告。
func (s *MessageService) deliver(ctx context.Context, message *domain.Message, recipients []string) *domain.DeliveryReport {
	if len(recipients) == 0 {
		return domain.NewDeliveryReport()
	}
	report, err := s.dispatcher.Dispatch(ctx, message, recipients)
	if err != nil {
		// 发件身份未配置：消息保持已持久化，报告里全员失败
		s.logger.Error("外部投递无法进行",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return domain.AllFailed(recipients, err.Error())
	}
	return report
}

func validateContentFields(status domain.MessageStatus, subject, content string) error {
	if status != domain.StatusDraft {
		if subject == "" {
			return ErrSubjectRequired
		}
		if content == "" {
			return ErrContentRequired
		}
	}
	if !domain.ValidateSubject(subject) {
		return ErrSubjectInvalid
	}
	if !domain.ValidateContent(content) {
		return ErrContentTooLong
	}
	return nil
}
