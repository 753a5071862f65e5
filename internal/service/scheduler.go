package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizmail/backend/internal/directory"
	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/monitoring"
	"bizmail/backend/internal/pool"
	"bizmail/backend/internal/storage"
)

// ProcessOutcome 定时处理单条消息的结果。
type ProcessOutcome string

const (
	// OutcomePromoted 本次调用完成了投递与状态推进。
	OutcomePromoted ProcessOutcome = "promoted"
	// OutcomeAlreadyProcessed 消息已不在 scheduled 状态，并发调用下的无害空转。
	OutcomeAlreadyProcessed ProcessOutcome = "already_processed"
	// OutcomeNotReady 计划时间未到。
	OutcomeNotReady ProcessOutcome = "not_ready"
)

// Scheduler 定时投递处理器：扫描到期的定时消息并逐条推进。
type Scheduler struct {
	repo       storage.MessageRepository
	resolver   *directory.Resolver
	dispatcher *Dispatcher
	metrics    *monitoring.Metrics
	logger     *zap.Logger

	interval time.Duration
	pool     *pool.WorkerPool
}

// NewScheduler 创建定时投递处理器。
func NewScheduler(
	repo storage.MessageRepository,
	resolver *directory.Resolver,
	dispatcher *Dispatcher,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	interval time.Duration,
	workers int,
) *Scheduler {
	return &Scheduler{
		repo:       repo,
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		pool:       pool.NewWorkerPool(workers, logger),
	}
}

// Run 周期性扫描到期消息，直到 context 取消。
func (s *Scheduler) Run(ctx context.Context) {
	s.pool.Start()
	defer s.pool.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("定时投递处理器启动", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("定时投递处理器退出")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan 扫描一轮到期消息，逐条提交到工作池处理。
func (s *Scheduler) Scan(ctx context.Context) {
	due, err := s.repo.ListDueScheduled(time.Now().UTC())
	if err != nil {
		s.logger.Error("扫描到期定时消息失败", zap.Error(err))
		return
	}
	for _, message := range due {
		id := message.ID
		s.pool.Submit(func() {
			outcome, err := s.Process(ctx, id)
			if err != nil {
				s.logger.Error("定时消息处理失败",
					zap.String("message_id", id),
					zap.Error(err))
				return
			}
			if outcome != OutcomePromoted {
				s.logger.Debug("定时消息空转",
					zap.String("message_id", id),
					zap.String("outcome", string(outcome)))
			}
		})
	}
}

// Process 处理一条定时消息。并发调用安全：状态推进走条件更新，
// 同一条消息至多被推进一次。
func (s *Scheduler) Process(ctx context.Context, messageID string) (ProcessOutcome, error) {
	message, err := s.repo.GetMessage(messageID)
	if err != nil {
		if err == storage.ErrMessageNotFound {
			s.metrics.ScheduledNoop.Inc()
			return OutcomeAlreadyProcessed, nil
		}
		return "", err
	}

	now := time.Now().UTC()
	if message.Status != domain.StatusScheduled {
		s.metrics.ScheduledNoop.Inc()
		return OutcomeAlreadyProcessed, nil
	}
	if message.ScheduledAt != nil && message.ScheduledAt.After(now) {
		s.metrics.ScheduledNoop.Inc()
		return OutcomeNotReady, nil
	}

	// 解析收件人，确定内部投递对象与外部地址表
	resolution := s.resolver.Resolve(ctx, message.AllRecipientAddresses())
	if identity, ok := resolution.Internal[message.RecipientEmail]; ok {
		message.RecipientID = identity.ID
	}

	// 外部投递：失败只记日志，不阻断内部投递与状态推进
	if len(resolution.External) > 0 {
		report, err := s.dispatcher.Dispatch(ctx, message, resolution.External)
		if err != nil {
			s.logger.Error("定时消息外部投递无法进行",
				zap.String("message_id", message.ID),
				zap.Error(err))
		} else if len(report.Failed) > 0 {
			s.logger.Warn("定时消息部分外部投递失败",
				zap.String("message_id", message.ID),
				zap.Int("failed", len(report.Failed)))
		}
	}

	// 内部收件人收到一条新的收件箱副本，原定时行不复用
	if message.RecipientID != "" && message.RecipientID != message.SenderID {
		inboxCopy := s.buildInboxCopy(message, now)
		if err := s.repo.SaveMessage(inboxCopy); err != nil {
			return "", fmt.Errorf("failed to save inbox copy: %w", err)
		}
	}

	promoted, err := s.repo.PromoteScheduled(message.ID, now)
	if err != nil {
		return "", err
	}
	if !promoted {
		// 条件更新落空：另一个调用抢先推进了
		s.metrics.ScheduledNoop.Inc()
		return OutcomeAlreadyProcessed, nil
	}

	s.metrics.ScheduledPromoted.Inc()
	s.metrics.MessagesSent.Inc()
	s.logger.Info("定时消息已投递",
		zap.String("message_id", message.ID),
		zap.Int("external_recipients", len(resolution.External)))
	return OutcomePromoted, nil
}

// buildInboxCopy 为内部收件人构造收件箱副本行。
func (s *Scheduler) buildInboxCopy(original *domain.Message, now time.Time) *domain.Message {
	copyID := uuid.NewString()
	attachments := make([]*domain.Attachment, 0, len(original.Attachments))
	for _, att := range original.Attachments {
		attachments = append(attachments, att.Clone(uuid.NewString(), copyID))
	}

	return &domain.Message{
		ID:             copyID,
		SenderID:       original.SenderID,
		SenderEmail:    original.SenderEmail,
		RecipientID:    original.RecipientID,
		RecipientEmail: original.RecipientEmail,
		CC:             original.CC,
		BCC:            original.BCC,
		Subject:        original.Subject,
		Content:        original.Content,
		Status:         domain.StatusSent,
		Folder:         domain.FolderInbox,
		Priority:       original.Priority,
		SpamScore:      original.SpamScore,
		IsSpam:         original.IsSpam,
		Read:           false,
		ReplyToID:      original.ReplyToID,
		Attachments:    attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
