// Package attachment 负责附件内容的落盘与回读。
// 消息元数据只存附件的 URL 与描述信息，内容本体放对象存储。
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"bizmail/backend/internal/blob"
	"bizmail/backend/internal/domain"
)

// maxAttachmentSize 单个附件的大小上限。
const maxAttachmentSize = 10 * 1024 * 1024 // 10MB

// 附件相关错误定义
var (
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrDangerousExtension = errors.New("dangerous file extension")
	ErrEmptyAttachment    = errors.New("attachment content is empty")
)

// dangerousExtensions 拒收的可执行扩展名。
var dangerousExtensions = map[string]bool{
	".exe": true,
	".bat": true,
	".cmd": true,
	".scr": true,
	".pif": true,
	".com": true,
	".vbs": true,
	".js":  true,
	".jar": true,
	".php": true,
	".asp": true,
	".jsp": true,
}

// Materializer 附件物化器：上传内容换取 URL，投递时再按 URL 取回内容。
type Materializer struct {
	store      blob.Store
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewMaterializer 创建附件物化器。
func NewMaterializer(store blob.Store, logger *zap.Logger) *Materializer {
	return &Materializer{
		store: store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Store 校验并上传单个附件，回填 URL 与大小，随后清空内存中的内容。
func (m *Materializer) Store(ctx context.Context, senderID string, att *domain.Attachment) error {
	if len(att.Content) == 0 {
		return ErrEmptyAttachment
	}
	if len(att.Content) > maxAttachmentSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrAttachmentTooLarge, att.Filename, len(att.Content))
	}
	ext := strings.ToLower(filepath.Ext(att.Filename))
	if dangerousExtensions[ext] {
		return fmt.Errorf("%w: %s", ErrDangerousExtension, ext)
	}

	key := fmt.Sprintf("attachments/%s/%d-%s", senderID, m.now().UnixNano(), sanitizeFilename(att.Filename))
	url, err := m.store.Put(ctx, key, att.ContentType, att.Content)
	if err != nil {
		return fmt.Errorf("failed to store attachment %s: %w", att.Filename, err)
	}

	att.URL = url
	att.Size = int64(len(att.Content))
	att.Content = nil
	return nil
}

// StoreAll 批量物化附件。单个附件失败不阻断整体：
// 失败的附件被丢弃并记录日志，消息照常保存。
func (m *Materializer) StoreAll(ctx context.Context, senderID string, attachments []*domain.Attachment) []*domain.Attachment {
	kept := make([]*domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		if err := m.Store(ctx, senderID, att); err != nil {
			m.logger.Warn("附件物化失败，已丢弃",
				zap.String("filename", att.Filename),
				zap.Error(err))
			continue
		}
		kept = append(kept, att)
	}
	return kept
}

// Inline 取回附件内容到内存，用于外部投递。内容已在内存时直接复用。
func (m *Materializer) Inline(ctx context.Context, att *domain.Attachment) error {
	if len(att.Content) > 0 {
		return nil
	}
	if att.URL == "" {
		return fmt.Errorf("attachment %s has no URL", att.Filename)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build attachment request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch attachment %s: %w", att.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", att.Filename, err)
	}
	if len(content) > maxAttachmentSize {
		return fmt.Errorf("%w: %s", ErrAttachmentTooLarge, att.Filename)
	}

	att.Content = content
	return nil
}

// InlineAll 批量取回附件内容。单个失败只丢弃该附件并记录日志。
func (m *Materializer) InlineAll(ctx context.Context, attachments []*domain.Attachment) []*domain.Attachment {
	kept := make([]*domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		if err := m.Inline(ctx, att); err != nil {
			m.logger.Warn("附件回读失败，投递时跳过",
				zap.String("filename", att.Filename),
				zap.Error(err))
			continue
		}
		kept = append(kept, att)
	}
	return kept
}

// sanitizeFilename 去除文件名中的路径分隔符等危险字符。
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	cleaned := replacer.Replace(filename)
	if cleaned == "" {
		cleaned = "attachment"
	}
	return cleaned
}
