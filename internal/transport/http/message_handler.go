package httptransport

import (
	"encoding/base64"
	"time"

	"github.com/gin-gonic/gin"

	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/service"
)

// MessageHandler 消息相关接口。
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler 创建消息处理器。
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// messageView 响应中的消息视图，folder 按 viewer 视角投影。
type messageView struct {
	*domain.Message
	Folder domain.Folder `json:"folder"`
}

func viewOf(message *domain.Message, viewerID string) messageView {
	return messageView{Message: message, Folder: message.FolderFor(viewerID)}
}

// pageView 分页响应视图。
type pageView struct {
	Messages   []messageView `json:"messages"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

func pageOf(page *domain.MessagePage, viewerID string) pageView {
	view := pageView{
		Messages:   make([]messageView, 0, len(page.Messages)),
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
	for i := range page.Messages {
		view.Messages = append(view.Messages, viewOf(&page.Messages[i], viewerID))
	}
	return view
}

// attachmentPayload 请求中的附件：新上传的带 base64 内容，已有的只带 URL。
type attachmentPayload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
	Data string `json:"data"` // base64 编码的内容
}

func decodeAttachments(payloads []attachmentPayload) ([]*domain.Attachment, error) {
	attachments := make([]*domain.Attachment, 0, len(payloads))
	for _, payload := range payloads {
		att := &domain.Attachment{
			Filename:    payload.Name,
			ContentType: payload.Type,
			Size:        payload.Size,
			URL:         payload.URL,
		}
		if payload.Data != "" {
			content, err := base64.StdEncoding.DecodeString(payload.Data)
			if err != nil {
				return nil, err
			}
			att.Content = content
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

type createMessageRequest struct {
	RecipientEmail     string              `json:"recipientEmail"`
	CC                 string              `json:"cc"`
	BCC                string              `json:"bcc"`
	Subject            string              `json:"subject"`
	Content            string              `json:"content"`
	Status             string              `json:"status"`
	Priority           string              `json:"priority"`
	ScheduledAt        *time.Time          `json:"scheduledAt"`
	ReplyToID          string              `json:"replyToId"`
	SendExternal       bool                `json:"sendExternalEmail"`
	ExternalRecipients []string            `json:"externalRecipients"`
	Attachments        []attachmentPayload `json:"attachments"`
}

// Create 创建消息
// POST /api/v1/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	attachments, err := decodeAttachments(req.Attachments)
	if err != nil {
		BadRequest(c, "附件内容不是合法的base64编码")
		return
	}

	identityID := c.GetString("identityID")
	result, err := h.messages.Create(c.Request.Context(), service.CreateMessageInput{
		SenderID:           identityID,
		SenderEmail:        c.GetString("email"),
		RecipientEmail:     req.RecipientEmail,
		CC:                 req.CC,
		BCC:                req.BCC,
		Subject:            req.Subject,
		Content:            req.Content,
		Status:             domain.MessageStatus(req.Status),
		Priority:           domain.Priority(req.Priority),
		ScheduledAt:        req.ScheduledAt,
		ReplyToID:          req.ReplyToID,
		SendExternal:       req.SendExternal,
		ExternalRecipients: req.ExternalRecipients,
		Attachments:        attachments,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	Created(c, gin.H{
		"message":  viewOf(result.Message, identityID),
		"delivery": result.Delivery,
	})
}

type updateMessageRequest struct {
	RecipientEmail     *string             `json:"recipientEmail"`
	CC                 *string             `json:"cc"`
	BCC                *string             `json:"bcc"`
	Subject            *string             `json:"subject"`
	Content            *string             `json:"content"`
	Status             *string             `json:"status"`
	Priority           *string             `json:"priority"`
	ScheduledAt        *time.Time          `json:"scheduledAt"`
	SendExternal       bool                `json:"sendExternalEmail"`
	ExternalRecipients []string            `json:"externalRecipients"`
	Attachments        []attachmentPayload `json:"attachments"`
}

// Update 更新消息（含发送草稿）
// PUT /api/v1/messages/:id
func (h *MessageHandler) Update(c *gin.Context) {
	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	attachments, err := decodeAttachments(req.Attachments)
	if err != nil {
		BadRequest(c, "附件内容不是合法的base64编码")
		return
	}

	identityID := c.GetString("identityID")
	input := service.UpdateMessageInput{
		ActorID:            identityID,
		MessageID:          c.Param("id"),
		RecipientEmail:     req.RecipientEmail,
		CC:                 req.CC,
		BCC:                req.BCC,
		Subject:            req.Subject,
		Content:            req.Content,
		ScheduledAt:        req.ScheduledAt,
		SendExternal:       req.SendExternal,
		ExternalRecipients: req.ExternalRecipients,
		Attachments:        attachments,
	}
	if req.Status != nil {
		status := domain.MessageStatus(*req.Status)
		input.Status = &status
	}
	if req.Priority != nil {
		priority := domain.Priority(*req.Priority)
		input.Priority = &priority
	}

	result, err := h.messages.Update(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	Success(c, gin.H{
		"message":  viewOf(result.Message, identityID),
		"delivery": result.Delivery,
	})
}

// Get 获取单条消息
// GET /api/v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	identityID := c.GetString("identityID")
	message, err := h.messages.Get(identityID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, viewOf(message, identityID))
}

// listOptions 解析通用列表查询参数。
func listOptions(c *gin.Context) service.ListOptions {
	opts := service.ListOptions{
		Priority: domain.Priority(c.Query("priority")),
	}
	if page, err := parsePositiveInt(c.Query("page")); err == nil {
		opts.Page = page
	}
	if pageSize, err := parsePositiveInt(c.Query("pageSize")); err == nil {
		opts.PageSize = pageSize
	}
	if starred, ok := parseBoolParam(c.Query("starred")); ok {
		opts.IsStarred = &starred
	}
	if read, ok := parseBoolParam(c.Query("read")); ok {
		opts.Read = &read
	}
	return opts
}

// ListInbox 收件箱
// GET /api/v1/messages/inbox
func (h *MessageHandler) ListInbox(c *gin.Context) {
	identityID := c.GetString("identityID")
	page, err := h.messages.ListInbox(identityID, listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, pageOf(page, identityID))
}

// ListSent 发件箱
// GET /api/v1/messages/sent
func (h *MessageHandler) ListSent(c *gin.Context) {
	identityID := c.GetString("identityID")
	page, err := h.messages.ListSent(identityID, listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, pageOf(page, identityID))
}

// ListDrafts 草稿箱
// GET /api/v1/messages/drafts
func (h *MessageHandler) ListDrafts(c *gin.Context) {
	identityID := c.GetString("identityID")
	page, err := h.messages.ListDrafts(identityID, listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, pageOf(page, identityID))
}

// Search 搜索消息
// GET /api/v1/messages/search
func (h *MessageHandler) Search(c *gin.Context) {
	identityID := c.GetString("identityID")

	filter := domain.MessageFilter{
		Query:    c.Query("q"),
		Status:   domain.MessageStatus(c.Query("status")),
		Priority: domain.Priority(c.Query("priority")),
	}
	if page, err := parsePositiveInt(c.Query("page")); err == nil {
		filter.Page = page
	}
	if pageSize, err := parsePositiveInt(c.Query("pageSize")); err == nil {
		filter.PageSize = pageSize
	}
	if starred, ok := parseBoolParam(c.Query("starred")); ok {
		filter.IsStarred = &starred
	}
	if start, err := time.Parse(time.RFC3339, c.Query("startDate")); err == nil {
		filter.StartDate = &start
	}
	if end, err := time.Parse(time.RFC3339, c.Query("endDate")); err == nil {
		filter.EndDate = &end
	}

	page, err := h.messages.Search(identityID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, pageOf(page, identityID))
}

// Delete 软删除消息
// DELETE /api/v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.messages.SoftDelete(c.GetString("identityID"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

// Star 加星标
// POST /api/v1/messages/:id/star
func (h *MessageHandler) Star(c *gin.Context) {
	h.setFlag(c, func(identityID, messageID string) (*domain.Message, error) {
		return h.messages.SetStarred(identityID, messageID, true)
	})
}

// Unstar 取消星标
// DELETE /api/v1/messages/:id/star
func (h *MessageHandler) Unstar(c *gin.Context) {
	h.setFlag(c, func(identityID, messageID string) (*domain.Message, error) {
		return h.messages.SetStarred(identityID, messageID, false)
	})
}

// Archive 归档
// POST /api/v1/messages/:id/archive
func (h *MessageHandler) Archive(c *gin.Context) {
	h.setFlag(c, func(identityID, messageID string) (*domain.Message, error) {
		return h.messages.SetArchived(identityID, messageID, true)
	})
}

// Unarchive 取消归档
// DELETE /api/v1/messages/:id/archive
func (h *MessageHandler) Unarchive(c *gin.Context) {
	h.setFlag(c, func(identityID, messageID string) (*domain.Message, error) {
		return h.messages.SetArchived(identityID, messageID, false)
	})
}

// MarkRead 标记已读
// POST /api/v1/messages/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	h.setFlag(c, func(identityID, messageID string) (*domain.Message, error) {
		return h.messages.MarkRead(identityID, messageID)
	})
}

func (h *MessageHandler) setFlag(c *gin.Context, apply func(identityID, messageID string) (*domain.Message, error)) {
	identityID := c.GetString("identityID")
	message, err := apply(identityID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, viewOf(message, identityID))
}
