package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"bizmail/backend/internal/service"
)

// ConversationHandler 会话相关接口。
type ConversationHandler struct {
	conversations *service.ConversationService
}

// NewConversationHandler 创建会话处理器。
func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// List 列出会话
// GET /api/v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.conversations.List(c.GetString("identityID"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, list)
}

// UnreadCount 未读总数
// GET /api/v1/conversations/unread-count
func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	count, err := h.conversations.UnreadCount(c.GetString("identityID"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"unread": count})
}

// parsePositiveInt 解析正整数查询参数。
func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// parseBoolParam 解析布尔查询参数，空值返回 ok=false。
func parseBoolParam(value string) (bool, bool) {
	if value == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return parsed, true
}
