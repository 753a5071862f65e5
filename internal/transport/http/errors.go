package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"bizmail/backend/internal/service"
	"bizmail/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	service.ErrSubjectRequired:      "非草稿消息必须填写主题",
	service.ErrContentRequired:      "非草稿消息必须填写正文",
	service.ErrScheduleTimeRequired: "定时消息必须指定投递时间",
	service.ErrSubjectInvalid:       "主题过长或包含非法字符",
	service.ErrContentTooLong:       "正文超出长度限制",
	service.ErrInvalidStatus:        "消息状态无效",
	service.ErrStatusTransition:     "不允许的状态变更",
	service.ErrNotParticipant:       "您不是该消息的参与方",
	service.ErrNotRecipient:         "只有接收方可以执行该操作",
	storage.ErrMessageNotFound:      "消息不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for known, msg := range errorMessages {
		if errors.Is(err, known) {
			return msg
		}
	}
	return err.Error()
}

// respondError 按错误类型写响应。
func respondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)
	switch {
	case errors.Is(err, storage.ErrMessageNotFound):
		NotFound(c, msg)
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotRecipient):
		Forbidden(c, msg)
	case errors.Is(err, service.ErrSubjectRequired),
		errors.Is(err, service.ErrContentRequired),
		errors.Is(err, service.ErrScheduleTimeRequired),
		errors.Is(err, service.ErrSubjectInvalid),
		errors.Is(err, service.ErrContentTooLong),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrStatusTransition):
		BadRequest(c, msg)
	default:
		InternalError(c, msg)
	}
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgAuthRequired   = "需要登录认证"
	MsgTokenInvalid   = "无效的访问令牌"
)
