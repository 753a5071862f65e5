package domain

import "time"

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MessageFilter 消息查询条件。
// ViewerID 用于软删除过滤：deleted_by 包含 viewer 的消息永远不返回。
type MessageFilter struct {
	ViewerID        string        // 查询视角（软删除过滤，必填）
	SenderID        string        // 发送方筛选
	RecipientID     string        // 接收方筛选
	ParticipantID   string        // 参与方筛选（发送方或接收方，搜索用）
	Folders         []Folder      // 存储 folder 提示筛选
	IncludeNoFolder bool          // 同时匹配 folder 为空的历史行（收件箱查询需要）
	Status          MessageStatus // 状态筛选
	IsStarred       *bool         // 星标筛选
	Read            *bool         // 已读筛选
	Priority        Priority      // 优先级筛选
	Query           string        // 关键词（主题、正文、对方地址）
	StartDate       *time.Time    // 创建时间下界
	EndDate         *time.Time    // 创建时间上界
	Page            int           // 页码（默认1）
	PageSize        int           // 每页数量（默认20，最大100）
}

// Normalize 规整分页参数。
func (f *MessageFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

// MessagePage 分页查询结果。
type MessagePage struct {
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}
