package domain

// Conversation 会话投影：以对方身份为键聚合的只读视图。
// 每次查询时重算，不落库。
type Conversation struct {
	ParticipantID string   `json:"participantId"` // 对方身份ID
	LastMessage   *Message `json:"lastMessage"`   // 最近一条消息
	UnreadCount   int      `json:"unreadCount"`   // viewer 作为接收方的未读数
}
