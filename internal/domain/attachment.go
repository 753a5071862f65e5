package domain

// Attachment 表示消息附件。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`            // 附件唯一标识
	MessageID   string `json:"messageId" gorm:"type:varchar(36);index;not null"` // 所属消息ID
	Filename    string `json:"name" gorm:"type:varchar(255)"`                    // 文件名
	ContentType string `json:"type" gorm:"type:varchar(100)"`                    // MIME类型
	Size        int64  `json:"size"`                                             // 大小（字节）
	URL         string `json:"url,omitempty" gorm:"type:varchar(500)"`           // 对象存储中的可取回地址
	Content     []byte `json:"-" gorm:"-"`                                       // 内联内容（不入库，外发时按需取回）
}

// Clone 复制附件描述符并挂到新消息上。定时投递生成收件箱副本时使用。
func (a *Attachment) Clone(newID, messageID string) *Attachment {
	clone := *a
	clone.ID = newID
	clone.MessageID = messageID
	return &clone
}
