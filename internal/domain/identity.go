package domain

// Identity 身份目录中的一个注册用户。
// 身份目录是外部协作方，这里只保留子系统需要的字段。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
