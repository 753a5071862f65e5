package domain

// DeliveryFailure 单个外部收件人的投递失败记录。
type DeliveryFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// DeliveryReport 外部投递结果汇总，随发送操作一并返回给调用方。
// 部分失败不会回滚已持久化的消息。
type DeliveryReport struct {
	Success []string          `json:"success"`
	Failed  []DeliveryFailure `json:"failed"`
}

// NewDeliveryReport 创建空的投递报告。
func NewDeliveryReport() *DeliveryReport {
	return &DeliveryReport{
		Success: make([]string, 0),
		Failed:  make([]DeliveryFailure, 0),
	}
}

// AddSuccess 记录一个投递成功的地址。
func (r *DeliveryReport) AddSuccess(email string) {
	r.Success = append(r.Success, email)
}

// AddFailure 记录一个投递失败的地址及原因。
func (r *DeliveryReport) AddFailure(email, reason string) {
	r.Failed = append(r.Failed, DeliveryFailure{Email: email, Error: reason})
}

// AllFailed 将一组地址全部记为失败，用于系统性错误（如发件身份未配置）。
func AllFailed(emails []string, reason string) *DeliveryReport {
	report := NewDeliveryReport()
	for _, email := range emails {
		report.AddFailure(email, reason)
	}
	return report
}
