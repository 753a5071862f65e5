// Package spam 提供基于关键词的垃圾消息打分。
// 创建和更新都会重新打分，结果随内容变化。
package spam

import "strings"

// 打分规则
const (
	KeywordScore = 20  // 命中一个关键词（主题或正文，按词去重）
	NoReplyScore = 10  // 发件地址带 no-reply 标记
	MaxScore     = 100 // 分数上限
	Threshold    = 50  // 达到该分数即标记为垃圾消息
)

// 垃圾关键词表。大小写不敏感，同一关键词在主题与正文中
// 重复出现只计一次。
var spamKeywords = []string{
	"viagra",
	"gratuit",
	"urgent",
	"cliquez ici",
	"félicitations",
	"gagnant",
	"loterie",
	"héritage",
	"casino",
	"crédit gratuit",
	"free money",
	"click here",
	"act now",
	"limited offer",
	"no risk",
	"winner",
	"lottery",
	"inheritance",
}

// 发件地址中的免回复标记。
var noReplyMarkers = []string{
	"no-reply",
	"noreply",
	"no_reply",
}

// Evaluator 垃圾消息打分器。
type Evaluator struct {
	keywords []string
}

// NewEvaluator 创建使用内置关键词表的打分器。
func NewEvaluator() *Evaluator {
	return &Evaluator{keywords: spamKeywords}
}

// Score 计算消息的垃圾分数，区间 [0, 100]。
// 每命中一个关键词加 20 分（主题和正文合并匹配，去重），
// 发件地址带免回复标记加 10 分。
func (e *Evaluator) Score(senderEmail, subject, content string) int {
	score := 0
	subjectLower := strings.ToLower(subject)
	contentLower := strings.ToLower(content)

	for _, keyword := range e.keywords {
		if strings.Contains(subjectLower, keyword) || strings.Contains(contentLower, keyword) {
			score += KeywordScore
		}
	}

	senderLower := strings.ToLower(senderEmail)
	for _, marker := range noReplyMarkers {
		if strings.Contains(senderLower, marker) {
			score += NoReplyScore
			break
		}
	}

	if score > MaxScore {
		score = MaxScore
	}
	return score
}

// IsSpam 判断分数是否达到垃圾消息阈值。
func (e *Evaluator) IsSpam(score int) bool {
	return score >= Threshold
}
