package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	t.Run("合法邮箱", func(t *testing.T) {
		assert.NoError(t, ValidateEmail("alice@example.com"))
		assert.NoError(t, ValidateEmail("  bob@corp.example.org  "))
	})

	t.Run("非法邮箱", func(t *testing.T) {
		assert.ErrorIs(t, ValidateEmail(""), ErrInvalidEmail)
		assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrInvalidEmail)
		assert.ErrorIs(t, ValidateEmail("@example.com"), ErrInvalidEmail)
	})

	t.Run("超长邮箱", func(t *testing.T) {
		long := strings.Repeat("a", MaxEmailLength) + "@example.com"
		assert.ErrorIs(t, ValidateEmail(long), ErrEmailTooLong)
	})
}

func TestValidateSubject(t *testing.T) {
	t.Run("正常主题", func(t *testing.T) {
		assert.True(t, ValidateSubject("季度报告"))
		assert.True(t, ValidateSubject(""))
	})

	t.Run("超长主题", func(t *testing.T) {
		assert.False(t, ValidateSubject(strings.Repeat("x", MaxSubjectLength+1)))
	})

	t.Run("控制字符", func(t *testing.T) {
		assert.False(t, ValidateSubject("hello\x00world"))
		assert.False(t, ValidateSubject("line1\nline2"))
	})
}

func TestValidateContent(t *testing.T) {
	assert.True(t, ValidateContent(strings.Repeat("a", MaxContentLength)))
	assert.False(t, ValidateContent(strings.Repeat("a", MaxContentLength+1)))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestFolderFor(t *testing.T) {
	t.Run("草稿归草稿箱", func(t *testing.T) {
		msg := &Message{SenderID: "u1", Status: StatusDraft}
		assert.Equal(t, FolderDrafts, msg.FolderFor("u1"))
	})

	t.Run("定时消息发送方视角仍是草稿箱", func(t *testing.T) {
		msg := &Message{SenderID: "u1", Status: StatusScheduled}
		assert.Equal(t, FolderDrafts, msg.FolderFor("u1"))
	})

	t.Run("已发送消息按视角区分", func(t *testing.T) {
		msg := &Message{SenderID: "u1", RecipientID: "u2", Status: StatusSent}
		assert.Equal(t, FolderSent, msg.FolderFor("u1"))
		assert.Equal(t, FolderInbox, msg.FolderFor("u2"))
	})

	t.Run("归档优先于收发件箱", func(t *testing.T) {
		msg := &Message{SenderID: "u1", RecipientID: "u2", Status: StatusSent, IsArchived: true}
		assert.Equal(t, FolderArchive, msg.FolderFor("u2"))
	})
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		ok       bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusScheduled, true},
		{StatusScheduled, StatusSent, true},
		{StatusSent, StatusDraft, false},
		{StatusSent, StatusScheduled, false},
		{StatusScheduled, StatusDraft, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStringList(t *testing.T) {
	t.Run("追加幂等", func(t *testing.T) {
		var list StringList
		list = list.Append("u1")
		list = list.Append("u1")
		list = list.Append("u2")
		assert.Len(t, list, 2)
		assert.True(t, list.Contains("u1"))
		assert.False(t, list.Contains("u3"))
	})

	t.Run("数据库序列化往返", func(t *testing.T) {
		list := StringList{"u1", "u2"}
		value, err := list.Value()
		assert.NoError(t, err)

		var decoded StringList
		assert.NoError(t, decoded.Scan(value))
		assert.Equal(t, list, decoded)
	})

	t.Run("空列表落库为NULL", func(t *testing.T) {
		var list StringList
		value, err := list.Value()
		assert.NoError(t, err)
		assert.Nil(t, value)
	})
}

func TestMessageFilterNormalize(t *testing.T) {
	filter := MessageFilter{Page: 0, PageSize: 500}
	filter.Normalize()
	assert.Equal(t, 1, filter.Page)
	assert.Equal(t, MaxPageSize, filter.PageSize)

	filter = MessageFilter{}
	filter.Normalize()
	assert.Equal(t, DefaultPageSize, filter.PageSize)
}
