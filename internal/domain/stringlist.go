package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList 以 JSON 文本列存储的字符串集合。
// 用于 deleted_by 这类集合字段，配合 gorm 的 text 列使用。
type StringList []string

// Contains 判断集合是否包含指定值。
func (l StringList) Contains(value string) bool {
	for _, item := range l {
		if item == value {
			return true
		}
	}
	return false
}

// Append 追加一个值，已存在时返回原集合。
func (l StringList) Append(value string) StringList {
	if value == "" || l.Contains(value) {
		return l
	}
	return append(l, value)
}

// Value 实现 driver.Valuer，序列化为 JSON 文本。
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner，从 JSON 文本反序列化。
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for StringList: %T", src)
	}

	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}
