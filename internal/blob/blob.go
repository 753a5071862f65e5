// Package blob 提供附件内容的对象存储抽象。
package blob

import "context"

// Store 附件内容存储。Put 上传内容并返回可访问的 URL。
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
}
