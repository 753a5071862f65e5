package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore 基于本地文件系统的附件存储，主要用于开发验证与测试。
type FSStore struct {
	basePath string
	baseURL  string
}

// NewFSStore 创建文件系统附件存储。baseURL 用于拼接返回的访问地址。
func NewFSStore(basePath, baseURL string) (*FSStore, error) {
	normalizedPath := filepath.Clean(basePath)
	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FSStore{
		basePath: normalizedPath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// Put 将附件内容写入本地文件并返回访问 URL。
func (s *FSStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	// key 可能带路径分隔，落盘前做穿越防护
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid attachment key: %s", key)
	}

	target := filepath.Join(s.basePath, cleaned)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	return s.baseURL + "/" + filepath.ToSlash(cleaned), nil
}
