// Package directory 对接身份目录：按邮箱地址查询已注册身份。
// 目录是外部协作方，子系统只读不写。
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bizmail/backend/internal/domain"
)

// defaultTimeout 目录查询的默认超时。
const defaultTimeout = 10 * time.Second

// Directory 身份目录查询接口。
type Directory interface {
	// Lookup 按邮箱地址查询身份。地址未注册时返回 (nil, nil)，
	// 目录不可达时返回错误。
	Lookup(ctx context.Context, email string) (*domain.Identity, error)
}

// Client 通过 HTTP 访问身份目录服务。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建身份目录 HTTP 客户端。
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Lookup 查询身份。目录返回 404 视为地址未注册。
func (c *Client) Lookup(ctx context.Context, email string) (*domain.Identity, error) {
	endpoint := fmt.Sprintf("%s/v1/identities?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var identity domain.Identity
		if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
			return nil, fmt.Errorf("failed to decode directory response: %w", err)
		}
		return &identity, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
}

// Static 静态身份目录，用于开发验证与测试。
type Static struct {
	byEmail map[string]domain.Identity
}

// NewStatic 用一组身份创建静态目录。
func NewStatic(identities []domain.Identity) *Static {
	byEmail := make(map[string]domain.Identity, len(identities))
	for _, identity := range identities {
		byEmail[domain.NormalizeEmail(identity.Email)] = identity
	}
	return &Static{byEmail: byEmail}
}

// Lookup 在静态表中查询身份。
func (s *Static) Lookup(_ context.Context, email string) (*domain.Identity, error) {
	identity, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}
