package directory

import (
	"context"

	"go.uber.org/zap"

	"bizmail/backend/internal/domain"
)

// Resolution 一次收件人解析的结果。
type Resolution struct {
	// Internal 已注册地址到身份的映射，键为规整后的地址。
	Internal map[string]domain.Identity
	// External 未注册地址，需走外部邮件投递。
	External []string
}

// Resolver 将收件地址集合划分为注册身份与外部地址。
// 目录故障时放行降级：全部按外部地址处理，不阻断发送。
type Resolver struct {
	directory Directory
	logger    *zap.Logger
}

// NewResolver 创建收件人解析器。
func NewResolver(directory Directory, logger *zap.Logger) *Resolver {
	return &Resolver{directory: directory, logger: logger}
}

// Resolve 逐个地址查询目录。地址在解析前做规整与去重。
func (r *Resolver) Resolve(ctx context.Context, emails []string) *Resolution {
	resolution := &Resolution{
		Internal: make(map[string]domain.Identity),
		External: make([]string, 0),
	}

	seen := make(map[string]bool, len(emails))
	for _, email := range emails {
		normalized := domain.NormalizeEmail(email)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		identity, err := r.directory.Lookup(ctx, normalized)
		if err != nil {
			r.logger.Warn("身份目录查询失败，按外部地址处理",
				zap.String("email", normalized),
				zap.Error(err))
			resolution.External = append(resolution.External, normalized)
			continue
		}
		if identity == nil {
			resolution.External = append(resolution.External, normalized)
			continue
		}
		resolution.Internal[normalized] = *identity
	}

	return resolution
}
