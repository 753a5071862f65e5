package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizmail/backend/internal/attachment"
	"bizmail/backend/internal/blob"
	"bizmail/backend/internal/config"
	"bizmail/backend/internal/directory"
	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/gateway"
	"bizmail/backend/internal/gateway/ses"
	"bizmail/backend/internal/gateway/stdout"
	"bizmail/backend/internal/logger"
	"bizmail/backend/internal/monitoring"
	"bizmail/backend/internal/service"
	"bizmail/backend/internal/storage"
	"bizmail/backend/internal/storage/memory"
	sqlstore "bizmail/backend/internal/storage/sql"
)

// main 是定时投递处理器的程序入口。
// 周期性扫描到期的 scheduled 消息并完成投递与晋升，独立于 API 进程运行。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()
	log.Info("starting bizmail scheduler",
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Int("workers", cfg.Scheduler.Workers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层。定时投递依赖持久化存储，
	// 内存存储仅用于本地试跑（与 API 进程不共享数据）。
	var store storage.Store
	if cfg.Database.Type != "" {
		sqlStore, err := sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			log.Fatal("failed to initialize database storage", zap.Error(err))
		}
		store = sqlStore
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Warn("using memory storage, scheduled messages from the API process are not visible")
	}
	defer store.Close()

	// 初始化身份目录（含可选的 Redis 缓存）
	var dir directory.Directory
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewClient(cfg.Directory.BaseURL)
	} else {
		dir = directory.NewStatic(parseStaticIdentities(cfg.Directory.StaticIdentities))
	}
	if cfg.Redis.Enabled {
		cached, err := directory.NewCachedDirectory(
			dir,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Directory.CacheTTL,
			log,
		)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer cached.Close()
		dir = cached
	}
	resolver := directory.NewResolver(dir, log)

	// 初始化附件存储与外部邮件网关
	blobStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize blob storage", zap.Error(err))
	}
	materializer := attachment.NewMaterializer(blobStore, log)

	sender, err := newMailSender(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize mail gateway", zap.Error(err))
	}
	if sender == nil {
		log.Warn("no verified sender configured, external delivery is disabled")
	}

	metrics := monitoring.NewMetrics()
	dispatcher := service.NewDispatcher(sender, materializer, rate.Limit(cfg.Mail.SendRate), metrics, log)

	scheduler := service.NewScheduler(
		store,
		resolver,
		dispatcher,
		metrics,
		log,
		cfg.Scheduler.Interval,
		cfg.Scheduler.Workers,
	)

	scheduler.Run(ctx)

	log.Info("scheduler stopped cleanly")
}

// newBlobStore 根据配置创建附件存储后端。
func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Provider {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Options{
			Region:          cfg.Blob.Region,
			Bucket:          cfg.Blob.Bucket,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
		})
	default:
		return blob.NewFSStore(cfg.Blob.Path, cfg.Blob.BaseURL)
	}
}

// newMailSender 根据配置创建外部邮件网关，nil 表示未配置发件身份。
func newMailSender(ctx context.Context, cfg *config.Config, log *zap.Logger) (gateway.Sender, error) {
	switch cfg.Mail.Provider {
	case "ses":
		if cfg.Mail.Sender == "" {
			return nil, nil
		}
		return ses.New(ctx, ses.Config{
			Region:          cfg.Mail.Region,
			AccessKeyID:     cfg.Mail.AccessKeyID,
			SecretAccessKey: cfg.Mail.SecretAccessKey,
			Sender:          cfg.Mail.Sender,
		}, log)
	case "stdout":
		return stdout.New(), nil
	default:
		return nil, nil
	}
}

// parseStaticIdentities 解析 "id=email" 形式的静态目录条目。
func parseStaticIdentities(entries []string) []domain.Identity {
	identities := make([]domain.Identity, 0, len(entries))
	for _, entry := range entries {
		id, email, found := strings.Cut(entry, "=")
		if !found || id == "" || email == "" {
			continue
		}
		identities = append(identities, domain.Identity{
			ID:    strings.TrimSpace(id),
			Email: strings.TrimSpace(email),
		})
	}
	return identities
}
