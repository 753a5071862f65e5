package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizmail/backend/internal/attachment"
	jwtpkg "bizmail/backend/internal/auth/jwt"
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
	"bizmail/backend/internal/spam"
	"bizmail/backend/internal/storage"
	"bizmail/backend/internal/storage/memory"
	sqlstore "bizmail/backend/internal/storage/sql"
	httptransport "bizmail/backend/internal/transport/http"
)

// main 是消息投递子系统 HTTP API 的程序入口。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
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
	log.Info("starting bizmail API server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
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
		log.Info("using memory storage")
	}
	defer store.Close()

	// 初始化身份目录
	var dir directory.Directory
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewClient(cfg.Directory.BaseURL)
		log.Info("using directory service", zap.String("base_url", cfg.Directory.BaseURL))
	} else {
		dir = directory.NewStatic(parseStaticIdentities(cfg.Directory.StaticIdentities))
		log.Info("using static directory", zap.Int("identities", len(cfg.Directory.StaticIdentities)))
	}

	// 可选的 Redis 目录缓存
	var cachePinger monitoring.Pinger
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
		cachePinger = cached
		log.Info("directory cache enabled",
			zap.String("address", cfg.Redis.Address),
			zap.Duration("ttl", cfg.Directory.CacheTTL),
		)
	}

	resolver := directory.NewResolver(dir, log)

	// 初始化附件存储
	blobStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize blob storage", zap.Error(err))
	}
	materializer := attachment.NewMaterializer(blobStore, log)

	// 初始化外部邮件网关
	sender, err := newMailSender(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize mail gateway", zap.Error(err))
	}
	if sender == nil {
		log.Warn("no verified sender configured, external delivery is disabled")
	}

	metrics := monitoring.NewMetrics()

	dispatcher := service.NewDispatcher(sender, materializer, rate.Limit(cfg.Mail.SendRate), metrics, log)
	messageService := service.NewMessageService(
		store,
		resolver,
		spam.NewEvaluator(),
		materializer,
		dispatcher,
		metrics,
		log,
	)
	conversationService := service.NewConversationService(store)

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
	)

	healthChecker := monitoring.NewHealthChecker(store, cachePinger, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:              cfg,
		MessageService:      messageService,
		ConversationService: conversationService,
		JWTManager:          jwtManager,
		Metrics:             metrics,
		HealthChecker:       healthChecker,
		Logger:              log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("API server listening", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server stopped cleanly")
	}
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

// newMailSender 根据配置创建外部邮件网关。
// 返回 nil 表示未配置发件身份，外部投递会整体失败但不影响站内消息。
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
