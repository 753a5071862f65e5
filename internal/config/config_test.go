package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"BIZMAIL_JWT_SECRET",
		"BIZMAIL_SERVER_HOST",
		"BIZMAIL_SERVER_PORT",
		"BIZMAIL_CORS_ALLOWED_ORIGINS",
		"BIZMAIL_LOG_LEVEL",
		"BIZMAIL_LOG_DEVELOPMENT",
		"BIZMAIL_DATABASE_TYPE",
		"BIZMAIL_DATABASE_DSN",
		"BIZMAIL_DIRECTORY_BASE_URL",
		"BIZMAIL_DIRECTORY_STATIC_IDENTITIES",
		"BIZMAIL_DIRECTORY_CACHE_TTL",
		"BIZMAIL_MAIL_PROVIDER",
		"BIZMAIL_MAIL_SENDER",
		"BIZMAIL_MAIL_SEND_RATE",
		"BIZMAIL_BLOB_PROVIDER",
		"BIZMAIL_BLOB_BUCKET",
		"BIZMAIL_SCHEDULER_INTERVAL",
		"BIZMAIL_SCHEDULER_WORKERS",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearEnv := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv()
		os.Setenv("BIZMAIL_JWT_SECRET", "test-secret-key-for-development-32-chars-long-at-least")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "", cfg.Database.Type)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
		assert.Equal(t, "bizmail", cfg.JWT.Issuer)
		assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
		assert.Equal(t, "", cfg.Directory.BaseURL)
		assert.Equal(t, 5*time.Minute, cfg.Directory.CacheTTL)
		assert.Equal(t, "", cfg.Mail.Provider)
		assert.Equal(t, 1.0, cfg.Mail.SendRate)
		assert.Equal(t, "fs", cfg.Blob.Provider)
		assert.Equal(t, "./data/attachments", cfg.Blob.Path)
		assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
		assert.Equal(t, 4, cfg.Scheduler.Workers)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		clearEnv()
		os.Setenv("BIZMAIL_JWT_SECRET", "custom-jwt-secret-key-32-chars-long-minimum")
		os.Setenv("BIZMAIL_SERVER_HOST", "127.0.0.1")
		os.Setenv("BIZMAIL_SERVER_PORT", "9090")
		os.Setenv("BIZMAIL_CORS_ALLOWED_ORIGINS", "https://mail.example.com,https://admin.example.com")
		os.Setenv("BIZMAIL_DATABASE_TYPE", "mysql")
		os.Setenv("BIZMAIL_DATABASE_DSN", "user:pass@tcp(localhost:3306)/bizmail?parseTime=true")
		os.Setenv("BIZMAIL_DIRECTORY_BASE_URL", "http://directory.internal:8081")
		os.Setenv("BIZMAIL_DIRECTORY_CACHE_TTL", "90s")
		os.Setenv("BIZMAIL_MAIL_PROVIDER", "ses")
		os.Setenv("BIZMAIL_MAIL_SENDER", "notifications@corp.example.com")
		os.Setenv("BIZMAIL_MAIL_SEND_RATE", "5")
		os.Setenv("BIZMAIL_SCHEDULER_INTERVAL", "10s")
		os.Setenv("BIZMAIL_SCHEDULER_WORKERS", "8")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"https://mail.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "mysql", cfg.Database.Type)
		assert.Equal(t, "http://directory.internal:8081", cfg.Directory.BaseURL)
		assert.Equal(t, 90*time.Second, cfg.Directory.CacheTTL)
		assert.Equal(t, "ses", cfg.Mail.Provider)
		assert.Equal(t, "notifications@corp.example.com", cfg.Mail.Sender)
		assert.Equal(t, 5.0, cfg.Mail.SendRate)
		assert.Equal(t, 10*time.Second, cfg.Scheduler.Interval)
		assert.Equal(t, 8, cfg.Scheduler.Workers)
	})

	t.Run("默认JWT密钥被拒绝", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "SECURITY ERROR")
	})

	t.Run("过短的JWT密钥被拒绝", func(t *testing.T) {
		clearEnv()
		os.Setenv("BIZMAIL_JWT_SECRET", "too-short")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("非法的邮件通道被拒绝", func(t *testing.T) {
		clearEnv()
		os.Setenv("BIZMAIL_JWT_SECRET", "test-secret-key-for-development-32-chars-long-at-least")
		os.Setenv("BIZMAIL_MAIL_PROVIDER", "smtp")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("S3存储必须配置桶名", func(t *testing.T) {
		clearEnv()
		os.Setenv("BIZMAIL_JWT_SECRET", "test-secret-key-for-development-32-chars-long-at-least")
		os.Setenv("BIZMAIL_BLOB_PROVIDER", "s3")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("静态目录条目解析", func(t *testing.T) {
		clearEnv()
		os.Setenv("BIZMAIL_JWT_SECRET", "test-secret-key-for-development-32-chars-long-at-least")
		os.Setenv("BIZMAIL_DIRECTORY_STATIC_IDENTITIES", "u1=alice@corp.test, u2=bob@corp.test")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, []string{"u1=alice@corp.test", "u2=bob@corp.test"}, cfg.Directory.StaticIdentities)
	})
}
