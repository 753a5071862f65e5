package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
	MaxSize     int    // 单个日志文件最大大小 (MB)
	MaxBackups  int    // 保留的历史日志文件数量
	MaxAge      int    // 日志文件最长保留天数
	Compress    bool   // 是否压缩历史日志
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis（用于目录查询缓存）
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret       string        // JWT 签名密钥，必须至少 32 字符
	Issuer       string        // JWT 签发者标识，默认 "bizmail"
	AccessExpiry time.Duration // 访问令牌有效期，默认 15 分钟
}

// DirectoryConfig 定义身份目录服务配置
type DirectoryConfig struct {
	BaseURL          string        // 目录服务地址，留空使用静态目录
	StaticIdentities []string      // 静态目录条目，格式 "id=email"，仅开发用
	CacheTTL         time.Duration // 目录查询结果缓存时长，默认 5 分钟
}

// MailConfig 定义外部邮件投递配置
type MailConfig struct {
	Provider        string  // 投递通道: "ses"、"stdout" 或留空（不配置发件身份）
	Region          string  // AWS 区域，provider 为 ses 时必填
	AccessKeyID     string  // AWS 访问密钥，留空走默认凭证链
	SecretAccessKey string  // AWS 访问密钥
	Sender          string  // 已验证的发件地址，留空视为未配置发件身份
	SendRate        float64 // 每秒最多投递的邮件数，默认 1
}

// BlobConfig 定义附件对象存储配置
type BlobConfig struct {
	Provider        string // 存储后端: "s3" 或 "fs"，默认 "fs"
	Region          string // AWS 区域，provider 为 s3 时必填
	Bucket          string // S3 桶名
	AccessKeyID     string // AWS 访问密钥，留空走默认凭证链
	SecretAccessKey string // AWS 访问密钥
	Path            string // 本地存储根目录，默认 "./data/attachments"
	BaseURL         string // 本地存储对外 URL 前缀
}

// SchedulerConfig 定义定时投递扫描配置
type SchedulerConfig struct {
	Interval time.Duration // 扫描间隔，默认 30 秒
	Workers  int           // 并发处理的工作协程数，默认 4
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Database  DatabaseConfig  // 数据库配置
	Redis     RedisConfig     // Redis 配置
	JWT       JWTConfig       // JWT 认证配置
	Directory DirectoryConfig // 身份目录配置
	Mail      MailConfig      // 外部邮件投递配置
	Blob      BlobConfig      // 附件存储配置
	Scheduler SchedulerConfig // 定时投递配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: BIZMAIL_
// 例如: BIZMAIL_SERVER_HOST, BIZMAIL_JWT_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("bizmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "bizmail")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("directory.base_url", "")
	viper.SetDefault("directory.static_identities", "")
	viper.SetDefault("directory.cache_ttl", "5m")
	viper.SetDefault("mail.provider", "")
	viper.SetDefault("mail.region", "us-east-1")
	viper.SetDefault("mail.access_key_id", "")
	viper.SetDefault("mail.secret_access_key", "")
	viper.SetDefault("mail.sender", "")
	viper.SetDefault("mail.send_rate", 1.0)
	viper.SetDefault("blob.provider", "fs")
	viper.SetDefault("blob.region", "us-east-1")
	viper.SetDefault("blob.bucket", "")
	viper.SetDefault("blob.access_key_id", "")
	viper.SetDefault("blob.secret_access_key", "")
	viper.SetDefault("blob.path", "./data/attachments")
	viper.SetDefault("blob.base_url", "")
	viper.SetDefault("scheduler.interval", "30s")
	viper.SetDefault("scheduler.workers", 4)

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("directory.cache_ttl"))
	if err != nil {
		cacheTTL = 5 * time.Minute
	}

	schedulerInterval, err := time.ParseDuration(viper.GetString("scheduler.interval"))
	if err != nil {
		schedulerInterval = 30 * time.Second
	}

	schedulerWorkers := viper.GetInt("scheduler.workers")
	if schedulerWorkers <= 0 {
		schedulerWorkers = 4
	}

	sendRate := viper.GetFloat64("mail.send_rate")
	if sendRate <= 0 {
		sendRate = 1.0
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set BIZMAIL_JWT_SECRET environment variable")
	}

	// JWT secret 必须至少 32 字符
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	mailProvider := strings.ToLower(viper.GetString("mail.provider"))
	if mailProvider != "" && mailProvider != "ses" && mailProvider != "stdout" {
		return nil, fmt.Errorf("invalid mail.provider %q (supported: ses, stdout)", mailProvider)
	}

	blobProvider := strings.ToLower(viper.GetString("blob.provider"))
	if blobProvider != "s3" && blobProvider != "fs" {
		return nil, fmt.Errorf("invalid blob.provider %q (supported: s3, fs)", blobProvider)
	}
	if blobProvider == "s3" && viper.GetString("blob.bucket") == "" {
		return nil, fmt.Errorf("blob.bucket is required when blob.provider is s3")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
			MaxSize:     viper.GetInt("log.max_size"),
			MaxBackups:  viper.GetInt("log.max_backups"),
			MaxAge:      viper.GetInt("log.max_age"),
			Compress:    viper.GetBool("log.compress"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:       jwtSecret,
			Issuer:       viper.GetString("jwt.issuer"),
			AccessExpiry: accessExpiry,
		},
		Directory: DirectoryConfig{
			BaseURL:          viper.GetString("directory.base_url"),
			StaticIdentities: parseList(viper.GetString("directory.static_identities")),
			CacheTTL:         cacheTTL,
		},
		Mail: MailConfig{
			Provider:        mailProvider,
			Region:          viper.GetString("mail.region"),
			AccessKeyID:     viper.GetString("mail.access_key_id"),
			SecretAccessKey: viper.GetString("mail.secret_access_key"),
			Sender:          strings.TrimSpace(viper.GetString("mail.sender")),
			SendRate:        sendRate,
		},
		Blob: BlobConfig{
			Provider:        blobProvider,
			Region:          viper.GetString("blob.region"),
			Bucket:          viper.GetString("blob.bucket"),
			AccessKeyID:     viper.GetString("blob.access_key_id"),
			SecretAccessKey: viper.GetString("blob.secret_access_key"),
			Path:            viper.GetString("blob.path"),
			BaseURL:         viper.GetString("blob.base_url"),
		},
		Scheduler: SchedulerConfig{
			Interval: schedulerInterval,
			Workers:  schedulerWorkers,
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
