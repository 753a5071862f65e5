// Package sql 提供 SQL 数据库消息存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bizmail/backend/internal/domain"
	"bizmail/backend/internal/storage"
)

// Store SQL 数据库存储实现。
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储并自动执行迁移。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）。
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.Message{},
		&domain.Attachment{},
	)
}

// SaveMessage 保存消息及其附件记录。
func (s *Store) SaveMessage(message *domain.Message) error {
	if err := s.gormDB.Create(message).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage 根据 ID 获取消息。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	var message domain.Message
	err := s.gormDB.Preload("Attachments").First(&message, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// UpdateMessage 更新消息的全部字段。
func (s *Store) UpdateMessage(message *domain.Message) error {
	result := s.gormDB.Session(&gorm.Session{FullSaveAssociations: true}).
		Model(&domain.Message{}).
		Where("id = ?", message.ID).
		Select("*").
		Omit("id", "created_at", "Attachments").
		Updates(message)
	if result.Error != nil {
		return fmt.Errorf("failed to update message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// ListMessages 按条件分页查询消息，按创建时间降序。
func (s *Store) ListMessages(filter domain.MessageFilter) (*domain.MessagePage, error) {
	filter.Normalize()

	query := s.gormDB.Model(&domain.Message{})
	query = s.applyFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	var messages []domain.Message
	err := query.Preload("Attachments").
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return &domain.MessagePage{
		Messages:   messages,
		Total:      int(total),
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (int(total) + filter.PageSize - 1) / filter.PageSize,
	}, nil
}

// ListParticipantMessages 返回身份参与且未软删除的全部消息，按创建时间降序。
func (s *Store) ListParticipantMessages(identityID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.gormDB.Preload("Attachments").
		Where("(sender_id = ? OR recipient_id = ?)", identityID, identityID).
		Where(s.notDeletedBy(identityID)).
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participant messages: %w", err)
	}
	return messages, nil
}

// ListDueScheduled 返回到期的定时消息，按计划时间升序。
func (s *Store) ListDueScheduled(now time.Time) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.gormDB.Preload("Attachments").
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", domain.StatusScheduled, now).
		Order("scheduled_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled messages: %w", err)
	}
	return messages, nil
}

// PromoteScheduled 条件推进定时消息为已发送。WHERE 带状态判定，
// 并发扫描下只有一个调用者能拿到 RowsAffected=1。
func (s *Store) PromoteScheduled(id string, now time.Time) (bool, error) {
	result := s.gormDB.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusScheduled).
		Updates(map[string]interface{}{
			"status":       domain.StatusSent,
			"folder":       domain.FolderSent,
			"scheduled_at": nil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to promote scheduled message: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// applyFilter 将查询条件转换为 WHERE 子句。
func (s *Store) applyFilter(query *gorm.DB, filter domain.MessageFilter) *gorm.DB {
	if filter.ViewerID != "" {
		query = query.Where(s.notDeletedBy(filter.ViewerID))
	}
	if filter.SenderID != "" {
		query = query.Where("sender_id = ?", filter.SenderID)
	}
	if filter.RecipientID != "" {
		query = query.Where("recipient_id = ?", filter.RecipientID)
	}
	if filter.ParticipantID != "" {
		query = query.Where("(sender_id = ? OR recipient_id = ?)", filter.ParticipantID, filter.ParticipantID)
	}
	if len(filter.Folders) > 0 {
		if filter.IncludeNoFolder {
			query = query.Where("(folder IN ? OR folder = '' OR folder IS NULL)", filter.Folders)
		} else {
			query = query.Where("folder IN ?", filter.Folders)
		}
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.IsStarred != nil {
		query = query.Where("is_starred = ?", *filter.IsStarred)
	}
	if filter.Read != nil {
		query = query.Where("is_read = ?", *filter.Read)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		query = query.Where(
			"(subject LIKE ? OR content LIKE ? OR sender_email LIKE ? OR recipient_email LIKE ?)",
			pattern, pattern, pattern, pattern,
		)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}
	return query
}

// notDeletedBy 生成软删除排除条件。deleted_by 是 JSON 数组文本，
// 按带引号的身份 ID 做模糊排除。
func (s *Store) notDeletedBy(identityID string) *gorm.DB {
	pattern := "%" + `"` + identityID + `"` + "%"
	return s.gormDB.Where("deleted_by IS NULL OR deleted_by NOT LIKE ?", pattern)
}
