package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// BackupSink 清理前的备份目的地
type BackupSink interface {
	// Save 保存一批记录，返回写入条数
	Save(ctx context.Context, batchID string, records []*Record) (int, error)
	Close() error
}

// backupRow 备份表行
type backupRow struct {
	ID        uint      `gorm:"primaryKey"`
	BatchID   string    `gorm:"size:64;index"`
	Key       string    `gorm:"size:512;index"`
	Kind      string    `gorm:"size:16"`
	Payload   string    `gorm:"type:text"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (backupRow) TableName() string { return "session_backups" }

// GormBackupSink 把记录写入关系库
type GormBackupSink struct {
	db *gorm.DB
}

// NewGormBackupSink 使用已有连接创建备份目的地，并确保表存在
func NewGormBackupSink(db *gorm.DB) (*GormBackupSink, error) {
	if err := db.AutoMigrate(&backupRow{}); err != nil {
		return nil, fmt.Errorf("migrate backup table: %w", err)
	}
	return &GormBackupSink{db: db}, nil
}

// OpenBackupSink 按驱动名打开数据库：sqlite（纯 Go）、postgres、mysql
func OpenBackupSink(driver, dsn string) (*GormBackupSink, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported backup driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open backup database: %w", err)
	}
	return NewGormBackupSink(db)
}

// Save 实现 BackupSink
func (s *GormBackupSink) Save(ctx context.Context, batchID string, records []*Record) (int, error) {
	rows := make([]backupRow, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", rec.Key, err)
		}
		rows = append(rows, backupRow{
			BatchID:   batchID,
			Key:       rec.Key,
			Kind:      string(rec.Kind),
			Payload:   string(payload),
			ExpiresAt: rec.ExpiresAt,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return 0, fmt.Errorf("insert backup rows: %w", err)
	}
	return len(rows), nil
}

// Records 读取某次备份的全部记录
func (s *GormBackupSink) Records(ctx context.Context, batchID string) ([]*Record, error) {
	var rows []backupRow
	if err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.Key, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Close 关闭底层连接
func (s *GormBackupSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
