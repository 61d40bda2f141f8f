package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 文档化的作用域前缀，清理器不会触碰其它 key
const (
	SessionPrefix     = "meeting:"
	ParticipantPrefix = "agent:"
)

// CleanerConfig 清理配置
type CleanerConfig struct {
	// SessionID 只清理指定会议，为空时清理全部会议
	SessionID string
	// IncludeParticipants 同时清理参与者记忆
	IncludeParticipants bool
	// Backup 清理前是否备份（需要 BackupSink）
	Backup bool
}

// CleanReport 清理报告
type CleanReport struct {
	BatchID   string         `json:"batch_id"`
	Success   bool           `json:"success"`
	Counts    map[string]int `json:"counts"`
	BackedUp  map[string]int `json:"backed_up,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Errors    []string       `json:"errors,omitempty"`
}

// Cleaner 会议开始前的清理任务
type Cleaner struct {
	backend Backend
	backup  BackupSink
	config  CleanerConfig
	logger  *zap.Logger
}

// NewCleaner 创建清理器，backup 可以为 nil
func NewCleaner(backend Backend, backup BackupSink, config CleanerConfig, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{
		backend: backend,
		backup:  backup,
		config:  config,
		logger:  logger.With(zap.String("component", "session_cleaner")),
	}
}

// Prefixes 返回本次会清理的前缀
func (c *Cleaner) Prefixes() []string {
	session := SessionPrefix
	if c.config.SessionID != "" {
		session = SessionPrefix + c.config.SessionID + ":"
	}
	prefixes := []string{session}
	if c.config.IncludeParticipants {
		prefixes = append(prefixes, ParticipantPrefix)
	}
	return prefixes
}

// Clean 并发处理各前缀：可选备份，然后删除
func (c *Cleaner) Clean(ctx context.Context) (*CleanReport, error) {
	report := &CleanReport{
		BatchID:   uuid.NewString(),
		Counts:    make(map[string]int),
		StartedAt: time.Now(),
	}
	if c.config.Backup && c.backup != nil {
		report.BackedUp = make(map[string]int)
	}

	prefixes := c.Prefixes()
	for _, prefix := range prefixes {
		if !documentedPrefix(prefix) {
			return nil, fmt.Errorf("refusing to clean undocumented prefix %q", prefix)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, prefix := range prefixes {
		g.Go(func() error {
			backedUp, err := c.backupPrefix(gctx, report.BatchID, prefix)
			if err != nil {
				mu.Lock()
				report.Errors = append(report.Errors, err.Error())
				mu.Unlock()
				return err
			}

			removed, err := c.backend.DeleteScope(gctx, prefix)
			mu.Lock()
			defer mu.Unlock()
			report.Counts[prefix] = removed
			if report.BackedUp != nil {
				report.BackedUp[prefix] = backedUp
			}
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("delete %s: %v", prefix, err))
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	report.Duration = time.Since(report.StartedAt)
	report.Success = err == nil

	fields := []zap.Field{
		zap.String("batch_id", report.BatchID),
		zap.Any("counts", report.Counts),
		zap.Duration("duration", report.Duration),
		zap.Bool("success", report.Success),
	}
	if err != nil {
		c.logger.Error("session clean failed", append(fields, zap.Error(err))...)
		return report, err
	}
	c.logger.Info("session clean finished", fields...)
	return report, nil
}

func (c *Cleaner) backupPrefix(ctx context.Context, batchID, prefix string) (int, error) {
	if !c.config.Backup || c.backup == nil {
		return 0, nil
	}

	var records []*Record
	for key, err := range c.backend.Scan(ctx, prefix) {
		if err != nil {
			return 0, fmt.Errorf("scan %s: %w", prefix, err)
		}
		rec, err := c.backend.Dump(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("dump %s: %w", key, err)
		}
		if rec != nil {
			records = append(records, rec)
		}
	}

	n, err := c.backup.Save(ctx, batchID, records)
	if err != nil {
		return 0, fmt.Errorf("backup %s: %w", prefix, err)
	}
	return n, nil
}

func documentedPrefix(prefix string) bool {
	return strings.HasPrefix(prefix, SessionPrefix) || strings.HasPrefix(prefix, ParticipantPrefix)
}
