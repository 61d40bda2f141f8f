package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/agent/persistence"
	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

const cacheType = "memory_entry"

// Config 参与者记忆配置
type Config struct {
	// MaxMemories 存活条目上限，超过后淘汰最旧的条目
	MaxMemories int
	// TTL 每个 key 的过期时间，0 表示不过期
	TTL time.Duration
	// CacheSize 条目缓存大小，0 表示不缓存
	CacheSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxMemories: 100,
		TTL:         7 * 24 * time.Hour,
		CacheSize:   50,
	}
}

// Stats 记忆统计
type Stats struct {
	ParticipantID string                     `json:"participant_id"`
	TotalMemories int64                      `json:"total_memories"`
	ByType        map[types.MemoryType]int64 `json:"by_type"`
}

// Option 配置 Store
type Option func(*Store)

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store 单个参与者的记忆
type Store struct {
	participantID string
	backend       persistence.Backend
	config        Config
	ids           *types.IDGenerator
	cache         *entryCache
	now           func() time.Time
	metrics       *metrics.Collector
	logger        *zap.Logger

	// 写入与淘汰串行化
	writeMu sync.Mutex
}

// New 创建参与者记忆
func New(participantID string, backend persistence.Backend, config Config, logger *zap.Logger, opts ...Option) (*Store, error) {
	if participantID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "participant id is required")
	}
	if backend == nil {
		return nil, types.NewError(types.ErrInvalidInput, "memory backend is required")
	}
	if config.MaxMemories <= 0 {
		config.MaxMemories = DefaultConfig().MaxMemories
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		participantID: participantID,
		backend:       backend,
		config:        config,
		now:           time.Now,
		logger: logger.With(
			zap.String("component", "participant_memory"),
			zap.String("participant_id", participantID),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids = types.NewIDGenerator(s.now)
	s.cache = newEntryCache(config.CacheSize, config.TTL, s.now)
	return s, nil
}

// ParticipantID 返回所属参与者
func (s *Store) ParticipantID() string { return s.participantID }

// =============================================================================
// 🔑 key 布局
// =============================================================================

func (s *Store) scope() string { return persistence.ParticipantPrefix + s.participantID + ":" }
func (s *Store) entryKey(id string) string { return s.scope() + "memory:" + id }
func (s *Store) listKey() string { return s.scope() + "memories:list" }
func (s *Store) statsKey() string { return s.scope() + "stats" }

func (s *Store) typeKey(t types.MemoryType) string {
	return s.scope() + "memories:types:" + string(t)
}

func typeCounter(t types.MemoryType) string { return "type:" + string(t) }

// =============================================================================
// ✍️ 写入
// =============================================================================

// AddMemory 写入一条记忆并返回条目 ID。
// 内容无法序列化时写入错误占位，不会丢弃这次写入。
func (s *Store) AddMemory(ctx context.Context, typ types.MemoryType, content map[string]any) (string, error) {
	if typ == "" {
		return "", types.NewError(types.ErrInvalidInput, "memory type is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, ts := s.ids.Next()
	payload, err := json.Marshal(content)
	if err != nil {
		s.logger.Warn("memory content not serializable, storing sentinel",
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		payload = serializationSentinel(typ, err)
	}

	score := float64(ts.UnixMilli())
	batch := persistence.NewBatch().
		PutEntry(s.entryKey(id), map[string]string{
			"id":             id,
			"participant_id": s.participantID,
			"type":           string(typ),
			"timestamp":      strconv.FormatInt(ts.UnixMilli(), 10),
			"content":        string(payload),
		}, s.config.TTL).
		AddToOrdered(s.listKey(), id, score, s.config.TTL).
		AddToOrdered(s.typeKey(typ), id, score, s.config.TTL).
		IncrField(s.statsKey(), "total_added", 1, s.config.TTL).
		IncrField(s.statsKey(), typeCounter(typ), 1, s.config.TTL)

	if err := s.backend.Commit(ctx, batch); err != nil {
		return "", fmt.Errorf("add memory %s: %w", typ, err)
	}

	if err := s.evictOverflow(ctx); err != nil {
		s.logger.Warn("memory eviction failed", zap.Error(err))
	}

	s.logger.Debug("memory added", zap.String("id", id), zap.String("type", string(typ)))
	return id, nil
}

func serializationSentinel(typ types.MemoryType, cause error) []byte {
	b, _ := json.Marshal(map[string]string{
		"error":  "serialization_failed",
		"type":   string(typ),
		"detail": cause.Error(),
	})
	return b
}

// evictOverflow 按有序日志排名删除最旧的条目
func (s *Store) evictOverflow(ctx context.Context) error {
	count, err := s.backend.CountOrdered(ctx, s.listKey())
	if err != nil {
		return err
	}
	excess := int(count) - s.config.MaxMemories
	if excess <= 0 {
		return nil
	}

	oldest, err := s.backend.ReadOrdered(ctx, s.listKey(), persistence.OrderedQuery{Limit: excess})
	if err != nil {
		return err
	}

	if err := s.removeEntries(ctx, oldest); err != nil {
		return err
	}
	s.logger.Debug("evicted oldest memories", zap.Int("count", len(oldest)))
	return nil
}

// DeleteMemory 删除单条记忆，条目不存在时不报错
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.removeEntries(ctx, []string{id}); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	return nil
}

// removeEntries 在一个批次内删除条目及其索引，调用方需持有 writeMu
func (s *Store) removeEntries(ctx context.Context, ids []string) error {
	batch := persistence.NewBatch().RemoveFromOrdered(s.listKey(), ids...)
	for _, id := range ids {
		entry, err := s.loadEntry(ctx, id)
		if err != nil {
			return err
		}
		if entry != nil {
			batch.RemoveFromOrdered(s.typeKey(entry.Type), id).
				IncrField(s.statsKey(), typeCounter(entry.Type), -1, s.config.TTL)
		}
		batch.Delete(s.entryKey(id))
	}
	if err := s.backend.Commit(ctx, batch); err != nil {
		return err
	}
	for _, id := range ids {
		s.cache.remove(id)
	}
	return nil
}

// ClearMemories 清除该参与者的全部记忆并清空缓存
func (s *Store) ClearMemories(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.backend.DeleteScope(ctx, s.scope())
	s.cache.clear()
	if err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	s.logger.Info("memories cleared", zap.Int("keys", n))
	return nil
}

// =============================================================================
// 🔍 读取
// =============================================================================

// GetRelevantMemories 返回最近优先的格式化记忆。
// topic 预留给语义排序，目前不参与计算。
func (s *Store) GetRelevantMemories(ctx context.Context, topic string, limit int) ([]string, error) {
	_ = topic
	entries, err := s.recent(ctx, s.listKey(), limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Format())
	}
	return out, nil
}

// GetMemoriesByType 返回指定类型的条目，最近优先
func (s *Store) GetMemoriesByType(ctx context.Context, typ types.MemoryType, limit int) ([]*Entry, error) {
	return s.recent(ctx, s.typeKey(typ), limit)
}

// SearchMemoriesByContent 对条目文本做子串匹配，保持最近优先
func (s *Store) SearchMemoriesByContent(ctx context.Context, keyword string, limit int) ([]*Entry, error) {
	entries, err := s.recent(ctx, s.listKey(), 0)
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0)
	for _, e := range entries {
		if keyword != "" && !strings.Contains(e.Text(), keyword) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetAllMemories 按时间正序返回全部条目
func (s *Store) GetAllMemories(ctx context.Context) ([]*Entry, error) {
	ids, err := s.backend.ReadOrdered(ctx, s.listKey(), persistence.OrderedQuery{})
	if err != nil {
		return nil, fmt.Errorf("read memory list: %w", err)
	}
	return s.materialize(ctx, ids)
}

// GetMemoryStats 返回总数与按类型计数
func (s *Store) GetMemoryStats(ctx context.Context) (*Stats, error) {
	total, err := s.backend.CountOrdered(ctx, s.listKey())
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	fields, err := s.backend.ReadEntry(ctx, s.statsKey())
	if err != nil {
		return nil, fmt.Errorf("read memory stats: %w", err)
	}

	stats := &Stats{
		ParticipantID: s.participantID,
		TotalMemories: total,
		ByType:        make(map[types.MemoryType]int64),
	}
	for field, raw := range fields {
		name, ok := strings.CutPrefix(field, "type:")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		stats.ByType[types.MemoryType(name)] = n
	}
	return stats, nil
}

// CacheLen 返回缓存中的条目数
func (s *Store) CacheLen() int { return s.cache.len() }

func (s *Store) recent(ctx context.Context, key string, limit int) ([]*Entry, error) {
	ids, err := s.backend.ReadOrdered(ctx, key, persistence.OrderedQuery{Limit: limit, Reverse: true})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return s.materialize(ctx, ids)
}

// materialize 按给定顺序加载条目，跳过已过期或已删除的
func (s *Store) materialize(ctx context.Context, ids []string) ([]*Entry, error) {
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.loadEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) loadEntry(ctx context.Context, id string) (*Entry, error) {
	if entry, ok := s.cache.get(id); ok {
		s.metrics.RecordCacheHit(cacheType)
		return entry, nil
	}
	s.metrics.RecordCacheMiss(cacheType)

	fields, err := s.backend.ReadEntry(ctx, s.entryKey(id))
	if err != nil {
		return nil, fmt.Errorf("read memory %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	entry := decodeEntry(id, fields)
	s.cache.put(id, entry)
	return entry, nil
}

func decodeEntry(id string, fields map[string]string) *Entry {
	entry := &Entry{
		ID:      id,
		Type:    types.MemoryType(fields["type"]),
		Content: map[string]any{},
	}
	if ms, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		entry.Timestamp = time.UnixMilli(ms)
	} else if ts, ok := types.TimestampFromID(id); ok {
		entry.Timestamp = ts
	}
	if raw := fields["content"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entry.Content); err != nil {
			entry.Content = map[string]any{"content": raw}
		}
	}
	return entry
}
