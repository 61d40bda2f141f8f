package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalBackend 进程内后端。dir 非空时，每个顶层作用域（前两段 key，
// 如 agent:{id}、meeting:{id}）镜像为 dir 下的一个 JSON 数组文件。
type LocalBackend struct {
	mu      sync.RWMutex
	entries map[string]map[string]string
	ordered map[string]map[string]float64
	expires map[string]time.Time
	closed  bool

	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// LocalOption 本地后端选项
type LocalOption func(*LocalBackend)

// WithLocalClock 注入时钟，用于测试 TTL
func WithLocalClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) { b.now = now }
}

// NewLocalBackend 创建本地后端。dir 为空时只保存在内存中。
func NewLocalBackend(dir string, logger *zap.Logger, opts ...LocalOption) (*LocalBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &LocalBackend{
		entries: make(map[string]map[string]string),
		ordered: make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
		dir:     dir,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "local_backend")),
	}
	for _, opt := range opts {
		opt(b)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		if err := b.loadFromDisk(); err != nil {
			return nil, fmt.Errorf("load data dir: %w", err)
		}
	}

	return b, nil
}

// Name 实现 Backend
func (b *LocalBackend) Name() string { return "local" }

// Ping 实现 Backend
func (b *LocalBackend) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBackendClosed
	}
	return nil
}

// Commit 在一把锁内应用整个批次，然后刷新受影响作用域的镜像文件。
// 任一操作或镜像写入失败时，批次涉及的 key 恢复到提交前的状态。
func (b *LocalBackend) Commit(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}

	saved := b.snapshot(batch.keys())
	touched, err := b.apply(batch, b.now())
	if err == nil {
		err = b.persistScopes(touched)
	}
	if err != nil {
		b.restore(saved)
		if perr := b.persistScopes(touched); perr != nil {
			b.logger.Warn("failed to restore data files after rollback", zap.Error(perr))
		}
		return err
	}
	return nil
}

// apply 把批次写入内存结构，返回受影响的作用域
func (b *LocalBackend) apply(batch *Batch, now time.Time) (map[string]struct{}, error) {
	touched := make(map[string]struct{})
	for _, o := range batch.ops {
		switch o.kind {
		case opPutEntry:
			b.dropIfExpired(o.key, now)
			rec, ok := b.entries[o.key]
			if !ok {
				rec = make(map[string]string, len(o.fields))
				b.entries[o.key] = rec
			}
			for k, v := range o.fields {
				rec[k] = v
			}
			b.touchTTL(o.key, o.ttl, now)
			touched[scopeOf(o.key)] = struct{}{}

		case opAddOrdered:
			b.dropIfExpired(o.key, now)
			set, ok := b.ordered[o.key]
			if !ok {
				set = make(map[string]float64)
				b.ordered[o.key] = set
			}
			set[o.member] = o.score
			b.touchTTL(o.key, o.ttl, now)
			touched[scopeOf(o.key)] = struct{}{}

		case opRemoveOrdered:
			if set, ok := b.ordered[o.key]; ok {
				for _, m := range o.members {
					delete(set, m)
				}
				if len(set) == 0 {
					b.deleteKey(o.key)
				}
			}
			touched[scopeOf(o.key)] = struct{}{}

		case opIncrField:
			b.dropIfExpired(o.key, now)
			rec, ok := b.entries[o.key]
			if !ok {
				rec = make(map[string]string)
				b.entries[o.key] = rec
			}
			var cur int64
			if v, ok := rec[o.field]; ok {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return touched, fmt.Errorf("field %s of %s is not an integer", o.field, o.key)
				}
				cur = n
			}
			rec[o.field] = strconv.FormatInt(cur+o.delta, 10)
			b.touchTTL(o.key, o.ttl, now)
			touched[scopeOf(o.key)] = struct{}{}

		case opDelete:
			for _, k := range o.members {
				b.deleteKey(k)
				touched[scopeOf(k)] = struct{}{}
			}
		}
	}
	return touched, nil
}

// keySnapshot 单个 key 在提交前的完整状态
type keySnapshot struct {
	key     string
	entry   map[string]string
	ordered map[string]float64
	expires time.Time
	hasExp  bool
}

func (b *LocalBackend) snapshot(keys []string) []keySnapshot {
	out := make([]keySnapshot, 0, len(keys))
	for _, k := range keys {
		snap := keySnapshot{key: k}
		if fields, ok := b.entries[k]; ok {
			snap.entry = make(map[string]string, len(fields))
			for f, v := range fields {
				snap.entry[f] = v
			}
		}
		if set, ok := b.ordered[k]; ok {
			snap.ordered = make(map[string]float64, len(set))
			for m, score := range set {
				snap.ordered[m] = score
			}
		}
		snap.expires, snap.hasExp = b.expires[k]
		out = append(out, snap)
	}
	return out
}

func (b *LocalBackend) restore(saved []keySnapshot) {
	for _, snap := range saved {
		b.deleteKey(snap.key)
		if snap.entry != nil {
			b.entries[snap.key] = snap.entry
		}
		if snap.ordered != nil {
			b.ordered[snap.key] = snap.ordered
		}
		if snap.hasExp {
			b.expires[snap.key] = snap.expires
		}
	}
}

// ReadEntry 实现 Backend
func (b *LocalBackend) ReadEntry(ctx context.Context, key string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	b.dropIfExpired(key, b.now())

	out := make(map[string]string, len(b.entries[key]))
	for k, v := range b.entries[key] {
		out[k] = v
	}
	return out, nil
}

// ReadOrdered 实现 Backend
func (b *LocalBackend) ReadOrdered(ctx context.Context, key string, q OrderedQuery) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	b.dropIfExpired(key, b.now())

	return window(b.sortedMembers(key), q), nil
}

// CountOrdered 实现 Backend
func (b *LocalBackend) CountOrdered(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBackendClosed
	}
	b.dropIfExpired(key, b.now())
	return int64(len(b.ordered[key])), nil
}

// Scan 对调用时刻的 key 快照做惰性枚举
func (b *LocalBackend) Scan(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		keys, err := b.keysWithPrefix(prefix)
		if err != nil {
			yield("", err)
			return
		}
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Dump 实现 Backend
func (b *LocalBackend) Dump(ctx context.Context, key string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	b.dropIfExpired(key, b.now())
	return b.recordOf(key), nil
}

// DeleteScope 实现 Backend
func (b *LocalBackend) DeleteScope(ctx context.Context, prefix string) (int, error) {
	keys, err := b.keysWithPrefix(prefix)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	touched := make(map[string]struct{})
	removed := 0
	for _, k := range keys {
		if b.hasKey(k) {
			b.deleteKey(k)
			removed++
			touched[scopeOf(k)] = struct{}{}
		}
	}
	return removed, b.persistScopes(touched)
}

// Close 实现 Backend
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// =============================================================================
// 🔧 内部辅助
// =============================================================================

func (b *LocalBackend) keysWithPrefix(prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}

	now := b.now()
	seen := make(map[string]struct{})
	for k := range b.entries {
		seen[k] = struct{}{}
	}
	for k := range b.ordered {
		seen[k] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if b.dropIfExpired(k, now) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *LocalBackend) hasKey(key string) bool {
	_, e := b.entries[key]
	_, o := b.ordered[key]
	return e || o
}

func (b *LocalBackend) deleteKey(key string) {
	delete(b.entries, key)
	delete(b.ordered, key)
	delete(b.expires, key)
}

func (b *LocalBackend) touchTTL(key string, ttl time.Duration, now time.Time) {
	if ttl > 0 {
		b.expires[key] = now.Add(ttl)
	}
}

// dropIfExpired 删除已过期的 key，返回是否删除
func (b *LocalBackend) dropIfExpired(key string, now time.Time) bool {
	exp, ok := b.expires[key]
	if !ok || now.Before(exp) {
		return false
	}
	b.deleteKey(key)
	return true
}

func (b *LocalBackend) sortedMembers(key string) []ScoredMember {
	set := b.ordered[key]
	members := make([]ScoredMember, 0, len(set))
	for m, s := range set {
		members = append(members, ScoredMember{Member: m, Score: s})
	}
	sortMembers(members)
	return members
}

func (b *LocalBackend) recordOf(key string) *Record {
	rec := &Record{Key: key}
	if fields, ok := b.entries[key]; ok {
		rec.Kind = KindEntry
		rec.Fields = make(map[string]string, len(fields))
		for k, v := range fields {
			rec.Fields[k] = v
		}
	} else if _, ok := b.ordered[key]; ok {
		rec.Kind = KindOrdered
		rec.Members = b.sortedMembers(key)
	} else {
		return nil
	}
	if exp, ok := b.expires[key]; ok {
		e := exp
		rec.ExpiresAt = &e
	}
	return rec
}

// scopeOf 返回 key 的前两段，如 agent:p1:memory:x → agent:p1
func scopeOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[0] + ":" + parts[1]
}

func scopeFileName(scope string) string {
	var sb strings.Builder
	for _, r := range scope {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String() + ".json"
}

// persistScopes 把受影响的作用域写回磁盘，调用方需持有写锁
func (b *LocalBackend) persistScopes(scopes map[string]struct{}) error {
	if b.dir == "" || len(scopes) == 0 {
		return nil
	}

	for scope := range scopes {
		var records []*Record
		for _, k := range b.scopeKeys(scope) {
			if rec := b.recordOf(k); rec != nil {
				records = append(records, rec)
			}
		}

		path := filepath.Join(b.dir, scopeFileName(scope))
		if len(records) == 0 {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}

		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}

		// Atomic write: write to temp file then rename
		tempPath := path + ".tmp"
		if err := os.WriteFile(tempPath, data, 0o644); err != nil {
			return err
		}
		if err := os.Rename(tempPath, path); err != nil {
			return err
		}
	}
	return nil
}

func (b *LocalBackend) scopeKeys(scope string) []string {
	var keys []string
	for k := range b.entries {
		if scopeOf(k) == scope {
			keys = append(keys, k)
		}
	}
	for k := range b.ordered {
		if scopeOf(k) == scope {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (b *LocalBackend) loadFromDisk() error {
	files, err := filepath.Glob(filepath.Join(b.dir, "*.json"))
	if err != nil {
		return err
	}

	now := b.now()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			b.logger.Warn("skipping corrupt data file", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, rec := range records {
			if rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
				continue
			}
			switch rec.Kind {
			case KindEntry:
				b.entries[rec.Key] = rec.Fields
				if b.entries[rec.Key] == nil {
					b.entries[rec.Key] = make(map[string]string)
				}
			case KindOrdered:
				set := make(map[string]float64, len(rec.Members))
				for _, m := range rec.Members {
					set[m.Member] = m.Score
				}
				b.ordered[rec.Key] = set
			}
			if rec.ExpiresAt != nil {
				b.expires[rec.Key] = *rec.ExpiresAt
			}
		}
	}

	b.logger.Debug("local data loaded", zap.Int("files", len(files)))
	return nil
}
