package persistence

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/internal/retry"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

// Policy 后端选择策略
type Policy string

const (
	// PolicyAuto 优先远程，失败后永久回退本地
	PolicyAuto Policy = "auto"
	// PolicyFile 只用本地后端
	PolicyFile Policy = "file"
	// PolicyRemote 只用远程后端，错误直接返回
	PolicyRemote Policy = "remote"
)

// ParsePolicy 解析策略字符串
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAuto, PolicyFile, PolicyRemote:
		return p, nil
	default:
		return "", types.NewConfigError("MEMORY_STORAGE_TYPE", "unknown storage policy "+s)
	}
}

// Adapter 按策略在远程与本地后端之间路由，自身也实现 Backend。
type Adapter struct {
	policy Policy
	remote Backend
	local  Backend

	mu       sync.Mutex
	probed   bool
	fellBack bool

	retryer *retry.Retryer
	metrics *metrics.Collector
	logger  *zap.Logger
}

// AdapterOption 适配器选项
type AdapterOption func(*Adapter)

// WithAdapterLogger 设置日志
func WithAdapterLogger(logger *zap.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAdapterMetrics 设置指标收集器
func WithAdapterMetrics(c *metrics.Collector) AdapterOption {
	return func(a *Adapter) { a.metrics = c }
}

// WithRetryPolicy 设置远程操作的瞬时错误重试策略
func WithRetryPolicy(p retry.Policy) AdapterOption {
	return func(a *Adapter) { a.retryer = retry.New(p, a.logger) }
}

// NewAdapter 创建适配器。auto 策略下 remote 可以为 nil，此时直接使用本地后端。
func NewAdapter(policy Policy, remote, local Backend, opts ...AdapterOption) (*Adapter, error) {
	a := &Adapter{
		policy: policy,
		remote: remote,
		local:  local,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "storage_adapter"), zap.String("policy", string(policy)))
	if a.retryer == nil {
		p := retry.StoragePolicy()
		p.ShouldRetry = isTransient
		a.retryer = retry.New(p, a.logger)
	}

	switch policy {
	case PolicyAuto:
		if local == nil {
			return nil, types.NewConfigError("storage", "auto policy requires a local backend")
		}
		if remote == nil {
			a.probed, a.fellBack = true, true
		}
	case PolicyFile:
		if local == nil {
			return nil, types.NewConfigError("storage", "file policy requires a local backend")
		}
	case PolicyRemote:
		if remote == nil {
			return nil, types.NewConfigError("storage", "remote policy requires a remote backend")
		}
	default:
		return nil, types.NewConfigError("storage", "unknown storage policy "+string(policy))
	}

	return a, nil
}

// Policy 返回策略
func (a *Adapter) Policy() Policy { return a.policy }

// FellBack 报告 auto 策略是否已回退到本地
func (a *Adapter) FellBack() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fellBack
}

// Name 返回当前生效后端的名称
func (a *Adapter) Name() string {
	b, _ := a.current()
	return b.Name()
}

// current 返回当前后端以及它是否是 auto 策略下的远程后端
func (a *Adapter) current() (Backend, bool) {
	switch a.policy {
	case PolicyFile:
		return a.local, false
	case PolicyRemote:
		return a.remote, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fellBack {
		return a.local, false
	}
	return a.remote, true
}

// probe 在 auto 策略下做首次连接探测
func (a *Adapter) probe(ctx context.Context) {
	a.mu.Lock()
	if a.probed || a.policy != PolicyAuto {
		a.mu.Unlock()
		return
	}
	a.probed = true
	a.mu.Unlock()

	if err := a.retryer.Do(ctx, a.remote.Ping); err != nil {
		a.fallback("ping", err)
	}
}

// fallback 永久切换到本地后端，只记录一次日志
func (a *Adapter) fallback(op string, cause error) {
	a.mu.Lock()
	if a.fellBack {
		a.mu.Unlock()
		return
	}
	a.fellBack = true
	a.mu.Unlock()

	a.logger.Warn("remote backend unavailable, falling back to local backend",
		zap.String("op", op),
		zap.String("remote", a.remote.Name()),
		zap.Error(cause),
	)
	a.metrics.RecordStorageFallback(a.remote.Name(), a.local.Name())
}

// route 在当前后端上执行 fn：远程操作先按瞬时错误重试，
// auto 策略下仍失败则回退并在本地重做。
func route[T any](ctx context.Context, a *Adapter, op string, fn func(Backend) (T, error)) (T, error) {
	a.probe(ctx)
	b, autoRemote := a.current()

	remote := b == a.remote && a.remote != nil
	var v T
	var err error
	if remote {
		v, err = retry.Do(ctx, a.retryer, func(context.Context) (T, error) { return fn(b) })
	} else {
		v, err = fn(b)
	}
	if err == nil {
		return v, nil
	}
	if autoRemote && ctx.Err() == nil {
		a.fallback(op, err)
		return fn(a.local)
	}
	if remote {
		var zero T
		return zero, types.NewError(types.ErrBackendUnavailable, op+" on "+b.Name()+" failed").WithCause(err)
	}
	return v, err
}

// =============================================================================
// 🎯 Backend 实现
// =============================================================================

// Ping 实现 Backend
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := route(ctx, a, "ping", func(b Backend) (struct{}, error) {
		return struct{}{}, b.Ping(ctx)
	})
	return err
}

// Commit 实现 Backend
func (a *Adapter) Commit(ctx context.Context, batch *Batch) error {
	_, err := route(ctx, a, "commit", func(b Backend) (struct{}, error) {
		start := time.Now()
		err := b.Commit(ctx, batch)
		a.metrics.RecordStorageCommit(b.Name(), err, time.Since(start))
		return struct{}{}, err
	})
	return err
}

// PutEntry 单条记录写入
func (a *Adapter) PutEntry(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	return a.Commit(ctx, NewBatch().PutEntry(key, fields, ttl))
}

// AddToOrdered 单个有序成员写入
func (a *Adapter) AddToOrdered(ctx context.Context, key, member string, score float64, ttl time.Duration) error {
	return a.Commit(ctx, NewBatch().AddToOrdered(key, member, score, ttl))
}

// ReadEntry 实现 Backend
func (a *Adapter) ReadEntry(ctx context.Context, key string) (map[string]string, error) {
	return route(ctx, a, "read_entry", func(b Backend) (map[string]string, error) {
		return b.ReadEntry(ctx, key)
	})
}

// ReadOrdered 实现 Backend
func (a *Adapter) ReadOrdered(ctx context.Context, key string, q OrderedQuery) ([]string, error) {
	return route(ctx, a, "read_ordered", func(b Backend) ([]string, error) {
		return b.ReadOrdered(ctx, key, q)
	})
}

// CountOrdered 实现 Backend
func (a *Adapter) CountOrdered(ctx context.Context, key string) (int64, error) {
	return route(ctx, a, "count_ordered", func(b Backend) (int64, error) {
		return b.CountOrdered(ctx, key)
	})
}

// Dump 实现 Backend
func (a *Adapter) Dump(ctx context.Context, key string) (*Record, error) {
	return route(ctx, a, "dump", func(b Backend) (*Record, error) {
		return b.Dump(ctx, key)
	})
}

// DeleteScope 实现 Backend
func (a *Adapter) DeleteScope(ctx context.Context, prefix string) (int, error) {
	return route(ctx, a, "delete_scope", func(b Backend) (int, error) {
		return b.DeleteScope(ctx, prefix)
	})
}

// Scan 在当前后端上枚举。auto 策略下远程扫描出错时回退，
// 并从本地后端重新开始枚举；已产出的远程 key 不会重复产出。
func (a *Adapter) Scan(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		a.probe(ctx)
		b, autoRemote := a.current()

		seen := make(map[string]struct{})
		for key, err := range b.Scan(ctx, prefix) {
			if err != nil {
				if !autoRemote || ctx.Err() != nil {
					yield("", err)
					return
				}
				a.fallback("scan", err)
				break
			}
			seen[key] = struct{}{}
			if !yield(key, nil) {
				return
			}
		}
		if !autoRemote || !a.FellBack() {
			return
		}
		for key, err := range a.local.Scan(ctx, prefix) {
			if err != nil {
				yield("", err)
				return
			}
			if _, dup := seen[key]; dup {
				continue
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}

// ScanKeys 收集 Scan 的全部结果
func (a *Adapter) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key, err := range a.Scan(ctx, prefix) {
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close 关闭全部后端
func (a *Adapter) Close() error {
	var errs []error
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.remote.Name(), err))
		}
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.local.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// isTransient 判断远程错误是否值得重试
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
