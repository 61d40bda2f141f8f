package persistence

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/BaSui01/craftmeet/internal/tlsutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	PoolSize    int
	KeyPrefix   string
	TLS         bool
	DialTimeout time.Duration
}

// RedisBackend 基于 Redis 的后端：记录用 HASH，有序日志用 ZSET
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisBackend 创建 Redis 后端。不会主动建立连接，首次使用时由 Adapter 探测。
func NewRedisBackend(opts RedisOptions, logger *zap.Logger) *RedisBackend {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	ro := &redis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolSize:    opts.PoolSize,
		DialTimeout: dialTimeout,
		MaxRetries:  -1,
	}
	if opts.TLS {
		ro.TLSConfig = tlsutil.ForAddr(opts.Addr)
	}
	return NewRedisBackendWithClient(redis.NewClient(ro), opts.KeyPrefix, logger)
}

// NewRedisBackendWithClient 使用已有客户端创建后端
func NewRedisBackendWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_backend")),
	}
}

// Name 实现 Backend
func (r *RedisBackend) Name() string { return "redis" }

// Ping 实现 Backend
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) key(k string) string { return r.keyPrefix + k }

// Commit 通过 MULTI/EXEC 管道提交整个批次
func (r *RedisBackend) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, o := range b.ops {
			k := r.key(o.key)
			switch o.kind {
			case opPutEntry:
				values := make(map[string]any, len(o.fields))
				for f, v := range o.fields {
					values[f] = v
				}
				if len(values) > 0 {
					pipe.HSet(ctx, k, values)
				}
				r.expire(ctx, pipe, k, o.ttl)

			case opAddOrdered:
				pipe.ZAdd(ctx, k, redis.Z{Score: o.score, Member: o.member})
				r.expire(ctx, pipe, k, o.ttl)

			case opRemoveOrdered:
				members := make([]any, len(o.members))
				for i, m := range o.members {
					members[i] = m
				}
				pipe.ZRem(ctx, k, members...)

			case opIncrField:
				pipe.HIncrBy(ctx, k, o.field, o.delta)
				r.expire(ctx, pipe, k, o.ttl)

			case opDelete:
				keys := make([]string, len(o.members))
				for i, m := range o.members {
					keys[i] = r.key(m)
				}
				pipe.Del(ctx, keys...)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (r *RedisBackend) expire(ctx context.Context, pipe redis.Pipeliner, key string, ttl time.Duration) {
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
}

// ReadEntry 实现 Backend
func (r *RedisBackend) ReadEntry(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return fields, nil
}

// ReadOrdered 实现 Backend
func (r *RedisBackend) ReadOrdered(ctx context.Context, key string, q OrderedQuery) ([]string, error) {
	start := int64(q.Start)
	stop := int64(-1)
	if q.Limit > 0 {
		stop = start + int64(q.Limit) - 1
	}

	var cmd *redis.StringSliceCmd
	if q.Reverse {
		cmd = r.client.ZRevRange(ctx, r.key(key), start, stop)
	} else {
		cmd = r.client.ZRange(ctx, r.key(key), start, stop)
	}
	ids, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return ids, nil
}

// CountOrdered 实现 Backend
func (r *RedisBackend) CountOrdered(ctx context.Context, key string) (int64, error) {
	n, err := r.client.ZCard(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard: %w", err)
	}
	return n, nil
}

// Scan 使用 SCAN 游标惰性枚举，返回去掉前缀后的逻辑 key
func (r *RedisBackend) Scan(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pattern := escapeGlob(r.key(prefix)) + "*"
		it := r.client.Scan(ctx, 0, pattern, 200).Iterator()
		for it.Next(ctx) {
			if !yield(strings.TrimPrefix(it.Val(), r.keyPrefix), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", fmt.Errorf("redis scan: %w", err))
		}
	}
}

// Dump 实现 Backend
func (r *RedisBackend) Dump(ctx context.Context, key string) (*Record, error) {
	k := r.key(key)
	typ, err := r.client.Type(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("redis type: %w", err)
	}

	rec := &Record{Key: key}
	switch typ {
	case "hash":
		rec.Kind = KindEntry
		if rec.Fields, err = r.client.HGetAll(ctx, k).Result(); err != nil {
			return nil, fmt.Errorf("redis hgetall: %w", err)
		}
	case "zset":
		rec.Kind = KindOrdered
		zs, err := r.client.ZRangeWithScores(ctx, k, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis zrange: %w", err)
		}
		for _, z := range zs {
			rec.Members = append(rec.Members, ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score})
		}
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported redis type %q for %s", typ, key)
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err == nil && ttl > 0 {
		exp := time.Now().Add(ttl)
		rec.ExpiresAt = &exp
	}
	return rec, nil
}

// DeleteScope 扫描前缀后分批删除
func (r *RedisBackend) DeleteScope(ctx context.Context, prefix string) (int, error) {
	const chunk = 200
	removed := 0
	pending := make([]string, 0, chunk)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, pending...).Result()
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
		pending = pending[:0]
		return nil
	}

	for key, err := range r.Scan(ctx, prefix) {
		if err != nil {
			return removed, err
		}
		pending = append(pending, r.key(key))
		if len(pending) >= chunk {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := flush(); err != nil {
		return removed, err
	}

	r.logger.Debug("scope deleted", zap.String("prefix", prefix), zap.Int("removed", removed))
	return removed, nil
}

// Close 实现 Backend
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// escapeGlob 转义 SCAN MATCH 中的通配字符
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
