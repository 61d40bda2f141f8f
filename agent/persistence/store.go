package persistence

import (
	"context"
	"errors"
	"iter"
	"sort"
	"time"
)

// ErrBackendClosed 后端已关闭
var ErrBackendClosed = errors.New("persistence: backend closed")

// Backend 存储后端契约。所有 key 都是逻辑 key，前缀由具体实现处理。
type Backend interface {
	// Name 返回后端名称，用于日志与指标
	Name() string

	// Ping 检查后端是否可用
	Ping(ctx context.Context) error

	// Commit 提交一个批次。返回 nil 时批次内所有 key 对后续读取可见
	Commit(ctx context.Context, b *Batch) error

	// ReadEntry 读取结构化记录，不存在时返回空 map
	ReadEntry(ctx context.Context, key string) (map[string]string, error)

	// ReadOrdered 按分数顺序读取有序日志中的成员
	ReadOrdered(ctx context.Context, key string, q OrderedQuery) ([]string, error)

	// CountOrdered 返回有序日志的成员数
	CountOrdered(ctx context.Context, key string) (int64, error)

	// Scan 惰性枚举以 prefix 开头的 key
	Scan(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Dump 导出单个 key 的完整内容，用于备份
	Dump(ctx context.Context, key string) (*Record, error)

	// DeleteScope 删除以 prefix 开头的全部 key，返回删除数量
	DeleteScope(ctx context.Context, prefix string) (int, error)

	// Close 释放资源
	Close() error
}

// OrderedQuery 有序读取参数
type OrderedQuery struct {
	// Limit 最多返回的成员数，<= 0 表示不限
	Limit int
	// Reverse 为 true 时按分数从高到低
	Reverse bool
	// Start 跳过的成员数
	Start int
}

// =============================================================================
// 📦 批量提交
// =============================================================================

type opKind int

const (
	opPutEntry opKind = iota
	opAddOrdered
	opRemoveOrdered
	opIncrField
	opDelete
)

type op struct {
	kind    opKind
	key     string
	fields  map[string]string
	member  string
	members []string
	score   float64
	field   string
	delta   int64
	ttl     time.Duration
}

// Batch 一次逻辑提交中的写操作集合，按添加顺序执行
type Batch struct {
	ops []op
}

// NewBatch 创建空批次
func NewBatch() *Batch {
	return &Batch{}
}

// PutEntry 写入（合并）结构化记录，对同一 key 幂等
func (b *Batch) PutEntry(key string, fields map[string]string, ttl time.Duration) *Batch {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	b.ops = append(b.ops, op{kind: opPutEntry, key: key, fields: cp, ttl: ttl})
	return b
}

// AddToOrdered 向有序日志添加成员，已存在时更新分数
func (b *Batch) AddToOrdered(key, member string, score float64, ttl time.Duration) *Batch {
	b.ops = append(b.ops, op{kind: opAddOrdered, key: key, member: member, score: score, ttl: ttl})
	return b
}

// RemoveFromOrdered 从有序日志移除成员
func (b *Batch) RemoveFromOrdered(key string, members ...string) *Batch {
	if len(members) == 0 {
		return b
	}
	b.ops = append(b.ops, op{kind: opRemoveOrdered, key: key, members: append([]string(nil), members...)})
	return b
}

// IncrField 对记录中的计数字段做增量
func (b *Batch) IncrField(key, field string, delta int64, ttl time.Duration) *Batch {
	b.ops = append(b.ops, op{kind: opIncrField, key: key, field: field, delta: delta, ttl: ttl})
	return b
}

// Delete 删除整个 key
func (b *Batch) Delete(keys ...string) *Batch {
	if len(keys) == 0 {
		return b
	}
	b.ops = append(b.ops, op{kind: opDelete, members: append([]string(nil), keys...)})
	return b
}

// Len 返回操作数
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// keys 返回批次涉及的全部 key，按首次出现排序
func (b *Batch) keys() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for _, o := range b.ops {
		if o.kind == opDelete {
			for _, k := range o.members {
				add(k)
			}
			continue
		}
		add(o.key)
	}
	return out
}

// =============================================================================
// 📤 导出记录
// =============================================================================

// RecordKind 记录形态
type RecordKind string

const (
	KindEntry   RecordKind = "entry"
	KindOrdered RecordKind = "ordered"
)

// ScoredMember 有序日志成员
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Record 单个 key 的完整内容
type Record struct {
	Key       string            `json:"key"`
	Kind      RecordKind        `json:"kind"`
	Fields    map[string]string `json:"fields,omitempty"`
	Members   []ScoredMember    `json:"members,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// sortMembers 按 (score, member) 升序排列，与 Redis ZSET 的同分字典序一致
func sortMembers(members []ScoredMember) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
}

// window 对已排序的成员切片应用 OrderedQuery
func window(members []ScoredMember, q OrderedQuery) []string {
	n := len(members)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := i
		if q.Reverse {
			idx = n - 1 - i
		}
		out = append(out, members[idx].Member)
	}
	if q.Start > 0 {
		if q.Start >= len(out) {
			return []string{}
		}
		out = out[q.Start:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
