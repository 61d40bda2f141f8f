package types

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator 生成 {ms_since_epoch}_{random8} 形式的 ID。
// 同一生成器产生的时间戳严格递增：同一毫秒内的第二次调用顺延 1ms。
type IDGenerator struct {
	mu     sync.Mutex
	lastMs int64
	now    func() time.Time
}

// NewIDGenerator 创建生成器，clock 为 nil 时使用 time.Now
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next 返回新 ID 及其编码的时间戳
func (g *IDGenerator) Next() (string, time.Time) {
	return g.NextWithInfix("")
}

// NextWithInfix 返回 {ms}_{infix}_{random8}，infix 为空时退化为 {ms}_{random8}
func (g *IDGenerator) NextWithInfix(infix string) (string, time.Time) {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.lastMs {
		ms = g.lastMs + 1
	}
	g.lastMs = ms
	g.mu.Unlock()

	var b strings.Builder
	b.WriteString(strconv.FormatInt(ms, 10))
	b.WriteByte('_')
	if infix != "" {
		b.WriteString(infix)
		b.WriteByte('_')
	}
	b.WriteString(randomSuffix())
	return b.String(), time.UnixMilli(ms)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// TimestampFromID 解析 IDGenerator 生成的 ID 的毫秒前缀
func TimestampFromID(id string) (time.Time, bool) {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
