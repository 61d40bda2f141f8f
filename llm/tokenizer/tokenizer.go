package tokenizer

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Tokenizer 统一的 Token 计数接口
type Tokenizer interface {
	// CountTokens 返回文本的 token 数
	CountTokens(text string) (int, error)

	// Name 返回分词器名称
	Name() string
}

// Counter 在主分词器失败时回退到估算器，计数永不失败
type Counter struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger

	primaryDown atomic.Bool
}

// ForModel 返回适合模型的计数器
func ForModel(model string, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Counter{
		fallback: NewEstimatorTokenizer(),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
	if enc, ok := encodingFor(model); ok {
		c.primary = NewTiktokenTokenizer(enc)
	}
	return c
}

// Count 返回 text 的 token 数
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.primary != nil && !c.primaryDown.Load() {
		n, err := c.primary.CountTokens(text)
		if err == nil {
			return n
		}
		if c.primaryDown.CompareAndSwap(false, true) {
			c.logger.Warn("tiktoken 不可用，改用估算", zap.Error(err))
		}
	}
	n, _ := c.fallback.CountTokens(text)
	return n
}

// Name 返回当前生效的分词器名称
func (c *Counter) Name() string {
	if c.primary != nil && !c.primaryDown.Load() {
		return c.primary.Name()
	}
	return c.fallback.Name()
}

// FitLines 按顺序保留 lines，直到累计 token 超过 budget；budget<=0 表示不限
func (c *Counter) FitLines(lines []string, budget int) []string {
	if budget <= 0 {
		return lines
	}
	used := 0
	for i, line := range lines {
		used += c.Count(line)
		if used > budget {
			return lines[:i]
		}
	}
	return lines
}

// encodingFor 将模型名映射到 tiktoken 编码
func encodingFor(model string) (string, bool) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "gpt-4.1"):
		return "o200k_base", true
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"), strings.HasPrefix(m, "text-embedding-3"):
		return "cl100k_base", true
	default:
		return "", false
	}
}
