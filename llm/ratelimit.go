package llm

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/llm/tokenizer"
	"github.com/BaSui01/craftmeet/types"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// RequestsPerMinute 每分钟请求数上限，0 表示不限
	RequestsPerMinute int
	// TokensPerMinute 滚动窗口内的 token 上限，0 表示不限
	TokensPerMinute int
	// Window 滚动窗口长度，默认一分钟
	Window time.Duration
}

type tokenEvent struct {
	at     time.Time
	tokens int
}

// RateLimiter 请求数令牌桶加滚动窗口 token 计数
type RateLimiter struct {
	requests *rate.Limiter
	limit    int
	window   time.Duration
	counter  *tokenizer.Counter
	now      func() time.Time

	mu     sync.Mutex
	events []tokenEvent
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg RateLimitConfig, counter *tokenizer.Counter) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if counter == nil {
		counter = tokenizer.ForModel("", nil)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &RateLimiter{
		requests: limiter,
		limit:    cfg.TokensPerMinute,
		window:   cfg.Window,
		counter:  counter,
		now:      time.Now,
	}
}

// Wait 阻塞直到请求数与窗口 token 额度都允许发送 text
func (l *RateLimiter) Wait(ctx context.Context, text string) error {
	if err := l.requests.Wait(ctx); err != nil {
		return types.NewError(types.ErrRateLimited, "request limiter wait").WithCause(err)
	}
	need := l.counter.Count(text)
	for {
		delay, ok := l.reserve(need)
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.NewError(types.ErrRateLimited, "token window wait").WithCause(ctx.Err())
		case <-timer.C:
		}
	}
}

// Observe 把生成结果的 token 计入窗口
func (l *RateLimiter) Observe(text string) {
	if l.limit <= 0 {
		return
	}
	n := l.counter.Count(text)
	if n == 0 {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, tokenEvent{at: l.now(), tokens: n})
	l.mu.Unlock()
}

// Used 返回当前窗口内已用 token
func (l *RateLimiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.now())
}

// reserve 额度足够时登记 need 并返回 true，否则返回需要等待的时长。
// 窗口为空时总是放行，单个超大请求不会永久阻塞。
func (l *RateLimiter) reserve(need int) (time.Duration, bool) {
	if l.limit <= 0 {
		return 0, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	used := l.pruneLocked(now)
	if used+need <= l.limit || len(l.events) == 0 {
		l.events = append(l.events, tokenEvent{at: now, tokens: need})
		return 0, true
	}
	wait := l.events[0].at.Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func (l *RateLimiter) pruneLocked(now time.Time) int {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.events) && !l.events[i].at.After(cutoff) {
		i++
	}
	l.events = l.events[i:]
	used := 0
	for _, e := range l.events {
		used += e.tokens
	}
	return used
}

// WithRateLimit 在每次调用前等待限流器放行
func WithRateLimit(l *RateLimiter) Middleware {
	return func(next Provider) Provider {
		if l == nil {
			return next
		}
		return &providerFuncs{
			next: next,
			generate: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				if err := l.Wait(ctx, systemPrompt+prompt); err != nil {
					return "", err
				}
				text, err := next.Generate(ctx, prompt, systemPrompt)
				l.Observe(text)
				return text, err
			},
			generateImage: func(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
				if err := l.Wait(ctx, systemPrompt+prompt); err != nil {
					return "", err
				}
				text, err := next.GenerateWithImage(ctx, prompt, systemPrompt, imagePath)
				l.Observe(text)
				return text, err
			},
			generateStream: func(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error) {
				if err := l.Wait(ctx, systemPrompt+prompt); err != nil {
					return "", err
				}
				text, err := next.GenerateStream(ctx, prompt, systemPrompt, onChunk)
				l.Observe(text)
				return text, err
			},
		}
	}
}
