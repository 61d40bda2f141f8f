// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，
// 未配置指标时调用方可以直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensEstimated *prometheus.CounterVec

	// 会议指标
	stageTransitions *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	utterancesTotal  *prometheus.CounterVec
	votingResultSize prometheus.Histogram

	// 存储指标
	storageCommitsTotal   *prometheus.CounterVec
	storageCommitDuration *prometheus.HistogramVec
	storageFallbacks      *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served by the trace server",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "operation", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "operation"},
	)

	c.llmTokensEstimated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_estimated_total",
			Help:      "Estimated prompt tokens sent to the provider",
		},
		[]string{"provider", "model"},
	)

	// 会议指标
	c.stageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_stage_transitions_total",
			Help:      "Total number of meeting stage transitions",
		},
		[]string{"from_stage", "to_stage"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "meeting_stage_duration_seconds",
			Help:      "Time spent in each meeting stage",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "status"},
	)

	c.utterancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_utterances_total",
			Help:      "Total number of utterances recorded on the timeline",
		},
		[]string{"stage", "speech_type"},
	)

	c.votingResultSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voting_result_size",
			Help:      "Number of keywords surviving consensus voting",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
	)

	// 存储指标
	c.storageCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_commits_total",
			Help:      "Total number of batched storage commits",
		},
		[]string{"backend", "status"},
	)

	c.storageCommitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_commit_duration_seconds",
			Help:      "Batched storage commit duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	c.storageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_fallbacks_total",
			Help:      "Total number of permanent fallbacks to the local backend",
		},
		[]string{"from", "to"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, operation, status string, duration time.Duration, promptTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, operation, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model, operation).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensEstimated.WithLabelValues(provider, model).Add(float64(promptTokens))
	}
}

// =============================================================================
// 🎭 会议指标记录
// =============================================================================

// RecordStageTransition 记录阶段切换
func (c *Collector) RecordStageTransition(from, to string) {
	if c == nil {
		return
	}
	c.stageTransitions.WithLabelValues(from, to).Inc()
}

// RecordStageDuration 记录阶段耗时
func (c *Collector) RecordStageDuration(stage, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordUtterance 记录一条发言
func (c *Collector) RecordUtterance(stage, speechType string) {
	if c == nil {
		return
	}
	c.utterancesTotal.WithLabelValues(stage, speechType).Inc()
}

// RecordVotingResult 记录投票结果规模
func (c *Collector) RecordVotingResult(size int) {
	if c == nil {
		return
	}
	c.votingResultSize.Observe(float64(size))
}

// =============================================================================
// 💾 存储与缓存指标记录
// =============================================================================

// RecordStorageCommit 记录一次批量提交
func (c *Collector) RecordStorageCommit(backend string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.storageCommitsTotal.WithLabelValues(backend, status).Inc()
	c.storageCommitDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordStorageFallback 记录永久回退
func (c *Collector) RecordStorageFallback(from, to string) {
	if c == nil {
		return
	}
	c.storageFallbacks.WithLabelValues(from, to).Inc()
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
