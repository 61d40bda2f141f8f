package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SessionSource 返回当前会议快照，没有会议时返回 nil
type SessionSource func() any

// RouterDeps 路由依赖
type RouterDeps struct {
	Hub     *TraceHub
	Session SessionSource
	Metrics *metrics.Collector
	// Gatherer 为空时使用 prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter 创建观察服务路由
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// WebSocket 需要原始的 ResponseWriter，不经过指标中间件
	if deps.Hub != nil {
		r.Method(http.MethodGet, "/ws/trace", deps.Hub)
	}

	r.Group(func(r chi.Router) {
		r.Use(recordRequests(deps.Metrics))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			var snapshot any
			if deps.Session != nil {
				snapshot = deps.Session()
			}
			if snapshot == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
				return
			}
			writeJSON(w, http.StatusOK, snapshot)
		})
	})
	return r
}

// recordRequests 按路由模板记录请求指标
func recordRequests(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			collector.RecordHTTPRequest(r.Method, pattern, status, time.Since(start))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
