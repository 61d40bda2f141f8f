package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/agent/conversation"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	defaultReplaySize = 256
	defaultQueueSize  = 128
	writeTimeout      = 5 * time.Second
)

// HubConfig TraceHub 配置
type HubConfig struct {
	// ReplaySize 新订阅者回放的最近事件数
	ReplaySize int
	// QueueSize 每个订阅者的发送队列长度
	QueueSize int
	// OriginPatterns 允许的跨域来源，为空时只允许同源
	OriginPatterns []string
}

type subscriber struct {
	queue   chan []byte
	dropped int
}

// TraceHub 把会议事件广播给 WebSocket 订阅者
type TraceHub struct {
	config HubConfig
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	replay [][]byte
}

var _ conversation.TraceSink = (*TraceHub)(nil)

// NewTraceHub 创建事件广播中心
func NewTraceHub(config HubConfig, logger *zap.Logger) *TraceHub {
	if config.ReplaySize <= 0 {
		config.ReplaySize = defaultReplaySize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceHub{
		config: config,
		logger: logger.With(zap.String("component", "trace_hub")),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish 实现 conversation.TraceSink，不会阻塞
func (h *TraceHub) Publish(ev conversation.TraceEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("encode trace event failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.replay = append(h.replay, data)
	if over := len(h.replay) - h.config.ReplaySize; over > 0 {
		h.replay = append([][]byte(nil), h.replay[over:]...)
	}
	for sub := range h.subs {
		select {
		case sub.queue <- data:
		default:
			sub.dropped++
		}
	}
}

// Subscribers 返回当前订阅者数量
func (h *TraceHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *TraceHub) subscribe() *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{queue: make(chan []byte, h.config.QueueSize+len(h.replay))}
	for _, data := range h.replay {
		sub.queue <- data
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *TraceHub) unsubscribe(sub *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	return sub.dropped
}

// ServeHTTP 升级为 WebSocket 并持续推送事件，客户端发来的消息会被忽略
func (h *TraceHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	sub := h.subscribe()
	h.logger.Info("trace subscriber connected", zap.String("remote", r.RemoteAddr))
	defer func() {
		dropped := h.unsubscribe(sub)
		h.logger.Info("trace subscriber disconnected",
			zap.String("remote", r.RemoteAddr), zap.Int("dropped", dropped))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sub.queue:
			if err := writeMessage(ctx, conn, data); err != nil {
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
