package conversation

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/types"
)

// EventType 事件类型
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventChunk          EventType = "chunk"
	EventUtterance      EventType = "utterance"
	EventNotice         EventType = "notice"
	EventError          EventType = "error"
)

// TraceEvent 会议过程中的一个事件
type TraceEvent struct {
	Type          EventType        `json:"type"`
	SessionID     string           `json:"session_id"`
	Stage         types.Stage      `json:"stage"`
	ParticipantID string           `json:"participant_id,omitempty"`
	DisplayName   string           `json:"display_name,omitempty"`
	Role          types.Role       `json:"role,omitempty"`
	SpeechType    types.MemoryType `json:"speech_type,omitempty"`
	Content       string           `json:"content,omitempty"`
	Time          time.Time        `json:"time"`
}

// TraceSink 接收会议事件。Publish 在会议协程中同步调用，实现不应阻塞。
type TraceSink interface {
	Publish(ev TraceEvent)
}

// SinkFunc 函数适配器
type SinkFunc func(ev TraceEvent)

// Publish 实现 TraceSink
func (f SinkFunc) Publish(ev TraceEvent) { f(ev) }

// FanOut 把事件依次转发给多个 sink，nil 会被跳过
type FanOut []TraceSink

// Publish 实现 TraceSink
func (f FanOut) Publish(ev TraceEvent) {
	for _, s := range f {
		if s != nil {
			s.Publish(ev)
		}
	}
}

// Recorder 在内存中保存事件，主要用于测试与会后回放
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// Publish 实现 TraceSink
func (r *Recorder) Publish(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events 返回副本
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}

// Filter 返回指定类型的事件
func (r *Recorder) Filter(t EventType) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// WriterSink 以纯文本写出事件
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
	// inLine 正在输出流式片段
	inLine bool
}

// NewWriterSink 创建纯文本 sink
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Publish 实现 TraceSink
func (s *WriterSink) Publish(ev TraceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case EventChunk:
		if !s.inLine {
			fmt.Fprintf(s.w, "%s（%s）: ", ev.DisplayName, ev.Role.DisplayName())
			s.inLine = true
		}
		fmt.Fprint(s.w, ev.Content)
		return
	case EventUtterance:
		if s.inLine {
			fmt.Fprintln(s.w)
			s.inLine = false
			return
		}
		fmt.Fprintf(s.w, "%s（%s）: %s\n", ev.DisplayName, ev.Role.DisplayName(), ev.Content)
		return
	}

	if s.inLine {
		fmt.Fprintln(s.w)
		s.inLine = false
	}
	switch ev.Type {
	case EventStageStarted:
		fmt.Fprintf(s.w, "\n==== %s ====\n", ev.Stage.Label())
	case EventStageCompleted:
	case EventError:
		fmt.Fprintf(s.w, "❌ [%s] %s\n", ev.Stage.Label(), ev.Content)
	default:
		fmt.Fprintf(s.w, "ℹ️  %s\n", ev.Content)
	}
}
