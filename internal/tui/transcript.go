package tui

import (
	"strings"

	"github.com/BaSui01/craftmeet/agent/conversation"
)

const maxTranscriptLines = 500

type lineKind int

const (
	kindSpeech lineKind = iota
	kindStage
	kindNotice
	kindError
)

type line struct {
	kind    lineKind
	speaker string
	text    []rune
	shown   int
}

func (l *line) done() bool { return l.shown >= len(l.text) }

// Transcript 把会议事件整理成按行着色的文本。
// typewriter 开启时新文本需要 Reveal 逐步显示。
type Transcript struct {
	lines      []*line
	open       *line
	typewriter bool
}

// NewTranscript 创建文本记录
func NewTranscript(typewriter bool) *Transcript {
	return &Transcript{typewriter: typewriter}
}

// SetTypewriter 切换打字机效果，关闭时立即显示全部文本
func (t *Transcript) SetTypewriter(on bool) {
	t.typewriter = on
	if !on {
		t.RevealAll()
	}
}

// Apply 处理一个会议事件
func (t *Transcript) Apply(ev conversation.TraceEvent) {
	switch ev.Type {
	case conversation.EventChunk:
		if t.open == nil {
			t.open = t.push(kindSpeech, speakerLabel(ev), "")
		}
		t.appendText(t.open, ev.Content)
		return
	case conversation.EventUtterance:
		if t.open != nil {
			t.open = nil
			return
		}
		t.push(kindSpeech, speakerLabel(ev), ev.Content)
		return
	}

	t.open = nil
	switch ev.Type {
	case conversation.EventStageStarted:
		t.push(kindStage, "", "==== "+ev.Stage.Label()+" ====")
	case conversation.EventStageCompleted:
	case conversation.EventError:
		t.push(kindError, "", "❌ ["+ev.Stage.Label()+"] "+ev.Content)
	default:
		t.push(kindNotice, "", "ℹ️  "+ev.Content)
	}
}

// Error 追加一行错误
func (t *Transcript) Error(msg string) {
	t.open = nil
	t.push(kindError, "", "❌ "+msg)
}

// Pending 是否还有未显示的文本
func (t *Transcript) Pending() bool {
	for _, l := range t.lines {
		if !l.done() {
			return true
		}
	}
	return false
}

// Reveal 显示至多 n 个字符，按行顺序推进
func (t *Transcript) Reveal(n int) {
	for _, l := range t.lines {
		if n <= 0 {
			return
		}
		if l.done() {
			continue
		}
		step := min(n, len(l.text)-l.shown)
		l.shown += step
		n -= step
	}
}

// RevealAll 显示全部文本
func (t *Transcript) RevealAll() {
	for _, l := range t.lines {
		l.shown = len(l.text)
	}
}

// Render 渲染最后 height 行，height<=0 表示全部
func (t *Transcript) Render(theme Theme, height int) string {
	var rendered []string
	for _, l := range t.lines {
		if l.shown == 0 && len(l.text) > 0 {
			break
		}
		rendered = append(rendered, renderLine(theme, l))
		if !l.done() {
			break
		}
	}
	if height > 0 && len(rendered) > height {
		rendered = rendered[len(rendered)-height:]
	}
	return strings.Join(rendered, "\n")
}

// Plain 返回不带样式的全部文本
func (t *Transcript) Plain() string {
	var b strings.Builder
	for i, l := range t.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if l.speaker != "" {
			b.WriteString(l.speaker + ": ")
		}
		b.WriteString(string(l.text))
	}
	return b.String()
}

func (t *Transcript) push(kind lineKind, speaker, text string) *line {
	l := &line{kind: kind, speaker: speaker}
	t.lines = append(t.lines, l)
	t.appendText(l, text)
	if over := len(t.lines) - maxTranscriptLines; over > 0 {
		t.lines = append([]*line(nil), t.lines[over:]...)
	}
	return l
}

func (t *Transcript) appendText(l *line, text string) {
	l.text = append(l.text, []rune(text)...)
	if !t.typewriter {
		l.shown = len(l.text)
	}
}

func renderLine(theme Theme, l *line) string {
	text := string(l.text[:l.shown])
	switch l.kind {
	case kindStage:
		return "\n" + theme.Stage.Render(text)
	case kindNotice:
		return theme.Notice.Render(text)
	case kindError:
		return theme.Error.Render(text)
	}
	return theme.Speaker.Render(l.speaker+":") + " " + theme.Speech.Render(text)
}

func speakerLabel(ev conversation.TraceEvent) string {
	if ev.Role == "" {
		return ev.DisplayName
	}
	return ev.DisplayName + "（" + ev.Role.DisplayName() + "）"
}
