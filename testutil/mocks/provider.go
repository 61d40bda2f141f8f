// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持按提示词子串匹配的规则、顺序脚本、流式分片、视觉开关与错误注入。
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/craftmeet/llm"
)

// --- MockProvider 结构 ---

// Call 记录单次调用
type Call struct {
	Method       string
	Prompt       string
	SystemPrompt string
	ImagePath    string
}

type rule struct {
	substr   string
	response string
	err      error
}

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	name         string
	response     string
	err          error
	vision       bool
	rules        []rule
	script       []string
	streamChunks []string
	responder    func(call Call) (string, error)

	failAfter int
	calls     []Call
}

var _ llm.Provider = (*MockProvider)(nil)

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:     "mock",
		response: "Mock response",
	}
}

// WithName 设置名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置默认响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置每次调用返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithVision 设置是否支持视觉
func (m *MockProvider) WithVision(vision bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vision = vision
	return m
}

// WithRule 提示词包含 substr 时返回 response，按添加顺序匹配
func (m *MockProvider) WithRule(substr, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{substr: substr, response: response})
	return m
}

// WithErrorRule 提示词包含 substr 时返回 err
func (m *MockProvider) WithErrorRule(substr string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{substr: substr, err: err})
	return m
}

// WithScript 未命中规则的调用依次消费脚本，耗尽后回到默认响应
func (m *MockProvider) WithScript(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// WithStreamChunks 设置流式分片，GenerateStream 将按此切分输出
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithResponder 设置自定义响应函数，优先级最高
func (m *MockProvider) WithResponder(fn func(call Call) (string, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// WithFailAfter 在第 n 次调用之后返回 err（需同时设置 WithError）
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// --- llm.Provider 实现 ---

func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MockProvider) SupportsVision() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vision
}

func (m *MockProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return m.handle(ctx, Call{Method: "generate", Prompt: prompt, SystemPrompt: systemPrompt})
}

func (m *MockProvider) GenerateWithImage(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
	return m.handle(ctx, Call{Method: "generate_with_image", Prompt: prompt, SystemPrompt: systemPrompt, ImagePath: imagePath})
}

func (m *MockProvider) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk llm.ChunkHandler) (string, error) {
	text, err := m.handle(ctx, Call{Method: "generate_stream", Prompt: prompt, SystemPrompt: systemPrompt})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	chunks := m.streamChunks
	m.mu.Unlock()
	if len(chunks) == 0 {
		chunks = splitRunes(text, 8)
	} else {
		text = strings.Join(chunks, "")
	}
	if onChunk != nil {
		for _, c := range chunks {
			onChunk(c)
		}
	}
	return text, nil
}

func (m *MockProvider) handle(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
	if m.err != nil && len(m.calls) > m.failAfter {
		return "", m.err
	}
	if m.responder != nil {
		return m.responder(call)
	}
	for _, r := range m.rules {
		if strings.Contains(call.Prompt, r.substr) {
			return r.response, r.err
		}
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	return m.response, nil
}

// --- 调用记录 ---

// Calls 返回全部调用记录的副本
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用
func (m *MockProvider) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
