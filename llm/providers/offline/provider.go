// Package offline 提供无需网络的确定性 Provider，用于演示与冒烟运行。
package offline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/craftmeet/llm"
)

// Name 家族名称
const Name = "mock"

// Provider 根据提示词生成确定性文本
type Provider struct {
	vision bool
}

var _ llm.Provider = (*Provider)(nil)

// New 创建离线 Provider
func New(vision bool) *Provider {
	return &Provider{vision: vision}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SupportsVision() bool { return p.vision }

func (p *Provider) Generate(_ context.Context, prompt, _ string) (string, error) {
	return reply(prompt), nil
}

func (p *Provider) GenerateWithImage(_ context.Context, prompt, _ string, imagePath string) (string, error) {
	return fmt.Sprintf("（离线）图片 %s 中是一件带有传统纹样的器物。%s", imagePath, reply(prompt)), nil
}

func (p *Provider) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk llm.ChunkHandler) (string, error) {
	text, _ := p.Generate(ctx, prompt, systemPrompt)
	if onChunk != nil {
		for _, r := range text {
			onChunk(string(r))
		}
	}
	return text, nil
}

// reply 关键词类提示词返回空 JSON 数组，交由调用方的兜底词库补齐
func reply(prompt string) string {
	if strings.Contains(prompt, "关键词") && strings.Contains(prompt, "JSON") {
		return "[]"
	}
	first := strings.TrimSpace(strings.SplitN(prompt, "\n", 2)[0])
	if utf8.RuneCountInString(first) > 40 {
		first = string([]rune(first)[:40])
	}
	return fmt.Sprintf("（离线）关于“%s”，我认为要兼顾传统工艺与现代生活。", first)
}
