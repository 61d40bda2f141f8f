package llm

import (
	"context"
)

// ChunkHandler 接收流式生成的增量文本
type ChunkHandler func(chunk string)

// Provider 大语言模型窄接口
type Provider interface {
	// Name 返回服务家族名称
	Name() string

	// Generate 根据提示词与系统提示词生成完整文本
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)

	// GenerateWithImage 携带一张本地图片生成文本
	GenerateWithImage(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error)

	// GenerateStream 流式生成，每个分片回调 onChunk，返回拼接后的完整文本
	GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error)

	// SupportsVision 报告 GenerateWithImage 是否可用
	SupportsVision() bool
}

// Middleware 包装 Provider
type Middleware func(Provider) Provider

// Chain 依次应用中间件，第一个中间件位于最外层
func Chain(p Provider, middlewares ...Middleware) Provider {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			p = middlewares[i](p)
		}
	}
	return p
}

// providerFuncs 用函数字段覆盖部分方法，其余委托给 next
type providerFuncs struct {
	next           Provider
	generate       func(ctx context.Context, prompt, systemPrompt string) (string, error)
	generateImage  func(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error)
	generateStream func(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error)
	supportsVision func() bool
}

func (p *providerFuncs) Name() string { return p.next.Name() }

func (p *providerFuncs) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if p.generate != nil {
		return p.generate(ctx, prompt, systemPrompt)
	}
	return p.next.Generate(ctx, prompt, systemPrompt)
}

func (p *providerFuncs) GenerateWithImage(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
	if p.generateImage != nil {
		return p.generateImage(ctx, prompt, systemPrompt, imagePath)
	}
	return p.next.GenerateWithImage(ctx, prompt, systemPrompt, imagePath)
}

func (p *providerFuncs) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error) {
	if p.generateStream != nil {
		return p.generateStream(ctx, prompt, systemPrompt, onChunk)
	}
	return p.next.GenerateStream(ctx, prompt, systemPrompt, onChunk)
}

func (p *providerFuncs) SupportsVision() bool {
	if p.supportsVision != nil {
		return p.supportsVision()
	}
	return p.next.SupportsVision()
}

// Unwrap 返回被包装的 Provider
func (p *providerFuncs) Unwrap() Provider { return p.next }
