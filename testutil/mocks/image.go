package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/craftmeet/llm/image"
)

// ImageGenerator 记录提示词的模拟图像生成器
type ImageGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

var _ image.Generator = (*ImageGenerator)(nil)

// NewImageGenerator 创建模拟图像生成器
func NewImageGenerator() *ImageGenerator {
	return &ImageGenerator{}
}

// WithError 之后的调用都返回 err
func (g *ImageGenerator) WithError(err error) *ImageGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
	return g
}

// Generate 实现 image.Generator，第 n 次调用返回 output/images/design_n.png
func (g *ImageGenerator) Generate(_ context.Context, req image.Request) (*image.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	if g.err != nil {
		return nil, g.err
	}
	return &image.Result{
		Model: "mock-image",
		Paths: []string{fmt.Sprintf("output/images/design_%d.png", len(g.prompts))},
	}, nil
}

// Prompts 返回收到的提示词
func (g *ImageGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
