package image

import (
	"context"
	"time"
)

// Request 生成请求
type Request struct {
	Prompt string
	Model  string
	N      int    // 图片数量，默认 1
	Size   string // 1024x1024, 1792x1024 等
}

// Result 生成结果
type Result struct {
	Model         string
	Paths         []string // 保存到本地的文件
	RevisedPrompt string
	CreatedAt     time.Time
}

// Generator 图像生成接口
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Config OpenAI 兼容图像接口配置
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Size      string
	OutputDir string
	Timeout   time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.openai.com",
		Model:     "dall-e-3",
		Size:      "1024x1024",
		OutputDir: "output/images",
		Timeout:   120 * time.Second,
	}
}
