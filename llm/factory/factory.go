package factory

import (
	"sort"
	"strings"

	"github.com/BaSui01/craftmeet/config"
	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/internal/retry"
	"github.com/BaSui01/craftmeet/llm"
	"github.com/BaSui01/craftmeet/llm/image"
	"github.com/BaSui01/craftmeet/llm/providers/offline"
	"github.com/BaSui01/craftmeet/llm/providers/openaicompat"
	"github.com/BaSui01/craftmeet/llm/tokenizer"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

// Family 一个 OpenAI 兼容服务家族
type Family struct {
	Name         string
	BaseURL      string
	EndpointPath string
	DefaultModel string
	// VisionHints 模型名包含任一子串时视为支持视觉（不区分大小写）
	VisionHints []string
	// Keyless 无需 API Key
	Keyless bool
}

// SupportsVision 判断 model 是否属于视觉模型
func (f Family) SupportsVision(model string) bool {
	m := strings.ToLower(model)
	for _, hint := range f.VisionHints {
		if strings.Contains(m, hint) {
			return true
		}
	}
	return false
}

var families = map[string]Family{
	"openai": {
		Name: "openai", BaseURL: "https://api.openai.com", EndpointPath: "/v1/chat/completions",
		DefaultModel: "gpt-4o-mini", VisionHints: []string{"gpt-4o", "gpt-4.1", "vision"},
	},
	"deepseek": {
		Name: "deepseek", BaseURL: "https://api.deepseek.com", EndpointPath: "/chat/completions",
		DefaultModel: "deepseek-chat",
	},
	"qwen": {
		Name: "qwen", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode", EndpointPath: "/v1/chat/completions",
		DefaultModel: "qwen-plus", VisionHints: []string{"-vl"},
	},
	"glm": {
		Name: "glm", BaseURL: "https://open.bigmodel.cn/api/paas/v4", EndpointPath: "/chat/completions",
		DefaultModel: "glm-4-flash", VisionHints: []string{"4v"},
	},
	"moonshot": {
		Name: "moonshot", BaseURL: "https://api.moonshot.cn", EndpointPath: "/v1/chat/completions",
		DefaultModel: "moonshot-v1-8k", VisionHints: []string{"vision"},
	},
	"doubao": {
		Name: "doubao", BaseURL: "https://ark.cn-beijing.volces.com/api/v3", EndpointPath: "/chat/completions",
		DefaultModel: "doubao-pro-32k", VisionHints: []string{"vision"},
	},
	"siliconflow": {
		Name: "siliconflow", BaseURL: "https://api.siliconflow.cn", EndpointPath: "/v1/chat/completions",
		DefaultModel: "Qwen/Qwen2.5-7B-Instruct", VisionHints: []string{"-vl"},
	},
	"ollama": {
		Name: "ollama", BaseURL: "http://localhost:11434", EndpointPath: "/v1/chat/completions",
		DefaultModel: "qwen2.5", VisionHints: []string{"llava", "-vl", "vision"}, Keyless: true,
	},
	offline.Name: {Name: offline.Name, DefaultModel: "offline", Keyless: true},
}

// Lookup 返回家族定义
func Lookup(name string) (Family, bool) {
	f, ok := families[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Families 返回所有家族名称（已排序）
func Families() []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deps 组装 Provider 所需的可选依赖
type Deps struct {
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// NewProvider 根据 AI 配置创建带完整中间件链的 Provider
func NewProvider(cfg config.AIConfig, deps Deps) (llm.Provider, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	family, ok := Lookup(cfg.Provider)
	if !ok {
		return nil, types.NewConfigError("AI_PROVIDER",
			"unknown provider family "+cfg.Provider+", expected one of "+strings.Join(Families(), ", "))
	}
	if cfg.APIKey == "" && !family.Keyless {
		return nil, types.NewConfigError("AI_API_KEY", "required for provider "+family.Name)
	}

	model := cfg.Model
	if model == "" {
		model = family.DefaultModel
	}

	if family.Name == offline.Name {
		return llm.Chain(offline.New(true), llm.WithLogging(logger)), nil
	}

	counter := tokenizer.ForModel(model, logger)
	limiter := llm.NewRateLimiter(llm.RateLimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		TokensPerMinute:   cfg.TokensPerMinute,
	}, counter)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	retryer := retry.New(policy, logger.With(zap.String("component", "llm_retry")))

	chat := newCompat(family, cfg, model, family.SupportsVision(model), logger)

	var vision llm.Provider
	if !chat.SupportsVision() && cfg.VisionModel != "" {
		vision = llm.Chain(
			newCompat(family, cfg, cfg.VisionModel, true, logger),
			llm.WithRetry(retryer),
			llm.WithRateLimit(limiter),
		)
	}

	logger.Info("LLM Provider 已创建",
		zap.String("family", family.Name),
		zap.String("model", model),
		zap.Bool("vision", chat.SupportsVision() || vision != nil),
		zap.String("tokenizer", counter.Name()),
	)

	return llm.Chain(chat,
		llm.WithLogging(logger),
		llm.WithMetrics(deps.Metrics, model, counter),
		llm.WithVisionPipeline(vision),
		llm.WithRetry(retryer),
		llm.WithRateLimit(limiter),
	), nil
}

func newCompat(family Family, cfg config.AIConfig, model string, vision bool, logger *zap.Logger) *openaicompat.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = family.BaseURL
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName: family.Name,
		APIKey:       cfg.APIKey,
		BaseURL:      baseURL,
		Model:        model,
		Temperature:  cfg.Temperature,
		Timeout:      cfg.Timeout,
		EndpointPath: family.EndpointPath,
		Vision:       vision,
	}, logger)
}

// NewImageGenerator 创建图像生成器。离线家族或未配置图像模型时返回 nil，
// 会议的图片生成阶段随之跳过。
func NewImageGenerator(cfg config.AIConfig, logger *zap.Logger) (image.Generator, error) {
	family, ok := Lookup(cfg.Provider)
	if !ok {
		return nil, types.NewConfigError("AI_PROVIDER", "unknown provider family "+cfg.Provider)
	}
	if family.Name == offline.Name || cfg.ImageModel == "" {
		return nil, nil
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = family.BaseURL
	}
	return image.NewOpenAIGenerator(image.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   baseURL,
		Model:     cfg.ImageModel,
		OutputDir: cfg.ImageOutputDir,
		Timeout:   cfg.Timeout,
	}, logger), nil
}
