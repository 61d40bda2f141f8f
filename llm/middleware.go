package llm

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/internal/retry"
	"github.com/BaSui01/craftmeet/llm/tokenizer"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔁 重试
// =============================================================================

// WithRetry 对可重试错误做指数退避重试。
// 流式调用一旦向调用方交付了分片便不再重试，避免重复输出。
func WithRetry(r *retry.Retryer) Middleware {
	return func(next Provider) Provider {
		if r == nil {
			return next
		}
		return &providerFuncs{
			next: next,
			generate: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				return retry.Do(ctx, r, func(ctx context.Context) (string, error) {
					return next.Generate(ctx, prompt, systemPrompt)
				})
			},
			generateImage: func(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
				return retry.Do(ctx, r, func(ctx context.Context) (string, error) {
					return next.GenerateWithImage(ctx, prompt, systemPrompt, imagePath)
				})
			},
			generateStream: func(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error) {
				return retry.Do(ctx, r, func(ctx context.Context) (string, error) {
					delivered := false
					text, err := next.GenerateStream(ctx, prompt, systemPrompt, func(chunk string) {
						delivered = true
						if onChunk != nil {
							onChunk(chunk)
						}
					})
					if err != nil && delivered {
						return "", retry.Permanent(err)
					}
					return text, err
				})
			},
		}
	}
}

// =============================================================================
// 👁️ 两阶段视觉
// =============================================================================

// CaptionPrompt 视觉模型描述图片时使用的提示词
const CaptionPrompt = "请详细描述这张图片：主体与造型、材质与工艺、色彩与纹样、可能承载的文化寓意。"

// WithVisionPipeline 在聊天模型不支持视觉时，先由 vision 描述图片，
// 再把描述附在提示词后交给聊天模型。
func WithVisionPipeline(vision Provider) Middleware {
	return func(next Provider) Provider {
		if vision == nil || next.SupportsVision() {
			return next
		}
		return &providerFuncs{
			next: next,
			generateImage: func(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
				caption, err := vision.GenerateWithImage(ctx, CaptionPrompt, "", imagePath)
				if err != nil {
					return "", err
				}
				return next.Generate(ctx, composeCaptioned(prompt, caption), systemPrompt)
			},
			supportsVision: vision.SupportsVision,
		}
	}
}

func composeCaptioned(prompt, caption string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n【图片描述】\n")
	b.WriteString(strings.TrimSpace(caption))
	return b.String()
}

// =============================================================================
// 📊 指标与日志
// =============================================================================

// WithMetrics 记录每次调用的状态、耗时与提示词 token 数
func WithMetrics(collector *metrics.Collector, model string, counter *tokenizer.Counter) Middleware {
	return func(next Provider) Provider {
		if collector == nil {
			return next
		}
		observe := func(op, prompt, systemPrompt string, start time.Time, err error) {
			tokens := 0
			if counter != nil {
				tokens = counter.Count(systemPrompt) + counter.Count(prompt)
			}
			status := "success"
			if err != nil {
				status = strings.ToLower(string(types.GetErrorCode(err)))
				if status == "" {
					status = "error"
				}
			}
			collector.RecordLLMRequest(next.Name(), model, op, status, time.Since(start), tokens)
		}
		return &providerFuncs{
			next: next,
			generate: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				start := time.Now()
				text, err := next.Generate(ctx, prompt, systemPrompt)
				observe("generate", prompt, systemPrompt, start, err)
				return text, err
			},
			generateImage: func(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
				start := time.Now()
				text, err := next.GenerateWithImage(ctx, prompt, systemPrompt, imagePath)
				observe("generate_with_image", prompt, systemPrompt, start, err)
				return text, err
			},
			generateStream: func(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error) {
				start := time.Now()
				text, err := next.GenerateStream(ctx, prompt, systemPrompt, onChunk)
				observe("generate_stream", prompt, systemPrompt, start, err)
				return text, err
			},
		}
	}
}

// WithLogging 以 Debug 级别记录调用，失败记录 Warn
func WithLogging(logger *zap.Logger) Middleware {
	return func(next Provider) Provider {
		if logger == nil {
			return next
		}
		log := logger.With(zap.String("component", "llm"), zap.String("provider", next.Name()))
		done := func(op string, start time.Time, out string, err error) {
			if err != nil {
				log.Warn("LLM 调用失败",
					zap.String("operation", op),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
				return
			}
			log.Debug("LLM 调用完成",
				zap.String("operation", op),
				zap.Duration("duration", time.Since(start)),
				zap.Int("output_runes", len([]rune(out))),
			)
		}
		return &providerFuncs{
			next: next,
			generate: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				start := time.Now()
				text, err := next.Generate(ctx, prompt, systemPrompt)
				done("generate", start, text, err)
				return text, err
			},
			generateImage: func(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
				start := time.Now()
				text, err := next.GenerateWithImage(ctx, prompt, systemPrompt, imagePath)
				done("generate_with_image", start, text, err)
				return text, err
			},
			generateStream: func(ctx context.Context, prompt, systemPrompt string, onChunk ChunkHandler) (string, error) {
				start := time.Now()
				text, err := next.GenerateStream(ctx, prompt, systemPrompt, onChunk)
				done("generate_stream", start, text, err)
				return text, err
			},
		}
	}
}
