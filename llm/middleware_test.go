package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/internal/retry"
	"github.com/BaSui01/craftmeet/llm"
	"github.com/BaSui01/craftmeet/llm/tokenizer"
	"github.com/BaSui01/craftmeet/testutil/mocks"
	"github.com/BaSui01/craftmeet/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetryer() *retry.Retryer {
	return retry.New(retry.Policy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}, nil)
}

// flakyProvider 前 failures 次调用返回可重试错误
type flakyProvider struct {
	*mocks.MockProvider
	failures int
	calls    int
	partial  string
}

func (f *flakyProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", types.NewError(types.ErrLLM, "upstream 502").WithRetryable(true)
	}
	return f.MockProvider.Generate(ctx, prompt, systemPrompt)
}

func (f *flakyProvider) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk llm.ChunkHandler) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.partial != "" && onChunk != nil {
			onChunk(f.partial)
		}
		return "", types.NewError(types.ErrLLM, "stream reset").WithRetryable(true)
	}
	return f.MockProvider.GenerateStream(ctx, prompt, systemPrompt, onChunk)
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	base := &flakyProvider{MockProvider: mocks.NewMockProvider().WithResponse("ok"), failures: 2}
	p := llm.Chain(base, llm.WithRetry(fastRetryer()))

	text, err := p.Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, base.calls)
}

func TestWithRetry_DoesNotRetryNonRetryable(t *testing.T) {
	t.Parallel()

	base := mocks.NewMockProvider().WithError(types.NewError(types.ErrConfig, "bad key"))
	p := llm.Chain(base, llm.WithRetry(fastRetryer()))

	_, err := p.Generate(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Equal(t, 1, base.CallCount())
}

func TestWithRetry_StreamStopsAfterDeliveredChunk(t *testing.T) {
	t.Parallel()

	base := &flakyProvider{MockProvider: mocks.NewMockProvider().WithResponse("完整回复"), failures: 1, partial: "半"}
	p := llm.Chain(base, llm.WithRetry(fastRetryer()))

	var chunks []string
	_, err := p.GenerateStream(context.Background(), "hi", "", func(c string) { chunks = append(chunks, c) })
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
	assert.Equal(t, []string{"半"}, chunks)
}

func TestWithRetry_StreamRetriesBeforeFirstChunk(t *testing.T) {
	t.Parallel()

	base := &flakyProvider{MockProvider: mocks.NewMockProvider().WithResponse("完整回复"), failures: 1}
	p := llm.Chain(base, llm.WithRetry(fastRetryer()))

	text, err := p.GenerateStream(context.Background(), "hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "完整回复", text)
	assert.Equal(t, 2, base.calls)
}

func TestWithVisionPipeline_CaptionsThenChats(t *testing.T) {
	t.Parallel()

	chat := mocks.NewMockProvider().WithResponse("一个关于青花瓷的故事")
	vision := mocks.NewMockProvider().WithVision(true).WithResponse("白底蓝花的瓷瓶")
	p := llm.Chain(chat, llm.WithVisionPipeline(vision))

	require.True(t, p.SupportsVision())
	text, err := p.GenerateWithImage(context.Background(), "讲个故事", "你是手艺人", "vase.png")
	require.NoError(t, err)
	assert.Equal(t, "一个关于青花瓷的故事", text)

	vc, ok := vision.LastCall()
	require.True(t, ok)
	assert.Equal(t, "generate_with_image", vc.Method)
	assert.Equal(t, llm.CaptionPrompt, vc.Prompt)
	assert.Equal(t, "vase.png", vc.ImagePath)

	cc, ok := chat.LastCall()
	require.True(t, ok)
	assert.Equal(t, "generate", cc.Method)
	assert.Contains(t, cc.Prompt, "讲个故事")
	assert.Contains(t, cc.Prompt, "【图片描述】\n白底蓝花的瓷瓶")
	assert.Equal(t, "你是手艺人", cc.SystemPrompt)
}

func TestWithVisionPipeline_PassThroughWhenChatSeesImages(t *testing.T) {
	t.Parallel()

	chat := mocks.NewMockProvider().WithVision(true)
	vision := mocks.NewMockProvider().WithVision(true)
	p := llm.Chain(chat, llm.WithVisionPipeline(vision))

	_, err := p.GenerateWithImage(context.Background(), "x", "", "a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, chat.CallCount())
	assert.Zero(t, vision.CallCount())
}

func TestWithVisionPipeline_NilVisionKeepsCapability(t *testing.T) {
	t.Parallel()

	chat := mocks.NewMockProvider()
	p := llm.Chain(chat, llm.WithVisionPipeline(nil))
	assert.False(t, p.SupportsVision())
}

func TestWithMetrics_RecordsStatus(t *testing.T) {
	t.Parallel()

	collector := metrics.NewCollector("llm_mw_test", zap.NewNop())
	ok := llm.Chain(mocks.NewMockProvider().WithName("deepseek"),
		llm.WithMetrics(collector, "deepseek-chat", tokenizer.ForModel("deepseek-chat", nil)))
	failing := llm.Chain(
		mocks.NewMockProvider().WithName("deepseek").WithError(types.NewError(types.ErrRateLimited, "429")),
		llm.WithMetrics(collector, "deepseek-chat", nil))

	_, err := ok.Generate(context.Background(), "你好", "")
	require.NoError(t, err)
	_, err = failing.Generate(context.Background(), "你好", "")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "llm_mw_test_llm_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChain_OrderOutermostFirst(t *testing.T) {
	t.Parallel()

	var order []string
	tag := func(name string) llm.Middleware {
		return func(next llm.Provider) llm.Provider {
			return &tracing{Provider: next, name: name, order: &order}
		}
	}
	p := llm.Chain(mocks.NewMockProvider(), tag("outer"), nil, tag("inner"))

	_, err := p.Generate(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type tracing struct {
	llm.Provider
	name  string
	order *[]string
}

func (t *tracing) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	*t.order = append(*t.order, t.name)
	return t.Provider.Generate(ctx, prompt, systemPrompt)
}

func TestWithRateLimit_PropagatesCancellation(t *testing.T) {
	t.Parallel()

	limiter := llm.NewRateLimiter(llm.RateLimitConfig{RequestsPerMinute: 1}, nil)
	p := llm.Chain(mocks.NewMockProvider(), llm.WithRateLimit(limiter))

	_, err := p.Generate(context.Background(), "first", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, "second", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}
