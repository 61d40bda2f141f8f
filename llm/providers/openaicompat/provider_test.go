package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/craftmeet/llm/providers"
	"github.com/BaSui01/craftmeet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, vision bool) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ProviderName: "deepseek",
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
		Model:        "deepseek-chat",
		Timeout:      5 * time.Second,
		Vision:       vision,
	}, nil)
}

func TestProvider_Generate(t *testing.T) {
	t.Parallel()

	var got providers.ChatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","model":"deepseek-chat","choices":[{"index":0,"message":{"role":"assistant","content":"  竹编灯罩  "}}]}`))
	}, false)

	text, err := p.Generate(context.Background(), "谈谈竹编", "你是手艺人")
	require.NoError(t, err)
	assert.Equal(t, "竹编灯罩", text)

	assert.Equal(t, "deepseek-chat", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "你是手艺人", got.Messages[0].Content)
	assert.Equal(t, "谈谈竹编", got.Messages[1].Content)
	assert.False(t, got.Stream)
}

func TestProvider_GenerateMapsHTTPErrors(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	}, false)

	_, err := p.Generate(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestProvider_GenerateStream(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req providers.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"大家好，", "我是", "张师傅。"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, false)

	var chunks []string
	text, err := p.GenerateStream(context.Background(), "自我介绍", "", func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"大家好，", "我是", "张师傅。"}, chunks)
	assert.Equal(t, "大家好，我是张师傅。", text)
}

func TestProvider_GenerateStreamMalformedChunk(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
	}, false)

	_, err := p.GenerateStream(context.Background(), "hi", "", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrLLM, types.GetErrorCode(err))
}

func TestProvider_GenerateWithImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	img := filepath.Join(dir, "vase.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nfake"), 0o644))

	var raw map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"一只青花瓷瓶"}}]}`))
	}, true)

	text, err := p.GenerateWithImage(context.Background(), "讲个故事", "", img)
	require.NoError(t, err)
	assert.Equal(t, "一只青花瓷瓶", text)

	msgs := raw["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	imagePart := parts[1].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
	url := imagePart["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
}

func TestProvider_GenerateWithImageRequiresVision(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, false)

	assert.False(t, p.SupportsVision())
	_, err := p.GenerateWithImage(context.Background(), "x", "", "missing.png")
	assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
}

func TestProvider_GenerateWithImageMissingFile(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, true)

	_, err := p.GenerateWithImage(context.Background(), "x", "", filepath.Join(t.TempDir(), "nope.jpg"))
	assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
}
