package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/craftmeet/internal/tlsutil"
	"github.com/BaSui01/craftmeet/llm"
	"github.com/BaSui01/craftmeet/llm/providers"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

// Config OpenAI 兼容服务的配置
type Config struct {
	// ProviderName 服务家族名称（deepseek、qwen 等）
	ProviderName string

	// APIKey 鉴权密钥，无密钥服务可为空
	APIKey string

	// BaseURL 服务根地址
	BaseURL string

	// Model 模型名称
	Model string

	// Temperature 采样温度，0 表示使用服务端默认值
	Temperature float64

	// MaxTokens 单次输出上限，0 表示不限
	MaxTokens int

	// Timeout HTTP 超时，默认 60s
	Timeout time.Duration

	// EndpointPath 补全接口路径，默认 /v1/chat/completions
	EndpointPath string

	// Vision 模型是否接受图片输入
	Vision bool

	// MaxImageBytes 图片大小上限，默认 20MB
	MaxImageBytes int64

	// BuildHeaders 自定义请求头，为空时使用 Bearer 鉴权
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider OpenAI 兼容实现
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 创建 Provider
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 20 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "openaicompat"), zap.String("provider", cfg.ProviderName)),
	}
}

// WithHTTPClient 替换 HTTP 客户端
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	if client != nil {
		p.client = client
	}
	return p
}

// Name 返回服务家族名称
func (p *Provider) Name() string { return p.cfg.ProviderName }

// Model 返回模型名称
func (p *Provider) Model() string { return p.cfg.Model }

// SupportsVision 报告模型是否接受图片
func (p *Provider) SupportsVision() bool { return p.cfg.Vision }

// Generate 非流式补全
func (p *Provider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	resp, err := p.complete(ctx, providers.BuildMessages(systemPrompt, prompt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

// GenerateWithImage 携带本地图片补全
func (p *Provider) GenerateWithImage(ctx context.Context, prompt, systemPrompt, imagePath string) (string, error) {
	if !p.cfg.Vision {
		return "", types.NewError(types.ErrInvalidInput, "model does not accept images").WithProvider(p.Name())
	}
	dataURL, err := p.encodeImage(imagePath)
	if err != nil {
		return "", err
	}
	parts := []providers.ContentPart{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &providers.ImageURL{URL: dataURL}},
	}
	resp, err := p.complete(ctx, providers.BuildMessages(systemPrompt, parts))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

// GenerateStream SSE 流式补全
func (p *Provider) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk llm.ChunkHandler) (string, error) {
	body := p.request(providers.BuildMessages(systemPrompt, prompt))
	body.Stream = true

	resp, err := p.post(ctx, body)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for chunk := range StreamSSE(ctx, resp.Body, p.Name()) {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Text == "" {
			continue
		}
		full.WriteString(chunk.Text)
		if onChunk != nil {
			onChunk(chunk.Text)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", types.NewError(types.ErrTimeout, "stream interrupted").WithCause(err).WithProvider(p.Name())
	}
	return strings.TrimSpace(full.String()), nil
}

func (p *Provider) request(msgs []providers.ChatMessage) providers.ChatRequest {
	return providers.ChatRequest{
		Model:       p.cfg.Model,
		Messages:    msgs,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}
}

func (p *Provider) complete(ctx context.Context, msgs []providers.ChatMessage) (*providers.ChatResponse, error) {
	resp, err := p.post(ctx, p.request(msgs))
	if err != nil {
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	var out providers.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrLLM, "decode completion").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrLLM, "empty choices").WithRetryable(true).WithProvider(p.Name())
	}
	return &out, nil
}

// post 发送请求并在状态码 >= 400 时返回映射后的错误，成功时调用方负责关闭 Body
func (p *Provider) post(ctx context.Context, body providers.ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrSerialization, "marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrTimeout, "request cancelled").WithCause(err).WithProvider(p.Name())
		}
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		p.logger.Debug("上游返回错误", zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.cfg.BuildHeaders != nil {
		p.cfg.BuildHeaders(req, p.cfg.APIKey)
		return
	}
	providers.BearerHeaders(req, p.cfg.APIKey)
}

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
}

// encodeImage 读取图片并编码为 data URL
func (p *Provider) encodeImage(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", types.NewError(types.ErrInvalidInput, "image not readable").WithCause(err)
	}
	if info.Size() > p.cfg.MaxImageBytes {
		return "", types.NewError(types.ErrInvalidInput,
			fmt.Sprintf("image %d bytes exceeds limit %d", info.Size(), p.cfg.MaxImageBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", types.NewError(types.ErrInvalidInput, "image not readable").WithCause(err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Chunk SSE 解析出的增量文本或错误
type Chunk struct {
	Text         string
	FinishReason string
	Err          error
}

// StreamSSE 解析 OpenAI 兼容的 SSE 流，读到 [DONE] 或 EOF 时关闭通道。
// 调用方需确保响应状态成功。
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer body.Close()
		defer close(ch)

		send := func(c Chunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- c:
				return true
			}
		}

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
				if err != io.EOF {
					send(Chunk{Err: providers.TransportError(err, providerName)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var resp providers.ChatResponse
			if jerr := json.Unmarshal([]byte(data), &resp); jerr != nil {
				send(Chunk{Err: types.NewError(types.ErrLLM, "malformed stream chunk").
					WithCause(jerr).WithProvider(providerName)})
				return
			}
			for _, choice := range resp.Choices {
				c := Chunk{FinishReason: choice.FinishReason}
				if choice.Delta != nil {
					c.Text = choice.Delta.Content
				}
				if !send(c) {
					return
				}
			}
			if err == io.EOF {
				return
			}
		}
	}()
	return ch
}
