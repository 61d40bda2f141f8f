package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/craftmeet/internal/tlsutil"
	"github.com/BaSui01/craftmeet/llm/providers"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

const providerName = "openai-image"

// OpenAIGenerator 调用 OpenAI 兼容的图像生成接口
type OpenAIGenerator struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator 创建生成器，空字段使用 DefaultConfig 的值
func NewOpenAIGenerator(cfg Config, logger *zap.Logger) *OpenAIGenerator {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Size == "" {
		cfg.Size = def.Size
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGenerator{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "image_generator")),
		now:    time.Now,
	}
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type generationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// Generate 生成图片并保存到 OutputDir
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "image prompt is empty")
	}
	model := req.Model
	if model == "" {
		model = g.cfg.Model
	}
	body := generationRequest{
		Model:          model,
		Prompt:         req.Prompt,
		N:              max(req.N, 1),
		Size:           req.Size,
		ResponseFormat: "b64_json",
	}
	if body.Size == "" {
		body.Size = g.cfg.Size
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrSerialization, "marshal image request").WithCause(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.BearerHeaders(httpReq, g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, providerName)
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), providerName)
	}

	var out generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrLLM, "decode image response").WithCause(err).WithProvider(providerName)
	}
	if len(out.Data) == 0 {
		return nil, types.NewError(types.ErrLLM, "no image returned").WithProvider(providerName)
	}

	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	result := &Result{Model: model, CreatedAt: g.now()}
	if out.Created != 0 {
		result.CreatedAt = time.Unix(out.Created, 0)
	}
	stamp := g.now().Format("20060102_150405")
	for i, d := range out.Data {
		data, err := g.imageBytes(ctx, d.B64JSON, d.URL)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(g.cfg.OutputDir, fmt.Sprintf("design_%s_%d.png", stamp, i+1))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("save image: %w", err)
		}
		result.Paths = append(result.Paths, path)
		if result.RevisedPrompt == "" {
			result.RevisedPrompt = d.RevisedPrompt
		}
	}

	g.logger.Info("设计图已生成", zap.String("model", model), zap.Strings("paths", result.Paths))
	return result, nil
}

// imageBytes 优先解码 base64，否则下载 URL
func (g *OpenAIGenerator) imageBytes(ctx context.Context, b64, url string) ([]byte, error) {
	if b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, types.NewError(types.ErrLLM, "invalid base64 image").WithCause(err).WithProvider(providerName)
		}
		return data, nil
	}
	if url == "" {
		return nil, types.NewError(types.ErrLLM, "image has neither data nor url").WithProvider(providerName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, providers.TransportError(err, providerName)
	}
	defer providers.SafeCloseBody(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, "download image", providerName)
	}
	return io.ReadAll(resp.Body)
}
