package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/craftmeet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerator_SavesBase64Images(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\nimage-bytes")
	var got generationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-img", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1700000000,
			"data": []map[string]any{
				{"b64_json": base64.StdEncoding.EncodeToString(png), "revised_prompt": "竹编灯罩，暖光"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	out := t.TempDir()
	g := NewOpenAIGenerator(Config{APIKey: "sk-img", BaseURL: srv.URL, OutputDir: out, Timeout: 5 * time.Second}, nil)
	g.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := g.Generate(context.Background(), Request{Prompt: "竹编灯罩"})
	require.NoError(t, err)

	assert.Equal(t, "dall-e-3", got.Model)
	assert.Equal(t, "1024x1024", got.Size)
	assert.Equal(t, 1, got.N)
	assert.Equal(t, "b64_json", got.ResponseFormat)

	require.Len(t, res.Paths, 1)
	assert.Equal(t, filepath.Join(out, "design_20260102_030405_1.png"), res.Paths[0])
	data, err := os.ReadFile(res.Paths[0])
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "竹编灯罩，暖光", res.RevisedPrompt)
	assert.Equal(t, int64(1700000000), res.CreatedAt.Unix())
}

func TestOpenAIGenerator_DownloadsURLImages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"url": srv.URL + "/files/a.png"}},
		})
	})
	mux.HandleFunc("/files/a.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("downloaded"))
	})

	g := NewOpenAIGenerator(Config{BaseURL: srv.URL, OutputDir: t.TempDir()}, nil)
	res, err := g.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	data, err := os.ReadFile(res.Paths[0])
	require.NoError(t, err)
	assert.Equal(t, "downloaded", string(data))
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy violation"}}`))
	}))
	t.Cleanup(srv.Close)

	g := NewOpenAIGenerator(Config{BaseURL: srv.URL, OutputDir: t.TempDir()}, nil)

	_, err := g.Generate(context.Background(), Request{Prompt: "  "})
	assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))

	_, err = g.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrLLM, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "content policy violation")
}
