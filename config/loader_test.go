// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/craftmeet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "deepseek", cfg.AI.Provider)
	assert.Equal(t, "auto", cfg.Memory.StorageType)
	assert.Equal(t, 7*24*time.Hour, cfg.Memory.TTL())
	assert.Equal(t, 50, cfg.Memory.CacheSize)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 0.5, cfg.Meeting.VotingThreshold)
	assert.Equal(t, 3, cfg.Meeting.ConsumerCount)
	assert.False(t, cfg.EnableRedis)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Trace.Enabled)
	assert.Equal(t, "127.0.0.1:8090", cfg.Trace.Addr, "trace server listens on loopback unless configured")
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "剪纸文创产品设计", cfg.Meeting.Topic)
	assert.Equal(t, "127.0.0.1:8090", cfg.Trace.Addr)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "craftmeet.yaml")
	content := `
ai:
  provider: qwen
  model: qwen-plus
memory:
  storage_type: remote
  max_memories: 20
enable_redis: true
meeting:
  max_turns: 2
  designer_count: 2
redis:
  host: redis.internal
  port: 6380
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "qwen", cfg.AI.Provider)
	assert.Equal(t, "qwen-plus", cfg.AI.Model)
	assert.Equal(t, "remote", cfg.Memory.StorageType)
	assert.Equal(t, 20, cfg.Memory.MaxMemories)
	assert.True(t, cfg.EnableRedis)
	assert.Equal(t, 2, cfg.Meeting.MaxTurns)
	assert.Equal(t, 2, cfg.Meeting.DesignerCount)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	// 未覆盖的字段保持默认值
	assert.Equal(t, 0.5, cfg.Meeting.VotingThreshold)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Meeting, cfg.Meeting)
}

func TestLoader_EnvNames(t *testing.T) {
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("AI_MODEL", "gpt-4o")
	t.Setenv("MEMORY_STORAGE_TYPE", "file")
	t.Setenv("MEMORY_MAX_TOKENS", "2048")
	t.Setenv("MEMORY_TTL", "3600")
	t.Setenv("VOTING_THRESHOLD", "0.66")
	t.Setenv("MAX_TURNS", "1")
	t.Setenv("MAX_KEYWORDS", "5")
	t.Setenv("CRAFTSMAN_COUNT", "2")
	t.Setenv("CONSUMER_COUNT", "0")
	t.Setenv("REDIS_HOST", "10.0.0.5")
	t.Setenv("REDIS_PORT", "6390")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_USERNAME", "meet")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("ENABLE_REDIS", "true")
	t.Setenv("CLEAN_ON_START", "true")
	t.Setenv("LOG_OUTPUT_PATHS", "stdout, /tmp/craftmeet.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, "file", cfg.Memory.StorageType)
	assert.Equal(t, 2048, cfg.Memory.MaxTokens)
	assert.Equal(t, time.Hour, cfg.Memory.TTL())
	assert.Equal(t, 0.66, cfg.Meeting.VotingThreshold)
	assert.Equal(t, 1, cfg.Meeting.MaxTurns)
	assert.Equal(t, 5, cfg.Meeting.MaxKeywords)
	assert.Equal(t, 2, cfg.Meeting.RoleCounts()[types.RoleCraftsman])
	assert.Equal(t, 0, cfg.Meeting.ConsumerCount)
	assert.Equal(t, "10.0.0.5:6390", cfg.Redis.Addr())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "meet", cfg.Redis.Username)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.True(t, cfg.EnableRedis)
	assert.True(t, cfg.Cleaner.OnStart)
	assert.Equal(t, []string{"stdout", "/tmp/craftmeet.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvPrefix(t *testing.T) {
	t.Setenv("CM_MAX_TURNS", "7")
	t.Setenv("CM_AI_MODEL", "glm-4")

	cfg, err := NewLoader().WithEnvPrefix("CM").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Meeting.MaxTurns)
	assert.Equal(t, "glm-4", cfg.AI.Model)
}

func TestLoader_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CRAFTMEET_TEST_ONLY=1\nMAX_KEYWORDS=8\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("CRAFTMEET_TEST_ONLY")
		os.Unsetenv("MAX_KEYWORDS")
	})

	cfg, err := NewLoader().WithEnvFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Meeting.MaxKeywords)
}

func TestLoader_EnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAX_TURNS=9\n"), 0o644))
	t.Setenv("MAX_TURNS", "4")

	cfg, err := NewLoader().WithEnvFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Meeting.MaxTurns)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("MAX_TURNS", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_TURNS")
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))
	assert.Contains(t, err.Error(), "AI_API_KEY")
}

// --- Validate 测试 ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "keyless provider", mutate: func(c *Config) { c.AI.Provider = "ollama"; c.AI.APIKey = "" }},
		{name: "missing key", mutate: func(c *Config) { c.AI.APIKey = "" }, wantErr: "AI_API_KEY"},
		{name: "bad storage", mutate: func(c *Config) { c.Memory.StorageType = "s3" }, wantErr: "MEMORY_STORAGE_TYPE"},
		{name: "remote without redis", mutate: func(c *Config) { c.Memory.StorageType = "remote" }, wantErr: "ENABLE_REDIS"},
		{name: "threshold", mutate: func(c *Config) { c.Meeting.VotingThreshold = 1.5 }, wantErr: "VOTING_THRESHOLD"},
		{name: "turns", mutate: func(c *Config) { c.Meeting.MaxTurns = 0 }, wantErr: "MAX_TURNS"},
		{name: "no participants", mutate: func(c *Config) {
			c.Meeting.CraftsmanCount, c.Meeting.ConsumerCount = 0, 0
			c.Meeting.ManufacturerCount, c.Meeting.DesignerCount = 0, 0
		}, wantErr: "at least one participant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AI.APIKey = "sk-test"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStoragePolicy(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "file", cfg.StoragePolicy())
	cfg.EnableRedis = true
	assert.Equal(t, "auto", cfg.StoragePolicy())
	cfg.Memory.StorageType = "file"
	assert.Equal(t, "file", cfg.StoragePolicy())
}
