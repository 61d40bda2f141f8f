// =============================================================================
// 📦 craftmeet 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("craftmeet.yaml").
//	    WithEnvFile(".env").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → .env → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/craftmeet/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 craftmeet 的完整配置结构
type Config struct {
	// AI 大语言模型配置
	AI AIConfig `yaml:"ai" env:"AI"`

	// Memory 记忆存储配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Redis 远程存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// EnableRedis 是否允许使用远程存储
	EnableRedis bool `yaml:"enable_redis" env:"ENABLE_REDIS"`

	// Meeting 会议参数，环境变量不带前缀
	Meeting MeetingConfig `yaml:"meeting" env:",inline"`

	// Cleaner 会议开始前的清理
	Cleaner CleanerConfig `yaml:"cleaner" env:"CLEAN"`

	// Backup 清理前备份
	Backup BackupConfig `yaml:"backup" env:"BACKUP"`

	// Trace 会议实况推送服务
	Trace TraceConfig `yaml:"trace" env:"TRACE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// AIConfig LLM 配置
type AIConfig struct {
	// Provider 家族: openai, deepseek, qwen, glm, moonshot, doubao, siliconflow, ollama, mock
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，覆盖家族默认值）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 视觉模型，聊天模型不支持图像时用于两阶段识图
	VisionModel string `yaml:"vision_model" env:"VISION_MODEL"`
	// 图像生成模型
	ImageModel string `yaml:"image_model" env:"IMAGE_MODEL"`
	// 生成图片保存目录
	ImageOutputDir string `yaml:"image_output_dir" env:"IMAGE_OUTPUT_DIR"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每分钟请求数上限，0 表示不限
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	// 每分钟 Token 上限，0 表示不限
	TokensPerMinute int `yaml:"tokens_per_minute" env:"TOKENS_PER_MINUTE"`
}

// MemoryConfig 记忆配置
type MemoryConfig struct {
	// 存储策略: auto, file, remote
	StorageType string `yaml:"storage_type" env:"STORAGE_TYPE"`
	// 组装后提示词的 Token 预算
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 条目 TTL（秒）
	TTLSeconds int `yaml:"ttl" env:"TTL"`
	// 每个参与者保留的最大条目数
	MaxMemories int `yaml:"max_memories" env:"MAX_MEMORIES"`
	// 本地后端的 JSON 目录，为空则只保存在内存
	FileDir string `yaml:"file_dir" env:"FILE_DIR"`
	// 条目读缓存容量
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`
}

// TTL 返回条目 TTL
func (m MemoryConfig) TTL() time.Duration {
	return time.Duration(m.TTLSeconds) * time.Second
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 用户名（ACL）
	Username string `yaml:"username" env:"USERNAME"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MeetingConfig 会议配置
type MeetingConfig struct {
	// 会议主题
	Topic string `yaml:"topic" env:"MEETING_TOPIC"`
	// 讨论轮数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 投票阈值 [0,1]
	VotingThreshold float64 `yaml:"voting_threshold" env:"VOTING_THRESHOLD"`
	// 关键词列表上限
	MaxKeywords int `yaml:"max_keywords" env:"MAX_KEYWORDS"`
	// 全局上下文条数
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
	// 各角色人数
	CraftsmanCount    int `yaml:"craftsman_count" env:"CRAFTSMAN_COUNT"`
	ConsumerCount     int `yaml:"consumer_count" env:"CONSUMER_COUNT"`
	ManufacturerCount int `yaml:"manufacturer_count" env:"MANUFACTURER_COUNT"`
	DesignerCount     int `yaml:"designer_count" env:"DESIGNER_COUNT"`
}

// RoleCounts 返回每个角色的人数
func (m MeetingConfig) RoleCounts() map[types.Role]int {
	return map[types.Role]int{
		types.RoleCraftsman:    m.CraftsmanCount,
		types.RoleConsumer:     m.ConsumerCount,
		types.RoleManufacturer: m.ManufacturerCount,
		types.RoleDesigner:     m.DesignerCount,
	}
}

// CleanerConfig 会议开始前的清理配置
type CleanerConfig struct {
	// 启动会议前是否清理会议数据
	OnStart bool `yaml:"on_start" env:"ON_START"`
	// 是否同时清理参与者记忆
	Participants bool `yaml:"participants" env:"PARTICIPANTS"`
}

// BackupConfig 清理前备份配置
type BackupConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 连接串
	DSN string `yaml:"dsn" env:"DSN"`
}

// TraceConfig 实况推送服务配置
type TraceConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envFile    string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器，默认不带环境变量前缀
func NewLoader() *Loader {
	return &Loader{
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvFile 设置 .env 文件路径，文件中的值不会覆盖已存在的环境变量
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段。",inline" 的结构体沿用当前前缀。
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		if field.Kind() == reflect.Struct {
			nested := prefix
			if envTag != ",inline" {
				nested = joinEnvKey(prefix, envTag)
			}
			if err := l.setFieldsFromEnv(field, nested); err != nil {
				return err
			}
			continue
		}

		envKey := joinEnvKey(prefix, envTag)
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func joinEnvKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

// 无需 API Key 的 Provider 家族
var keylessProviders = map[string]bool{
	"ollama": true,
	"mock":   true,
}

// 合法的存储策略
var storagePolicies = map[string]bool{
	"auto":   true,
	"file":   true,
	"remote": true,
}

// Validate 验证配置，失败返回 CONFIG_ERROR
func (c *Config) Validate() error {
	var errs []string

	if c.AI.Provider == "" {
		errs = append(errs, "AI_PROVIDER is required")
	}
	if c.AI.APIKey == "" && !keylessProviders[c.AI.Provider] {
		errs = append(errs, "AI_API_KEY is required for provider "+c.AI.Provider)
	}
	if !storagePolicies[c.Memory.StorageType] {
		errs = append(errs, "MEMORY_STORAGE_TYPE must be auto, file or remote")
	}
	if c.Memory.StorageType == "remote" && !c.EnableRedis {
		errs = append(errs, "MEMORY_STORAGE_TYPE=remote requires ENABLE_REDIS=true")
	}
	if c.Memory.MaxMemories <= 0 {
		errs = append(errs, "MEMORY_MAX_MEMORIES must be positive")
	}
	if c.Meeting.VotingThreshold < 0 || c.Meeting.VotingThreshold > 1 {
		errs = append(errs, "VOTING_THRESHOLD must be between 0 and 1")
	}
	if c.Meeting.MaxTurns <= 0 {
		errs = append(errs, "MAX_TURNS must be positive")
	}
	if c.Meeting.MaxKeywords <= 0 {
		errs = append(errs, "MAX_KEYWORDS must be positive")
	}

	total := 0
	for role, n := range c.Meeting.RoleCounts() {
		if n < 0 {
			errs = append(errs, strings.ToUpper(string(role))+"_COUNT must not be negative")
		}
		total += n
	}
	if total == 0 {
		errs = append(errs, "at least one participant is required")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfig, strings.Join(errs, "; "))
	}

	return nil
}

// StoragePolicy 返回实际生效的存储策略：未启用 Redis 时 auto 退化为 file
func (c *Config) StoragePolicy() string {
	if c.Memory.StorageType == "auto" && !c.EnableRedis {
		return "file"
	}
	return c.Memory.StorageType
}
