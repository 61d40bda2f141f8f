// =============================================================================
// 📦 craftmeet 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AI:        DefaultAIConfig(),
		Memory:    DefaultMemoryConfig(),
		Redis:     DefaultRedisConfig(),
		Meeting:   DefaultMeetingConfig(),
		Cleaner:   CleanerConfig{},
		Backup:    DefaultBackupConfig(),
		Trace:     DefaultTraceConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultAIConfig 返回默认 LLM 配置
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Provider:          "deepseek",
		Model:             "deepseek-chat",
		ImageModel:        "dall-e-3",
		ImageOutputDir:    "output/images",
		Temperature:       0.7,
		Timeout:           120 * time.Second,
		MaxRetries:        3,
		RequestsPerMinute: 60,
		TokensPerMinute:   0,
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		StorageType: "auto",
		MaxTokens:   4000,
		TTLSeconds:  7 * 24 * 3600,
		MaxMemories: 100,
		FileDir:     "data/memories",
		CacheSize:   50,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:      "localhost",
		Port:      6379,
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "craftmeet:",
	}
}

// DefaultMeetingConfig 返回默认会议配置
func DefaultMeetingConfig() MeetingConfig {
	return MeetingConfig{
		Topic:             "剪纸文创产品设计",
		MaxTurns:          3,
		VotingThreshold:   0.5,
		MaxKeywords:       10,
		ContextWindow:     10,
		CraftsmanCount:    1,
		ConsumerCount:     3,
		ManufacturerCount: 1,
		DesignerCount:     1,
	}
}

// DefaultBackupConfig 返回默认备份配置
func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		Enabled: false,
		Driver:  "sqlite",
		DSN:     "data/backup.db",
	}
}

// DefaultTraceConfig 返回默认实况推送配置
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Enabled:         false,
		Addr:            "127.0.0.1:8090",
		ShutdownTimeout: 10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "console",
		OutputPaths:  []string{"stderr"},
		EnableCaller: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "craftmeet",
		SampleRate:   0.1,
	}
}
