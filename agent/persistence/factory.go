package persistence

import (
	"fmt"

	"github.com/BaSui01/craftmeet/internal/metrics"
	"go.uber.org/zap"
)

// Options 组装适配器所需的全部参数
type Options struct {
	Policy Policy
	// FileDir 本地后端镜像目录，为空时只用内存
	FileDir string
	// Redis 为 nil 表示未启用远程后端
	Redis *RedisOptions
}

// Open 根据策略创建后端并组装 Adapter
func Open(opts Options, logger *zap.Logger, collector *metrics.Collector) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var local Backend
	if opts.Policy != PolicyRemote {
		lb, err := NewLocalBackend(opts.FileDir, logger)
		if err != nil {
			return nil, fmt.Errorf("create local backend: %w", err)
		}
		local = lb
	}

	var remote Backend
	if opts.Policy != PolicyFile && opts.Redis != nil {
		remote = NewRedisBackend(*opts.Redis, logger)
	}

	return NewAdapter(opts.Policy, remote, local,
		WithAdapterLogger(logger),
		WithAdapterMetrics(collector),
	)
}
