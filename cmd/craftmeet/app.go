package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/craftmeet/agent/conversation"
	"github.com/BaSui01/craftmeet/agent/deliberation"
	"github.com/BaSui01/craftmeet/agent/memory"
	"github.com/BaSui01/craftmeet/agent/participant"
	"github.com/BaSui01/craftmeet/agent/persistence"
	"github.com/BaSui01/craftmeet/agent/prompts"
	"github.com/BaSui01/craftmeet/agent/timeline"
	"github.com/BaSui01/craftmeet/config"
	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/internal/server"
	"github.com/BaSui01/craftmeet/internal/tui"
	"github.com/BaSui01/craftmeet/llm"
	"github.com/BaSui01/craftmeet/llm/factory"
	"github.com/BaSui01/craftmeet/llm/image"
	"github.com/BaSui01/craftmeet/llm/tokenizer"
	"github.com/BaSui01/craftmeet/types"
)

// application 组装会议所需的全部依赖，并实现菜单的 Backend
type application struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	provider llm.Provider
	images   image.Generator
	catalog  prompts.Catalog
	counter  *tokenizer.Counter
	store    *persistence.Adapter
	ids      *types.IDGenerator

	hub     *server.TraceHub
	server  *server.Manager
	current atomic.Pointer[conversation.Orchestrator]
}

var _ tui.Backend = (*application)(nil)

func newApplication(cfg *config.Config, logger *zap.Logger) (*application, error) {
	collector := metrics.NewCollector("craftmeet", logger)

	provider, err := factory.NewProvider(cfg.AI, factory.Deps{Logger: logger, Metrics: collector})
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	images, err := factory.NewImageGenerator(cfg.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("create image generator: %w", err)
	}
	catalog, err := prompts.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("load prompt catalog: %w", err)
	}
	store, err := openStore(cfg, logger, collector)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &application{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		provider: provider,
		images:   images,
		catalog:  catalog,
		counter:  tokenizer.ForModel(cfg.AI.Model, logger),
		store:    store,
		ids:      types.NewIDGenerator(nil),
	}, nil
}

func openStore(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*persistence.Adapter, error) {
	policy, err := persistence.ParsePolicy(cfg.StoragePolicy())
	if err != nil {
		return nil, err
	}
	opts := persistence.Options{Policy: policy, FileDir: cfg.Memory.FileDir}
	if cfg.EnableRedis {
		opts.Redis = &persistence.RedisOptions{
			Addr:      cfg.Redis.Addr(),
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TLS:       cfg.Redis.TLS,
		}
	}
	return persistence.Open(opts, logger, collector)
}

// StartTraceServer 在 TRACE_ENABLED 时启动观察服务
func (a *application) StartTraceServer() error {
	if !a.cfg.Trace.Enabled {
		return nil
	}
	a.hub = server.NewTraceHub(server.HubConfig{}, a.logger)
	router := server.NewRouter(server.RouterDeps{
		Hub:      a.hub,
		Session:  a.sessionSnapshot,
		Metrics:  a.metrics,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   a.logger,
	})
	a.server = server.NewManager(router, server.ConfigFromTrace(a.cfg.Trace), a.logger)
	return a.server.Start()
}

func (a *application) sessionSnapshot() any {
	o := a.current.Load()
	if o == nil {
		return nil
	}
	return o.Session()
}

// newMeeting 为一场会议创建时间线、参与者与编排器
func (a *application) newMeeting(sink conversation.TraceSink) (*conversation.Orchestrator, error) {
	id, _ := a.ids.Next()
	sessionID := "meeting_" + id

	tl, err := timeline.New(sessionID, a.store, a.logger,
		timeline.WithTTL(a.cfg.Memory.TTL()),
		timeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}

	pcfg := participant.DefaultConfig()
	pcfg.MaxKeywords = a.cfg.Meeting.MaxKeywords
	pcfg.ContextWindow = a.cfg.Meeting.ContextWindow
	pcfg.PromptTokenBudget = a.cfg.Memory.MaxTokens
	mcfg := memory.Config{
		MaxMemories: a.cfg.Memory.MaxMemories,
		TTL:         a.cfg.Memory.TTL(),
		CacheSize:   a.cfg.Memory.CacheSize,
	}

	roster := participant.DefaultRoster(a.cfg.Meeting.RoleCounts())
	participants := make([]*participant.Participant, 0, len(roster))
	for _, profile := range roster {
		mem, err := memory.New(profile.ID, a.store, mcfg, a.logger, memory.WithMetrics(a.metrics))
		if err != nil {
			return nil, err
		}
		p, err := participant.New(profile, participant.Deps{
			Provider: a.provider,
			Catalog:  a.catalog,
			Memory:   mem,
			Board:    tl,
			Counter:  a.counter,
			Logger:   a.logger,
		}, pcfg)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	engine, err := deliberation.NewEngine(deliberation.VotingConfig{
		Threshold:   a.cfg.Meeting.VotingThreshold,
		MaxKeywords: a.cfg.Meeting.MaxKeywords,
	}, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}

	sinks := conversation.FanOut{sink}
	if a.hub != nil {
		sinks = append(sinks, a.hub)
	}

	o, err := conversation.New(conversation.Config{
		Topic:    a.cfg.Meeting.Topic,
		MaxTurns: a.cfg.Meeting.MaxTurns,
	}, conversation.Deps{
		Participants: participants,
		Timeline:     tl,
		Voting:       engine,
		Catalog:      a.catalog,
		Images:       a.images,
		Sink:         sinks,
		Metrics:      a.metrics,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.current.Store(o)
	return o, nil
}

// RunMeeting 实现 tui.Backend
func (a *application) RunMeeting(ctx context.Context, sink conversation.TraceSink) (*conversation.Session, error) {
	if a.cfg.Cleaner.OnStart {
		_, err := a.clean(ctx, persistence.CleanerConfig{
			IncludeParticipants: a.cfg.Cleaner.Participants,
			Backup:              a.cfg.Backup.Enabled,
		})
		if err != nil {
			return nil, fmt.Errorf("clean before meeting: %w", err)
		}
	}
	o, err := a.newMeeting(sink)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, conversation.RunOptions{})
}

// ProcessImage 实现 tui.Backend
func (a *application) ProcessImage(ctx context.Context, sink conversation.TraceSink, path string) (map[string]participant.Story, error) {
	o, err := a.newMeeting(sink)
	if err != nil {
		return nil, err
	}
	return o.ProcessImage(ctx, path)
}

// DesignProduct 实现 tui.Backend
func (a *application) DesignProduct(ctx context.Context, sink conversation.TraceSink, keywords []string) (*conversation.DesignResult, error) {
	o, err := a.newMeeting(sink)
	if err != nil {
		return nil, err
	}
	return o.DesignProduct(ctx, keywords)
}

// GenerateImage 实现 tui.Backend
func (a *application) GenerateImage(ctx context.Context, prompt string) (*image.Result, error) {
	if a.images == nil {
		return nil, types.NewConfigError("AI_IMAGE_MODEL", "image generation is not configured for provider "+a.cfg.AI.Provider)
	}
	return a.images.Generate(ctx, image.Request{Prompt: prompt})
}

// ExtractKeywords 实现 tui.Backend，由第一位参与者提炼
func (a *application) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	o, err := a.newMeeting(nil)
	if err != nil {
		return nil, err
	}
	return o.Participants()[0].ExtractKeywords(ctx, text, a.cfg.Meeting.Topic)
}

func (a *application) clean(ctx context.Context, cc persistence.CleanerConfig) (*persistence.CleanReport, error) {
	var sink persistence.BackupSink
	if cc.Backup {
		s, err := persistence.OpenBackupSink(a.cfg.Backup.Driver, a.cfg.Backup.DSN)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		sink = s
	}
	return persistence.NewCleaner(a.store, sink, cc, a.logger).Clean(ctx)
}

// Close 关闭观察服务与存储
func (a *application) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Trace.ShutdownTimeout+time.Second)
		defer cancel()
		errs = append(errs, a.server.Shutdown(ctx))
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
