package conversation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/agent/deliberation"
	"github.com/BaSui01/craftmeet/agent/participant"
	"github.com/BaSui01/craftmeet/agent/prompts"
	"github.com/BaSui01/craftmeet/agent/structured"
	"github.com/BaSui01/craftmeet/agent/timeline"
	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/llm"
	"github.com/BaSui01/craftmeet/llm/image"
	"github.com/BaSui01/craftmeet/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultScenario 换位讨论使用的场景
const DefaultScenario = "春节前，一位年轻人想给远方的父母挑一件既有传统味道、又能在日常生活里用得上的礼物。"

var tracer = otel.Tracer("github.com/BaSui01/craftmeet/agent/conversation")

// Config 会议参数
type Config struct {
	Topic string
	// MaxTurns 讨论轮数
	MaxTurns int
	// Scenario 换位讨论的场景
	Scenario string
	// LLMVoting 为 true 时由模型投票，否则各参与者在候选词中本地抽样
	LLMVoting bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Topic:    "剪纸文创产品设计",
		MaxTurns: 3,
		Scenario: DefaultScenario,
	}
}

// Deps 编排器依赖
type Deps struct {
	Participants []*participant.Participant
	Timeline     *timeline.Timeline
	Voting       *deliberation.Engine
	Catalog      prompts.Catalog
	// Images 为空时跳过图像生成阶段
	Images  image.Generator
	Sink    TraceSink
	Metrics *metrics.Collector
	Logger  *zap.Logger
	// Rand 为空时使用按时间播种的随机源
	Rand  *rand.Rand
	Clock func() time.Time
}

// RunOptions 单次会议的输入
type RunOptions struct {
	// ImagePath 非空时先进行图片参考阶段
	ImagePath string
	// Input 为空时全部沿用默认值
	Input HumanInput
}

// Orchestrator 会议编排器，一个实例只驱动一场会议
type Orchestrator struct {
	config       Config
	participants []*participant.Participant
	timeline     *timeline.Timeline
	voting       *deliberation.Engine
	catalog      prompts.Catalog
	images       image.Generator
	sink         TraceSink
	metrics      *metrics.Collector
	logger       *zap.Logger
	rng          *rand.Rand
	now          func() time.Time

	mu      sync.RWMutex
	session *Session

	// 阶段之间传递的中间结果
	discussionText  string
	afterSwitchText map[string]string
}

// New 创建编排器
func New(config Config, deps Deps) (*Orchestrator, error) {
	if len(deps.Participants) == 0 {
		return nil, types.NewError(types.ErrInvalidInput, "at least one participant is required")
	}
	if deps.Timeline == nil || deps.Voting == nil || deps.Catalog == nil {
		return nil, types.NewError(types.ErrInvalidInput, "timeline, voting engine and catalog are required")
	}
	seen := make(map[string]struct{}, len(deps.Participants))
	for _, p := range deps.Participants {
		if p == nil {
			return nil, types.NewError(types.ErrInvalidInput, "nil participant")
		}
		if _, dup := seen[p.ID()]; dup {
			return nil, types.NewError(types.ErrInvalidInput, "duplicate participant id "+p.ID())
		}
		seen[p.ID()] = struct{}{}
	}

	defaults := DefaultConfig()
	if strings.TrimSpace(config.Topic) == "" {
		config.Topic = defaults.Topic
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = defaults.MaxTurns
	}
	if config.Scenario == "" {
		config.Scenario = defaults.Scenario
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = SinkFunc(func(TraceEvent) {})
	}
	if deps.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		deps.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	o := &Orchestrator{
		config:          config,
		participants:    deps.Participants,
		timeline:        deps.Timeline,
		voting:          deps.Voting,
		catalog:         deps.Catalog,
		images:          deps.Images,
		sink:            deps.Sink,
		metrics:         deps.Metrics,
		logger:          deps.Logger.With(zap.String("component", "orchestrator"), zap.String("session_id", deps.Timeline.SessionID())),
		rng:             deps.Rand,
		now:             deps.Clock,
		afterSwitchText: make(map[string]string),
	}
	o.session = &Session{
		ID:              deps.Timeline.SessionID(),
		Topic:           config.Topic,
		Stage:           deps.Timeline.CurrentStage(),
		ImageStories:    make(map[string]participant.Story),
		Extracted:       make(map[string][]string),
		RoleAssignments: make(map[string]types.Role),
	}
	o.refreshParticipants()
	return o, nil
}

// Session 返回当前状态的快照
func (o *Orchestrator) Session() *Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session.clone()
}

// Participants 返回参与者列表
func (o *Orchestrator) Participants() []*participant.Participant {
	return append([]*participant.Participant(nil), o.participants...)
}

// =============================================================================
// 🎬 会议主流程
// =============================================================================

type stageStep struct {
	stage types.Stage
	run   func(ctx context.Context) error
}

// Run 从 init 开始跑完整场会议。任何阶段出错都会立即返回，阶段停留在出错处。
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Session, error) {
	if current := o.timeline.CurrentStage(); current != types.StageInit {
		return o.Session(), types.NewStageViolation(current, types.StageInit)
	}

	ctx, span := tracer.Start(ctx, "conversation.run", trace.WithAttributes(
		attribute.String("session.id", o.session.ID),
		attribute.String("session.topic", o.config.Topic),
		attribute.Int("session.participants", len(o.participants)),
	))
	defer span.End()

	o.update(func(s *Session) { s.StartedAt = o.now() })
	o.logger.Info("meeting started",
		zap.String("topic", o.config.Topic),
		zap.Int("participants", len(o.participants)),
		zap.Int("max_turns", o.config.MaxTurns),
	)

	steps := []stageStep{{types.StageInit, o.stageInit}}
	if opts.ImagePath != "" {
		steps = append(steps, stageStep{types.StageImageReference, func(ctx context.Context) error {
			return o.stageImageReference(ctx, opts.ImagePath)
		}})
	}
	steps = append(steps,
		stageStep{types.StageIntroduction, o.stageIntroduction},
		stageStep{types.StageDiscussion, o.stageDiscussion},
		stageStep{types.StageKeywords, o.stageKeywords},
		stageStep{types.StageVoting, o.stageVoting},
		stageStep{types.StageWaitingFinalKeywords, func(ctx context.Context) error {
			return o.stageFinalKeywords(ctx, opts.Input)
		}},
		stageStep{types.StageRoleSwitch, o.stageRoleSwitch},
		stageStep{types.StageDiscussionAfterSwitch, o.stageDiscussionAfterSwitch},
		stageStep{types.StageKeywordsAfterSwitch, o.stageKeywordsAfterSwitch},
		stageStep{types.StageWaitingForUserInput, func(ctx context.Context) error {
			return o.stageDesignPrompt(ctx, opts.Input)
		}},
		stageStep{types.StageImageGeneration, o.stageImageGeneration},
		stageStep{types.StageEnd, o.stageEnd},
	)

	for _, step := range steps {
		if err := o.runStage(ctx, step.stage, step.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return o.Session(), err
		}
	}
	o.logger.Info("meeting finished", zap.Strings("final_keywords", o.Session().FinalKeywords))
	return o.Session(), nil
}

// ProcessImage 只执行 init 与图片参考阶段，返回每位参与者的故事
func (o *Orchestrator) ProcessImage(ctx context.Context, imagePath string) (map[string]participant.Story, error) {
	if imagePath == "" {
		return nil, types.NewError(types.ErrInvalidInput, "image path is required")
	}
	if current := o.timeline.CurrentStage(); current != types.StageInit {
		return nil, types.NewStageViolation(current, types.StageImageReference)
	}
	if err := o.runStage(ctx, types.StageInit, o.stageInit); err != nil {
		return nil, err
	}
	err := o.runStage(ctx, types.StageImageReference, func(ctx context.Context) error {
		return o.stageImageReference(ctx, imagePath)
	})
	if err != nil {
		return nil, err
	}
	return o.Session().ImageStories, nil
}

// DesignResult 设计师产出
type DesignResult struct {
	Designer string                                         `json:"designer"`
	Concept  participant.Result[participant.DesignConcept] `json:"concept"`
	Card     string                                         `json:"card"`
}

// DesignProduct 由第一位设计师根据关键词给出设计概念与设计卡片，不改变会议阶段
func (o *Orchestrator) DesignProduct(ctx context.Context, keywords []string) (*DesignResult, error) {
	for _, p := range o.participants {
		designer, ok := p.Designer()
		if !ok {
			continue
		}
		concept, err := designer.CreateDesignConcept(ctx, o.config.Topic, keywords)
		if err != nil {
			return nil, err
		}
		card, err := p.GenerateDesignCard(ctx, keywords, o.config.Topic)
		if err != nil {
			return nil, err
		}
		o.publish(TraceEvent{Type: EventUtterance, ParticipantID: p.ID(), DisplayName: p.Name(),
			Role: p.CurrentRole(), SpeechType: types.MemoryDesignCard, Content: card})
		return &DesignResult{Designer: p.ID(), Concept: concept, Card: card}, nil
	}
	return nil, types.NewError(types.ErrInvalidInput, "no designer in the roster")
}

// runStage 推进到 stage 并执行 fn
func (o *Orchestrator) runStage(ctx context.Context, stage types.Stage, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "conversation.stage."+string(stage))
	defer span.End()

	previous := o.timeline.CurrentStage()
	if err := o.timeline.UpdateStage(ctx, stage); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if previous != stage {
		o.metrics.RecordStageTransition(string(previous), string(stage))
	}
	o.update(func(s *Session) { s.Stage = stage })
	o.publish(TraceEvent{Type: EventStageStarted, Stage: stage, Content: stage.Label()})
	o.logger.Info("stage started", zap.String("stage", string(stage)))

	start := o.now()
	err := fn(ctx)
	elapsed := o.now().Sub(start)
	if err != nil {
		o.metrics.RecordStageDuration(string(stage), "error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.publish(TraceEvent{Type: EventError, Stage: stage, Content: err.Error()})
		o.logger.Error("stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	o.metrics.RecordStageDuration(string(stage), "success", elapsed)
	o.publish(TraceEvent{Type: EventStageCompleted, Stage: stage, Content: stage.Label()})
	o.logger.Info("stage completed", zap.String("stage", string(stage)), zap.Duration("elapsed", elapsed))
	return nil
}

// =============================================================================
// 🧩 各阶段
// =============================================================================

func (o *Orchestrator) stageInit(ctx context.Context) error {
	for _, p := range o.participants {
		if err := o.timeline.AddParticipant(ctx, p.ID(), p.Name(), p.CurrentRole()); err != nil {
			return err
		}
	}
	o.refreshParticipants()
	return nil
}

func (o *Orchestrator) stageImageReference(ctx context.Context, imagePath string) error {
	var collected []string
	for _, p := range o.participants {
		story, err := p.TellStoryFromImage(ctx, imagePath, o.config.Topic)
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryImageStory, story.Text)
		collected = append(collected, story.Keywords...)
		o.update(func(s *Session) { s.ImageStories[p.ID()] = story })
	}
	o.update(func(s *Session) {
		s.ImagePath = imagePath
		s.ImageKeywords = structured.Dedupe(collected)
	})
	return nil
}

func (o *Orchestrator) stageIntroduction(ctx context.Context) error {
	for _, p := range o.participants {
		text, err := p.Introduce(ctx, o.config.Topic, o.streamTo(p))
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryIntroduction, text)
	}
	return nil
}

// stageDiscussion 第一轮读取时间线上下文，之后每轮只读上一轮的发言
func (o *Orchestrator) stageDiscussion(ctx context.Context) error {
	var previous []*timeline.Utterance
	var transcript []string

	for round := 1; round <= o.config.MaxTurns; round++ {
		order := TurnOrder(o.participants, o.rng)
		current := make([]*timeline.Utterance, 0, len(order))

		for _, idx := range order {
			p := o.participants[idx]
			in := participant.DiscussInput{Topic: o.config.Topic, Round: round, OnChunk: o.streamTo(p)}
			if round > 1 {
				in.Context = timeline.FormatUtterances(previous)
				in.SkipGlobalContext = true
			}
			text, err := p.Discuss(ctx, in)
			if err != nil {
				return err
			}
			o.utterance(p, types.MemoryDiscussion, text)
			current = append(current, &timeline.Utterance{
				ParticipantID: p.ID(),
				DisplayName:   p.Name(),
				Role:          p.CurrentRole(),
				SpeechType:    types.MemoryDiscussion,
				Content:       text,
			})
			transcript = append(transcript, p.Name()+": "+text)
		}
		previous = current
	}
	o.discussionText = strings.Join(transcript, "\n")
	return nil
}

func (o *Orchestrator) stageKeywords(ctx context.Context) error {
	for _, p := range o.participants {
		keywords, err := p.ExtractKeywords(ctx, o.discussionText, o.config.Topic)
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryKeywords, strings.Join(keywords, "、"))
		o.update(func(s *Session) { s.Extracted[p.ID()] = keywords })
	}
	return nil
}

func (o *Orchestrator) stageVoting(ctx context.Context) error {
	snapshot := o.Session()
	proposals := make([]deliberation.Ballot, 0, len(o.participants))
	for _, p := range o.participants {
		proposals = append(proposals, deliberation.Ballot{VoterID: p.ID(), Keywords: snapshot.Extracted[p.ID()]})
	}
	candidates := structured.Dedupe(append(deliberation.Union(proposals), snapshot.ImageKeywords...))

	ballots := make([]deliberation.Ballot, 0, len(o.participants))
	for _, p := range o.participants {
		var (
			ballot []string
			err    error
		)
		if o.config.LLMVoting {
			ballot, err = p.Vote(ctx, o.config.Topic, candidates, o.rng)
		} else {
			ballot, err = p.CastLocalBallot(ctx, o.config.Topic, candidates, o.rng)
		}
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryVoting, strings.Join(ballot, "、"))
		ballots = append(ballots, deliberation.Ballot{VoterID: p.ID(), Keywords: ballot})
	}

	outcome := o.voting.Decide(ballots, candidates)
	voted := outcome.Keywords
	if outcome.Truncated {
		o.notice(types.StageVoting, "没有关键词达到票数门槛，使用候选关键词的前若干项")
	}
	o.update(func(s *Session) {
		s.Ballots = ballots
		s.Voting = outcome
		s.VotedKeywords = voted
	})
	o.notice(types.StageVoting, "投票结果："+strings.Join(voted, "、"))
	return nil
}

func (o *Orchestrator) stageFinalKeywords(ctx context.Context, input HumanInput) error {
	final := o.Session().VotedKeywords
	if input != nil {
		provided, err := input.FinalKeywords(ctx, final)
		if err != nil {
			return err
		}
		cleaned := make([]string, 0, len(provided))
		for _, kw := range provided {
			cleaned = append(cleaned, structured.NormalizeKeyword(kw))
		}
		if cleaned = structured.Dedupe(cleaned); len(cleaned) > 0 {
			final = cleaned
		}
	}
	o.update(func(s *Session) { s.FinalKeywords = final })
	o.notice(types.StageWaitingFinalKeywords, "最终关键词："+strings.Join(final, "、"))
	return nil
}

func (o *Orchestrator) stageRoleSwitch(ctx context.Context) error {
	current := make([]types.Role, len(o.participants))
	for i, p := range o.participants {
		current[i] = p.CurrentRole()
	}
	assigned := Derange(current, o.rng)

	for i, p := range o.participants {
		text, err := p.SwitchRole(ctx, assigned[i], o.config.Topic, o.streamTo(p))
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryRoleSwitch, text)
		o.update(func(s *Session) { s.RoleAssignments[p.ID()] = assigned[i] })
		o.refreshParticipants()
	}
	return nil
}

func (o *Orchestrator) stageDiscussionAfterSwitch(ctx context.Context) error {
	final := o.Session().FinalKeywords
	for _, idx := range TurnOrder(o.participants, o.rng) {
		p := o.participants[idx]
		text, err := p.DiscussAfterSwitch(ctx, o.config.Topic, final, o.config.Scenario, o.streamTo(p))
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryDiscussion, text)
		o.afterSwitchText[p.ID()] = text
	}
	return nil
}

func (o *Orchestrator) stageKeywordsAfterSwitch(ctx context.Context) error {
	var seed []string
	for _, p := range o.participants {
		keywords, err := p.ExtractKeywords(ctx, o.afterSwitchText[p.ID()], o.config.Topic)
		if err != nil {
			return err
		}
		o.utterance(p, types.MemoryKeywords, strings.Join(keywords, "、"))
		seed = append(seed, keywords...)
	}
	o.update(func(s *Session) { s.SwitchKeywords = structured.Dedupe(seed) })
	return nil
}

func (o *Orchestrator) stageDesignPrompt(ctx context.Context, input HumanInput) error {
	seed := o.Session().SwitchKeywords
	suggested, err := o.catalog.Render(prompts.TaskDesignPrompt, types.RoleDesigner, map[string]string{
		"topic":    o.config.Topic,
		"keywords": strings.Join(seed, "、"),
	})
	if err != nil {
		return err
	}
	prompt := strings.TrimSpace(suggested)
	if input != nil {
		provided, err := input.DesignPrompt(ctx, seed, prompt)
		if err != nil {
			return err
		}
		if p := strings.TrimSpace(provided); p != "" {
			prompt = p
		}
	}
	o.update(func(s *Session) { s.DesignPrompt = prompt })
	o.notice(types.StageWaitingForUserInput, "设计提示词："+prompt)
	return nil
}

func (o *Orchestrator) stageImageGeneration(ctx context.Context) error {
	if o.images == nil {
		o.notice(types.StageImageGeneration, "未配置图像生成服务，跳过")
		return nil
	}
	res, err := o.images.Generate(ctx, image.Request{Prompt: o.Session().DesignPrompt})
	if err != nil {
		return err
	}
	o.update(func(s *Session) { s.Images = append([]string(nil), res.Paths...) })
	o.notice(types.StageImageGeneration, "图片已保存："+strings.Join(res.Paths, ", "))
	return nil
}

func (o *Orchestrator) stageEnd(context.Context) error {
	o.update(func(s *Session) { s.EndedAt = o.now() })
	return nil
}

// =============================================================================
// 内部辅助
// =============================================================================

func (o *Orchestrator) update(fn func(s *Session)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.session)
}

func (o *Orchestrator) refreshParticipants() {
	views := make([]ParticipantView, 0, len(o.participants))
	for _, p := range o.participants {
		views = append(views, ParticipantView{
			ID:           p.ID(),
			Name:         p.Name(),
			OriginalRole: p.OriginalRole(),
			CurrentRole:  p.CurrentRole(),
		})
	}
	o.update(func(s *Session) { s.Participants = views })
}

func (o *Orchestrator) publish(ev TraceEvent) {
	ev.SessionID = o.session.ID
	if ev.Stage == "" {
		ev.Stage = o.timeline.CurrentStage()
	}
	if ev.Time.IsZero() {
		ev.Time = o.now()
	}
	o.sink.Publish(ev)
}

func (o *Orchestrator) streamTo(p *participant.Participant) llm.ChunkHandler {
	return func(chunk string) {
		o.publish(TraceEvent{
			Type:          EventChunk,
			ParticipantID: p.ID(),
			DisplayName:   p.Name(),
			Role:          p.CurrentRole(),
			Content:       chunk,
		})
	}
}

func (o *Orchestrator) utterance(p *participant.Participant, typ types.MemoryType, content string) {
	stage := o.timeline.CurrentStage()
	o.publish(TraceEvent{
		Type:          EventUtterance,
		Stage:         stage,
		ParticipantID: p.ID(),
		DisplayName:   p.Name(),
		Role:          p.CurrentRole(),
		SpeechType:    typ,
		Content:       content,
	})
}

func (o *Orchestrator) notice(stage types.Stage, msg string) {
	o.publish(TraceEvent{Type: EventNotice, Stage: stage, Content: msg})
}
