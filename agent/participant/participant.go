package participant

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/BaSui01/craftmeet/agent/memory"
	"github.com/BaSui01/craftmeet/agent/prompts"
	"github.com/BaSui01/craftmeet/agent/structured"
	"github.com/BaSui01/craftmeet/agent/timeline"
	"github.com/BaSui01/craftmeet/llm"
	"github.com/BaSui01/craftmeet/llm/tokenizer"
	"github.com/BaSui01/craftmeet/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// IntroductionMaxRunes 自我介绍的最大字数（去除首尾空白后）
	IntroductionMaxRunes = 300

	// HeadingContext 外部上下文标题
	HeadingContext = "讨论上下文"
	// HeadingGlobal 时间线上下文标题
	HeadingGlobal = "其他参会者的发言"
	// HeadingMemories 个人记忆标题
	HeadingMemories = "个人相关记忆"

	// UnsupportedStory 模型不支持视觉时的固定故事
	UnsupportedStory = "当前使用的模型不支持图片理解，暂时无法根据图片讲述故事。"
)

var tracer = otel.Tracer("github.com/BaSui01/craftmeet/agent/participant")

// Profile 参与者人设
type Profile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       types.Role `json:"role"`
	Age        int        `json:"age"`
	Background string     `json:"background"`
}

// Board 参与者可见的会议时间线
type Board interface {
	RecordSpeech(ctx context.Context, req timeline.SpeechRequest) (string, error)
	GetCurrentContext(ctx context.Context, requesterID string, maxContext int) (string, error)
}

// Config 参与者行为参数
type Config struct {
	// MaxKeywords 关键词列表上限
	MaxKeywords int
	// ContextWindow 时间线上下文条数
	ContextWindow int
	// MemoryRecall 讨论时召回的个人记忆条数
	MemoryRecall int
	// PromptTokenBudget 组装后提示词的 token 预算，0 表示不限
	PromptTokenBudget int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxKeywords:   structured.MaxKeywords,
		ContextWindow: 10,
		MemoryRecall:  5,
	}
}

// Deps 参与者依赖
type Deps struct {
	Provider llm.Provider
	Catalog  prompts.Catalog
	Memory   *memory.Store
	Board    Board
	// Counter 为空时按估算器计数
	Counter *tokenizer.Counter
	Logger  *zap.Logger
}

// Participant 会议参与者
type Participant struct {
	profile Profile
	config  Config

	provider llm.Provider
	catalog  prompts.Catalog
	memory   *memory.Store
	board    Board
	counter  *tokenizer.Counter
	logger   *zap.Logger

	mu          sync.RWMutex
	currentRole types.Role
}

// New 创建参与者
func New(profile Profile, deps Deps, config Config) (*Participant, error) {
	if profile.ID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "participant id is required")
	}
	if !profile.Role.Valid() {
		return nil, types.NewError(types.ErrInvalidInput, "invalid role "+string(profile.Role))
	}
	if deps.Provider == nil || deps.Catalog == nil || deps.Memory == nil || deps.Board == nil {
		return nil, types.NewError(types.ErrInvalidInput, "provider, catalog, memory and board are required")
	}
	if deps.Memory.ParticipantID() != profile.ID {
		return nil, types.NewError(types.ErrInvalidInput, "memory store belongs to "+deps.Memory.ParticipantID())
	}
	if profile.Name == "" {
		profile.Name = profile.ID
	}
	if config.MaxKeywords < structured.MinKeywords {
		config.MaxKeywords = structured.MaxKeywords
	}
	if config.ContextWindow <= 0 {
		config.ContextWindow = DefaultConfig().ContextWindow
	}
	if config.MemoryRecall < 0 {
		config.MemoryRecall = 0
	}
	if deps.Counter == nil {
		deps.Counter = tokenizer.ForModel("", nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Participant{
		profile:     profile,
		config:      config,
		provider:    deps.Provider,
		catalog:     deps.Catalog,
		memory:      deps.Memory,
		board:       deps.Board,
		counter:     deps.Counter,
		logger:      deps.Logger.With(zap.String("component", "participant"), zap.String("participant_id", profile.ID)),
		currentRole: profile.Role,
	}, nil
}

// ID 返回参与者 ID
func (p *Participant) ID() string { return p.profile.ID }

// Name 返回显示名
func (p *Participant) Name() string { return p.profile.Name }

// Profile 返回人设
func (p *Participant) Profile() Profile { return p.profile }

// OriginalRole 返回原始角色，换位思考不会改变它
func (p *Participant) OriginalRole() types.Role { return p.profile.Role }

// CurrentRole 返回当前角色
func (p *Participant) CurrentRole() types.Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentRole
}

// Memory 返回个人记忆
func (p *Participant) Memory() *memory.Store { return p.memory }

// SupportsVision 报告底层模型是否能看图
func (p *Participant) SupportsVision() bool { return p.provider.SupportsVision() }

// =============================================================================
// 🗣️ 自我介绍与讨论
// =============================================================================

// Introduce 以当前角色做不超过 300 字的自我介绍
func (p *Participant) Introduce(ctx context.Context, topic string, onChunk llm.ChunkHandler) (string, error) {
	ctx, span := p.startSpan(ctx, "introduce")
	defer span.End()

	role := p.CurrentRole()
	prompt, err := p.catalog.Render(prompts.TaskIntroduction, role, p.vars(role, map[string]string{"topic": topic}))
	if err != nil {
		return "", p.fail(span, err)
	}
	text, err := p.provider.GenerateStream(ctx, prompt, p.systemPrompt(role), onChunk)
	if err != nil {
		return "", p.fail(span, types.WrapLLMError("introduce", err))
	}
	text = truncateRunes(strings.TrimSpace(text), IntroductionMaxRunes)

	err = p.persist(ctx, types.MemoryIntroduction, role, text,
		map[string]any{"content": text, "topic": topic}, nil)
	if err != nil {
		return "", p.fail(span, err)
	}
	return text, nil
}

// DiscussInput 一次讨论发言的输入
type DiscussInput struct {
	Topic string
	// Context 外部提供的上下文，例如上一轮发言
	Context string
	// SkipGlobalContext 不读取时间线上下文
	SkipGlobalContext bool
	// Round 讨论轮次，仅记录用
	Round   int
	OnChunk llm.ChunkHandler
}

// Discuss 发表一轮讨论
func (p *Participant) Discuss(ctx context.Context, in DiscussInput) (string, error) {
	ctx, span := p.startSpan(ctx, "discuss")
	defer span.End()

	role := p.CurrentRole()
	base, err := p.catalog.Render(prompts.TaskDiscussion, role, p.vars(role, map[string]string{"topic": in.Topic}))
	if err != nil {
		return "", p.fail(span, err)
	}
	prompt, err := p.composeDiscussion(ctx, base, in)
	if err != nil {
		return "", p.fail(span, err)
	}

	text, err := p.provider.GenerateStream(ctx, prompt, p.systemPrompt(role), in.OnChunk)
	if err != nil {
		return "", p.fail(span, types.WrapLLMError("discuss", err))
	}
	text = strings.TrimSpace(text)

	content := map[string]any{"content": text, "topic": in.Topic, "round": in.Round}
	if err := p.persist(ctx, types.MemoryDiscussion, role, text, content, map[string]any{"round": in.Round}); err != nil {
		return "", p.fail(span, err)
	}
	return text, nil
}

// DiscussAfterSwitch 以换位后的角色围绕场景发言
func (p *Participant) DiscussAfterSwitch(ctx context.Context, topic string, keywords []string, scenario string, onChunk llm.ChunkHandler) (string, error) {
	ctx, span := p.startSpan(ctx, "discuss_after_switch")
	defer span.End()

	role := p.CurrentRole()
	prompt, err := p.catalog.Render(prompts.TaskDiscussionAfterSwitch, role, p.vars(role, map[string]string{
		"topic":    topic,
		"keywords": strings.Join(keywords, "、"),
		"scenario": scenario,
	}))
	if err != nil {
		return "", p.fail(span, err)
	}
	text, err := p.provider.GenerateStream(ctx, prompt, p.systemPrompt(role), onChunk)
	if err != nil {
		return "", p.fail(span, types.WrapLLMError("discuss_after_switch", err))
	}
	text = strings.TrimSpace(text)

	content := map[string]any{
		"content":       text,
		"topic":         topic,
		"scenario":      scenario,
		"original_role": string(p.OriginalRole()),
	}
	if err := p.persist(ctx, types.MemoryDiscussion, role, text, content, map[string]any{"after_switch": true}); err != nil {
		return "", p.fail(span, err)
	}
	return text, nil
}

// composeDiscussion 按固定顺序拼接讨论提示词
func (p *Participant) composeDiscussion(ctx context.Context, base string, in DiscussInput) (string, error) {
	var b strings.Builder
	b.WriteString(base)

	if c := strings.TrimSpace(in.Context); c != "" {
		writeSection(&b, HeadingContext, c)
	}

	if !in.SkipGlobalContext {
		global, err := p.board.GetCurrentContext(ctx, p.ID(), p.config.ContextWindow)
		if err != nil {
			return "", err
		}
		if g := strings.TrimSpace(global); g != "" && g != timeline.NoContext {
			writeSection(&b, HeadingGlobal, g)
		}
	}

	if p.config.MemoryRecall > 0 {
		memories, err := p.memory.GetRelevantMemories(ctx, in.Topic, p.config.MemoryRecall)
		if err != nil {
			return "", err
		}
		if budget := p.config.PromptTokenBudget; budget > 0 {
			remaining := budget - p.counter.Count(b.String())
			if remaining <= 0 {
				memories = nil
			} else {
				memories = p.counter.FitLines(memories, remaining)
			}
		}
		if len(memories) > 0 {
			writeSection(&b, HeadingMemories, "- "+strings.Join(memories, "\n- "))
		}
	}
	return b.String(), nil
}

func writeSection(b *strings.Builder, heading, body string) {
	b.WriteString("\n\n")
	b.WriteString(heading)
	b.WriteString("：\n")
	b.WriteString(body)
}

// =============================================================================
// 🔑 关键词与投票
// =============================================================================

// ExtractKeywords 从 content 中提炼 5 到 MaxKeywords 个关键词。
// 解析顺序：JSON 数组 → 首个 [...] 片段 → 按行拆分；
// 不足 5 个时再用严格提示词请求一次，仍不足则从角色词库补齐。
func (p *Participant) ExtractKeywords(ctx context.Context, content, topic string) ([]string, error) {
	ctx, span := p.startSpan(ctx, "extract_keywords")
	defer span.End()

	role := p.CurrentRole()
	vars := p.vars(role, map[string]string{
		"topic":        topic,
		"content":      content,
		"max_keywords": strconv.Itoa(p.config.MaxKeywords),
	})

	keywords, strategy, err := p.askKeywords(ctx, prompts.TaskKeywords, role, vars)
	if err != nil {
		return nil, p.fail(span, err)
	}
	source := string(strategy)

	if len(keywords) < structured.MinKeywords {
		p.logger.Debug("关键词不足，使用严格提示词重试",
			zap.Int("count", len(keywords)), zap.String("strategy", source))
		strict, strictStrategy, err := p.askKeywords(ctx, prompts.TaskKeywordsStrict, role, vars)
		if err != nil {
			return nil, p.fail(span, err)
		}
		keywords = structured.Dedupe(append(keywords, strict...))
		source += "+strict:" + string(strictStrategy)
	}

	if len(keywords) < structured.MinKeywords {
		keywords = structured.FillFromPool(keywords, p.catalog.KeywordPool(role), structured.MinKeywords, p.config.MaxKeywords)
		source += "+pool"
	}
	if len(keywords) > p.config.MaxKeywords {
		keywords = keywords[:p.config.MaxKeywords]
	}
	span.SetAttributes(attribute.Int("keywords.count", len(keywords)), attribute.String("keywords.source", source))

	err = p.persist(ctx, types.MemoryKeywords, role, strings.Join(keywords, "、"),
		map[string]any{"keywords": keywords, "topic": topic, "source": source}, nil)
	if err != nil {
		return nil, p.fail(span, err)
	}
	return keywords, nil
}

func (p *Participant) askKeywords(ctx context.Context, task prompts.Task, role types.Role, vars map[string]string) ([]string, structured.Strategy, error) {
	prompt, err := p.catalog.Render(task, role, vars)
	if err != nil {
		return nil, structured.StrategyNone, err
	}
	raw, err := p.provider.Generate(ctx, prompt, p.systemPrompt(role))
	if err != nil {
		return nil, structured.StrategyNone, types.WrapLLMError("extract_keywords", err)
	}
	list, strategy := structured.ParseKeywordList(raw)
	return structured.Dedupe(list), strategy, nil
}

// Vote 请模型从候选中选出支持的关键词；结果为空时退回本地抽样
func (p *Participant) Vote(ctx context.Context, topic string, candidates []string, rng *rand.Rand) ([]string, error) {
	ctx, span := p.startSpan(ctx, "vote")
	defer span.End()

	role := p.CurrentRole()
	prompt, err := p.catalog.Render(prompts.TaskVote, role, p.vars(role, map[string]string{
		"topic":        topic,
		"candidates":   strings.Join(candidates, "、"),
		"max_keywords": strconv.Itoa(p.config.MaxKeywords),
	}))
	if err != nil {
		return nil, p.fail(span, err)
	}
	raw, err := p.provider.Generate(ctx, prompt, p.systemPrompt(role))
	if err != nil {
		return nil, p.fail(span, types.WrapLLMError("vote", err))
	}

	parsed, _ := structured.ParseKeywordList(raw)
	ballot := intersect(parsed, candidates, p.config.MaxKeywords)
	source := "llm"
	if len(ballot) == 0 {
		ballot, err = p.sampleBallot(ctx, candidates, rng)
		if err != nil {
			return nil, p.fail(span, err)
		}
		source = "sample"
	}

	if err := p.recordBallot(ctx, topic, candidates, ballot, source); err != nil {
		return nil, p.fail(span, err)
	}
	return ballot, nil
}

// CastLocalBallot 不调用模型，从候选中本地抽样投票：
// 先投自己提出过的候选词，再随机补足
func (p *Participant) CastLocalBallot(ctx context.Context, topic string, candidates []string, rng *rand.Rand) ([]string, error) {
	ctx, span := p.startSpan(ctx, "cast_local_ballot")
	defer span.End()

	ballot, err := p.sampleBallot(ctx, candidates, rng)
	if err != nil {
		return nil, p.fail(span, err)
	}
	if err := p.recordBallot(ctx, topic, candidates, ballot, "sample"); err != nil {
		return nil, p.fail(span, err)
	}
	return ballot, nil
}

// ballotSize 每张选票的关键词数
func (p *Participant) ballotSize(candidates int) int {
	size := max(structured.MinKeywords, p.config.MaxKeywords/2)
	return min(size, candidates)
}

func (p *Participant) sampleBallot(ctx context.Context, candidates []string, rng *rand.Rand) ([]string, error) {
	size := p.ballotSize(len(candidates))
	if size == 0 {
		return nil, nil
	}

	var own []string
	entries, err := p.memory.GetMemoriesByType(ctx, types.MemoryKeywords, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		own = append(own, e.Keywords()...)
	}
	ballot := intersect(own, candidates, size)

	chosen := make(map[string]struct{}, len(ballot))
	for _, kw := range ballot {
		chosen[kw] = struct{}{}
	}
	rest := make([]string, 0, len(candidates))
	for _, kw := range structured.Dedupe(candidates) {
		if _, ok := chosen[kw]; !ok {
			rest = append(rest, kw)
		}
	}
	if rng != nil {
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	}
	for _, kw := range rest {
		if len(ballot) >= size {
			break
		}
		ballot = append(ballot, kw)
	}
	return ballot, nil
}

func (p *Participant) recordBallot(ctx context.Context, topic string, candidates, ballot []string, source string) error {
	content := map[string]any{
		"keywords":   ballot,
		"candidates": candidates,
		"topic":      topic,
		"source":     source,
	}
	return p.persist(ctx, types.MemoryVoting, p.CurrentRole(), strings.Join(ballot, "、"), content, nil)
}

// intersect 按 list 的顺序保留出现在 allowed 中的元素，去重并截断到 limit
func intersect(list, allowed []string, limit int) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	var out []string
	for _, kw := range structured.Dedupe(list) {
		if _, ok := set[kw]; !ok {
			continue
		}
		out = append(out, kw)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// =============================================================================
// 🔄 换位思考
// =============================================================================

// SwitchRole 切换到 newRole 并以新视角重新介绍自己。
// 原始角色与已有记忆保持不变；模型调用失败时角色不变。
func (p *Participant) SwitchRole(ctx context.Context, newRole types.Role, topic string, onChunk llm.ChunkHandler) (string, error) {
	ctx, span := p.startSpan(ctx, "switch_role")
	defer span.End()

	if !newRole.Valid() {
		return "", p.fail(span, types.NewError(types.ErrInvalidInput, "invalid role "+string(newRole)))
	}
	previous := p.CurrentRole()
	span.SetAttributes(attribute.String("role.previous", string(previous)), attribute.String("role.new", string(newRole)))

	prompt, err := p.catalog.Render(prompts.TaskRoleSwitch, newRole, p.vars(newRole, map[string]string{
		"topic":              topic,
		"previous_role_name": previous.DisplayName(),
		"new_role_name":      newRole.DisplayName(),
	}))
	if err != nil {
		return "", p.fail(span, err)
	}
	text, err := p.provider.GenerateStream(ctx, prompt, p.systemPrompt(newRole), onChunk)
	if err != nil {
		return "", p.fail(span, types.WrapLLMError("switch_role", err))
	}
	text = truncateRunes(strings.TrimSpace(text), IntroductionMaxRunes)

	content := map[string]any{
		"previous_role": string(previous),
		"new_role":      string(newRole),
		"content":       text,
		"topic":         topic,
	}
	extras := map[string]any{"previous_role": string(previous)}
	if err := p.persist(ctx, types.MemoryRoleSwitch, newRole, text, content, extras); err != nil {
		return "", p.fail(span, err)
	}
	// role_switch 记录提交之后才切换角色
	p.mu.Lock()
	p.currentRole = newRole
	p.mu.Unlock()
	p.logger.Info("角色已切换", zap.String("from", string(previous)), zap.String("to", string(newRole)))
	return text, nil
}

// =============================================================================
// 🖼️ 图片故事与设计卡片
// =============================================================================

// Story 图片故事
type Story struct {
	Text     string   `json:"story"`
	Keywords []string `json:"keywords"`
}

// TellStoryFromImage 看图讲故事并给出关键词；模型不支持视觉时返回固定文本与空关键词
func (p *Participant) TellStoryFromImage(ctx context.Context, imagePath, topic string) (Story, error) {
	ctx, span := p.startSpan(ctx, "tell_story_from_image")
	defer span.End()

	if !p.provider.SupportsVision() {
		span.SetAttributes(attribute.Bool("vision.supported", false))
		return Story{Text: UnsupportedStory}, nil
	}

	role := p.CurrentRole()
	prompt, err := p.catalog.Render(prompts.TaskImageStory, role, p.vars(role, map[string]string{"topic": topic}))
	if err != nil {
		return Story{}, p.fail(span, err)
	}
	raw, err := p.provider.GenerateWithImage(ctx, prompt, p.systemPrompt(role), imagePath)
	if err != nil {
		return Story{}, p.fail(span, types.WrapLLMError("tell_story_from_image", err))
	}
	story := splitStory(raw)

	content := map[string]any{"story": story.Text, "keywords": story.Keywords, "image_path": imagePath, "topic": topic}
	if err := p.persist(ctx, types.MemoryImageStory, role, story.Text, content, map[string]any{"keywords": story.Keywords}); err != nil {
		return Story{}, p.fail(span, err)
	}
	return story, nil
}

// storyKeywordMarkers 故事与关键词之间的分隔标记
var storyKeywordMarkers = []string{"关键词：", "关键词:", "Keywords:"}

// splitStory 把“故事 + 关键词：a, b”拆开，关键词最多 5 个
func splitStory(raw string) Story {
	text := strings.TrimSpace(raw)
	for _, marker := range storyKeywordMarkers {
		idx := strings.LastIndex(text, marker)
		if idx < 0 {
			continue
		}
		list, _ := structured.ParseKeywordList(strings.TrimSpace(text[idx+len(marker):]))
		list = structured.Dedupe(list)
		if len(list) > 5 {
			list = list[:5]
		}
		return Story{Text: strings.TrimSpace(text[:idx]), Keywords: list}
	}
	return Story{Text: text}
}

// GenerateDesignCard 根据关键词生成设计卡片
func (p *Participant) GenerateDesignCard(ctx context.Context, keywords []string, topic string) (string, error) {
	ctx, span := p.startSpan(ctx, "generate_design_card")
	defer span.End()

	role := p.CurrentRole()
	prompt, err := p.catalog.Render(prompts.TaskDesignCard, role, p.vars(role, map[string]string{
		"topic":    topic,
		"keywords": strings.Join(keywords, "、"),
	}))
	if err != nil {
		return "", p.fail(span, err)
	}
	card, err := p.provider.Generate(ctx, prompt, p.systemPrompt(role))
	if err != nil {
		return "", p.fail(span, types.WrapLLMError("generate_design_card", err))
	}
	card = strings.TrimSpace(card)

	if _, err := p.memory.AddMemory(ctx, types.MemoryDesignCard, map[string]any{
		"card":     card,
		"keywords": keywords,
		"topic":    topic,
	}); err != nil {
		return "", p.fail(span, err)
	}
	return card, nil
}

// =============================================================================
// 内部辅助
// =============================================================================

func (p *Participant) vars(role types.Role, extra map[string]string) map[string]string {
	vars := map[string]string{
		"name":       p.profile.Name,
		"age":        strconv.Itoa(p.profile.Age),
		"background": p.profile.Background,
		"role_name":  role.DisplayName(),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func (p *Participant) systemPrompt(role types.Role) string {
	return p.catalog.SystemPrompt(role, p.vars(role, nil))
}

// persist 先写私有记忆再写时间线；时间线写入失败时删除刚写入的记忆，
// 两层要么都有这条记录，要么都没有
func (p *Participant) persist(ctx context.Context, typ types.MemoryType, role types.Role, text string, content, extras map[string]any) error {
	id, err := p.memory.AddMemory(ctx, typ, content)
	if err != nil {
		return fmt.Errorf("save %s memory: %w", typ, err)
	}
	_, err = p.board.RecordSpeech(ctx, timeline.SpeechRequest{
		ParticipantID: p.ID(),
		DisplayName:   p.Name(),
		Role:          role,
		SpeechType:    typ,
		Content:       text,
		Extras:        extras,
	})
	if err != nil {
		if derr := p.memory.DeleteMemory(context.WithoutCancel(ctx), id); derr != nil {
			p.logger.Warn("failed to roll back memory entry",
				zap.String("id", id), zap.String("type", string(typ)), zap.Error(derr))
		}
		return fmt.Errorf("record %s speech: %w", typ, err)
	}
	return nil
}

func (p *Participant) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "participant."+op, trace.WithAttributes(
		attribute.String("participant.id", p.ID()),
		attribute.String("participant.role", string(p.CurrentRole())),
	))
}

func (p *Participant) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
