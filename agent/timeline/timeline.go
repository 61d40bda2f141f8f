package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/craftmeet/agent/persistence"
	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

const (
	// NoContext 没有可用上下文时的占位文本
	NoContext = "暂无"
	// RoleSwitchMarker 上下文中角色转换发言的标记
	RoleSwitchMarker = "【角色转换】"

	defaultContextSize = 10
)

// Utterance 一条发言
type Utterance struct {
	ID            string           `json:"id"`
	ParticipantID string           `json:"participant_id"`
	DisplayName   string           `json:"display_name"`
	Role          types.Role       `json:"role,omitempty"`
	SpeechType    types.MemoryType `json:"speech_type"`
	Stage         types.Stage      `json:"stage"`
	Content       string           `json:"content"`
	Timestamp     time.Time        `json:"timestamp"`
	Extras        map[string]any   `json:"extras,omitempty"`
}

// SpeechRequest 发布一条发言
type SpeechRequest struct {
	ParticipantID string
	DisplayName   string
	Role          types.Role
	SpeechType    types.MemoryType
	Content       string
	// Stage 为空时使用当前阶段
	Stage  types.Stage
	Extras map[string]any
}

// ParticipantInfo 参与者元数据
type ParticipantInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     types.Role `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
}

// Query 时间线过滤条件
type Query struct {
	// Limit <= 0 表示不限
	Limit         int
	Stage         types.Stage
	ParticipantID string
}

// StageSummary 阶段统计
type StageSummary struct {
	Stage          types.Stage              `json:"stage"`
	UtteranceCount int                      `json:"utterance_count"`
	Participants   []string                 `json:"participants"`
	SpeechTypes    map[types.MemoryType]int `json:"speech_types"`
	FirstAt        time.Time                `json:"first_at,omitempty"`
	LastAt         time.Time                `json:"last_at,omitempty"`
}

// Option 配置 Timeline
type Option func(*Timeline)

// WithTTL 设置每个 key 的过期时间
func WithTTL(ttl time.Duration) Option {
	return func(t *Timeline) { t.ttl = ttl }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Timeline) { t.metrics = c }
}

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

// Timeline 会议全局时间线
type Timeline struct {
	sessionID string
	backend   persistence.Backend
	ttl       time.Duration
	now       func() time.Time
	ids       *types.IDGenerator
	metrics   *metrics.Collector
	logger    *zap.Logger

	mu    sync.Mutex
	stage types.Stage
}

// New 创建会议时间线，初始阶段为 init
func New(sessionID string, backend persistence.Backend, logger *zap.Logger, opts ...Option) (*Timeline, error) {
	if sessionID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "session id is required")
	}
	if backend == nil {
		return nil, types.NewError(types.ErrInvalidInput, "timeline backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Timeline{
		sessionID: sessionID,
		backend:   backend,
		ttl:       7 * 24 * time.Hour,
		now:       time.Now,
		stage:     types.StageInit,
		logger: logger.With(
			zap.String("component", "global_timeline"),
			zap.String("session_id", sessionID),
		),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ids = types.NewIDGenerator(t.now)
	return t, nil
}

// SessionID 返回会议 ID
func (t *Timeline) SessionID() string { return t.sessionID }

func (t *Timeline) scope() string { return persistence.SessionPrefix + t.sessionID + ":" }
func (t *Timeline) timelineKey() string { return t.scope() + "timeline" }
func (t *Timeline) participantsKey() string { return t.scope() + "participants" }
func (t *Timeline) stageKey() string { return t.scope() + "stage" }
func (t *Timeline) speechKey(id string) string { return t.scope() + "speech:" + id }

// =============================================================================
// 👥 参与者
// =============================================================================

// AddParticipant 记录参与者加入时间，重复调用不会覆盖
func (t *Timeline) AddParticipant(ctx context.Context, id, name string, role types.Role) error {
	if id == "" {
		return types.NewError(types.ErrInvalidInput, "participant id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.backend.ReadEntry(ctx, t.participantsKey())
	if err != nil {
		return fmt.Errorf("read participants: %w", err)
	}
	if _, ok := existing[id]; ok {
		return nil
	}

	raw, err := json.Marshal(ParticipantInfo{ID: id, Name: name, Role: role, JoinedAt: t.now()})
	if err != nil {
		return types.NewError(types.ErrSerialization, "encode participant").WithCause(err)
	}
	batch := persistence.NewBatch().PutEntry(t.participantsKey(), map[string]string{id: string(raw)}, t.ttl)
	if err := t.backend.Commit(ctx, batch); err != nil {
		return fmt.Errorf("add participant %s: %w", id, err)
	}
	t.logger.Debug("participant joined", zap.String("participant_id", id), zap.String("role", string(role)))
	return nil
}

// Participants 按加入时间返回参与者
func (t *Timeline) Participants(ctx context.Context) ([]ParticipantInfo, error) {
	fields, err := t.backend.ReadEntry(ctx, t.participantsKey())
	if err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	out := make([]ParticipantInfo, 0, len(fields))
	for id, raw := range fields {
		var info ParticipantInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			t.logger.Warn("skip malformed participant record", zap.String("participant_id", id), zap.Error(err))
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// 🗣️ 发言
// =============================================================================

// RecordSpeech 发布一条发言并返回 ID
func (t *Timeline) RecordSpeech(ctx context.Context, req SpeechRequest) (string, error) {
	if req.ParticipantID == "" {
		return "", types.NewError(types.ErrInvalidInput, "participant id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stage := req.Stage
	if stage == "" {
		stage = t.stage
	}
	if stage != t.stage {
		return "", types.NewStageViolation(t.stage, stage)
	}

	extras := "{}"
	if len(req.Extras) > 0 {
		raw, err := json.Marshal(req.Extras)
		if err != nil {
			t.logger.Warn("speech extras not serializable, storing sentinel", zap.Error(err))
			raw, _ = json.Marshal(map[string]string{"error": "serialization_failed", "detail": err.Error()})
		}
		extras = string(raw)
	}

	id, ts := t.ids.NextWithInfix(req.ParticipantID)
	ms := ts.UnixMilli()
	batch := persistence.NewBatch().
		PutEntry(t.speechKey(id), map[string]string{
			"id":             id,
			"participant_id": req.ParticipantID,
			"display_name":   req.DisplayName,
			"role":           string(req.Role),
			"speech_type":    string(req.SpeechType),
			"stage":          string(stage),
			"content":        req.Content,
			"timestamp":      strconv.FormatInt(ms, 10),
			"extras":         extras,
		}, t.ttl).
		AddToOrdered(t.timelineKey(), id, float64(ms), t.ttl)

	if err := t.backend.Commit(ctx, batch); err != nil {
		return "", fmt.Errorf("record speech: %w", err)
	}
	t.metrics.RecordUtterance(string(stage), string(req.SpeechType))
	return id, nil
}

// GetMeetingTimeline 过滤后按最近优先返回发言
func (t *Timeline) GetMeetingTimeline(ctx context.Context, q Query) ([]*Utterance, error) {
	ids, err := t.backend.ReadOrdered(ctx, t.timelineKey(), persistence.OrderedQuery{Reverse: true})
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}

	out := make([]*Utterance, 0)
	for _, id := range ids {
		u, err := t.loadUtterance(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil || !q.matches(u) {
			continue
		}
		out = append(out, u)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (q Query) matches(u *Utterance) bool {
	if q.Stage != "" && u.Stage != q.Stage {
		return false
	}
	if q.ParticipantID != "" && u.ParticipantID != q.ParticipantID {
		return false
	}
	return true
}

// GetCurrentContext 返回最近 maxContext 条他人发言组成的上下文文本，时间正序
func (t *Timeline) GetCurrentContext(ctx context.Context, requesterID string, maxContext int) (string, error) {
	if maxContext <= 0 {
		maxContext = defaultContextSize
	}
	ids, err := t.backend.ReadOrdered(ctx, t.timelineKey(), persistence.OrderedQuery{Reverse: true})
	if err != nil {
		return "", fmt.Errorf("read timeline: %w", err)
	}

	picked := make([]*Utterance, 0, maxContext)
	for _, id := range ids {
		u, err := t.loadUtterance(ctx, id)
		if err != nil {
			return "", err
		}
		if u == nil || u.ParticipantID == requesterID {
			continue
		}
		picked = append(picked, u)
		if len(picked) >= maxContext {
			break
		}
	}
	if len(picked) == 0 {
		return NoContext, nil
	}

	lines := make([]string, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		lines = append(lines, formatContextLine(picked[i]))
	}
	return strings.Join(lines, "\n"), nil
}

// FormatUtterances 把发言渲染为上下文文本，保持传入顺序
func FormatUtterances(us []*Utterance) string {
	lines := make([]string, 0, len(us))
	for _, u := range us {
		lines = append(lines, formatContextLine(u))
	}
	return strings.Join(lines, "\n")
}

func formatContextLine(u *Utterance) string {
	name := u.DisplayName
	if name == "" {
		name = u.ParticipantID
	}
	switch u.SpeechType {
	case types.MemoryIntroduction:
		return fmt.Sprintf("%s（自我介绍）: %s", name, truncateRunes(u.Content, 100))
	case types.MemoryDiscussion:
		return fmt.Sprintf("%s: %s", name, truncateRunes(u.Content, 150))
	case types.MemoryKeywords:
		return fmt.Sprintf("%s 提出关键词: %s", name, u.Content)
	case types.MemoryVoting:
		return fmt.Sprintf("%s 投票: %s", name, u.Content)
	case types.MemoryRoleSwitch:
		return fmt.Sprintf("%s%s: %s", RoleSwitchMarker, name, truncateRunes(u.Content, 150))
	default:
		return fmt.Sprintf("%s（%s）: %s", name, u.SpeechType, truncateRunes(u.Content, 150))
	}
}

// GetStageSummary 统计某个阶段的发言
func (t *Timeline) GetStageSummary(ctx context.Context, stage types.Stage) (*StageSummary, error) {
	us, err := t.GetMeetingTimeline(ctx, Query{Stage: stage})
	if err != nil {
		return nil, err
	}

	summary := &StageSummary{
		Stage:        stage,
		Participants: []string{},
		SpeechTypes:  make(map[types.MemoryType]int),
	}
	seen := make(map[string]struct{})
	// us 为最近优先，倒序遍历得到首次发言顺序
	for i := len(us) - 1; i >= 0; i-- {
		u := us[i]
		summary.UtteranceCount++
		summary.SpeechTypes[u.SpeechType]++
		if _, ok := seen[u.ParticipantID]; !ok {
			seen[u.ParticipantID] = struct{}{}
			summary.Participants = append(summary.Participants, u.ParticipantID)
		}
		if summary.FirstAt.IsZero() {
			summary.FirstAt = u.Timestamp
		}
		summary.LastAt = u.Timestamp
	}
	return summary, nil
}

// =============================================================================
// 🚦 阶段
// =============================================================================

// CurrentStage 返回当前阶段
func (t *Timeline) CurrentStage() types.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// UpdateStage 推进到新阶段。后退返回 STAGE_VIOLATION，原地更新是空操作
func (t *Timeline) UpdateStage(ctx context.Context, next types.Stage) error {
	if !next.Valid() {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("unknown stage %q", next))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if next == t.stage {
		return nil
	}
	if next.Before(t.stage) {
		return types.NewStageViolation(t.stage, next)
	}

	batch := persistence.NewBatch().PutEntry(t.stageKey(), map[string]string{
		"stage":      string(next),
		"previous":   string(t.stage),
		"updated_at": t.now().Format(time.RFC3339Nano),
	}, t.ttl)
	if err := t.backend.Commit(ctx, batch); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}

	t.logger.Info("stage updated", zap.String("from", string(t.stage)), zap.String("to", string(next)))
	t.stage = next
	return nil
}

// ClearSession 删除该会议下的全部 key，阶段回到 init
func (t *Timeline) ClearSession(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.backend.DeleteScope(ctx, t.scope())
	if err != nil {
		return n, fmt.Errorf("clear session: %w", err)
	}
	t.stage = types.StageInit
	t.logger.Info("session cleared", zap.Int("keys", n))
	return n, nil
}

func (t *Timeline) loadUtterance(ctx context.Context, id string) (*Utterance, error) {
	fields, err := t.backend.ReadEntry(ctx, t.speechKey(id))
	if err != nil {
		return nil, fmt.Errorf("read speech %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	u := &Utterance{
		ID:            id,
		ParticipantID: fields["participant_id"],
		DisplayName:   fields["display_name"],
		Role:          types.Role(fields["role"]),
		SpeechType:    types.MemoryType(fields["speech_type"]),
		Stage:         types.Stage(fields["stage"]),
		Content:       fields["content"],
	}
	if ms, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		u.Timestamp = time.UnixMilli(ms)
	}
	if raw := fields["extras"]; raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &u.Extras); err != nil {
			t.logger.Warn("malformed speech extras", zap.String("id", id), zap.Error(err))
		}
	}
	return u, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
