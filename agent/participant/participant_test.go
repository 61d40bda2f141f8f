package participant_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BaSui01/craftmeet/agent/memory"
	"github.com/BaSui01/craftmeet/agent/participant"
	"github.com/BaSui01/craftmeet/agent/persistence"
	"github.com/BaSui01/craftmeet/agent/prompts"
	"github.com/BaSui01/craftmeet/agent/timeline"
	"github.com/BaSui01/craftmeet/testutil"
	"github.com/BaSui01/craftmeet/testutil/fixtures"
	"github.com/BaSui01/craftmeet/testutil/mocks"
	"github.com/BaSui01/craftmeet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

type harness struct {
	backend persistence.Backend
	board   *timeline.Timeline
	catalog prompts.Catalog
}

func newHarness(t testing.TB) *harness {
	t.Helper()
	backend, err := persistence.NewLocalBackend("", zap.NewNop())
	require.NoError(t, err)
	board, err := timeline.New("session-1", backend, zap.NewNop())
	require.NoError(t, err)
	catalog, err := prompts.DefaultCatalog()
	require.NoError(t, err)
	return &harness{backend: backend, board: board, catalog: catalog}
}

func (h *harness) join(t testing.TB, id, name string, role types.Role, provider *mocks.MockProvider) *participant.Participant {
	t.Helper()
	store, err := memory.New(id, h.backend, memory.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	p, err := participant.New(
		participant.Profile{ID: id, Name: name, Role: role, Age: 40, Background: "测试背景"},
		participant.Deps{Provider: provider, Catalog: h.catalog, Memory: store, Board: h.board},
		participant.DefaultConfig(),
	)
	require.NoError(t, err)
	require.NoError(t, h.board.AddParticipant(context.Background(), id, name, role))
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	store, err := memory.New("a", h.backend, memory.DefaultConfig(), nil)
	require.NoError(t, err)
	deps := participant.Deps{Provider: mocks.NewMockProvider(), Catalog: h.catalog, Memory: store, Board: h.board}

	_, err = participant.New(participant.Profile{Role: types.RoleCraftsman}, deps, participant.DefaultConfig())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	_, err = participant.New(participant.Profile{ID: "a", Role: "poet"}, deps, participant.DefaultConfig())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	_, err = participant.New(participant.Profile{ID: "b", Role: types.RoleCraftsman}, deps, participant.DefaultConfig())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput), "memory store of another participant")

	p, err := participant.New(participant.Profile{ID: "a", Role: types.RoleCraftsman}, deps, participant.Config{})
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name())
	assert.Equal(t, types.RoleCraftsman, p.CurrentRole())
}

// =============================================================================
// 关键词
// =============================================================================

func TestExtractKeywords_UnparseableFallsBackToPool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse("hello world")
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	keywords, err := p.ExtractKeywords(ctx, "讨论内容", "剪纸文创产品设计")
	require.NoError(t, err)

	pool := h.catalog.KeywordPool(types.RoleCraftsman)
	assert.Equal(t, pool[:5], keywords)
	assert.Equal(t, 2, provider.CallCount(), "strict retry is issued once")

	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryKeywords, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, keywords, entries[0].Keywords())

	utterances, err := h.board.GetMeetingTimeline(ctx, timeline.Query{ParticipantID: "craftsman_1"})
	require.NoError(t, err)
	require.Len(t, utterances, 1)
	assert.Equal(t, types.MemoryKeywords, utterances[0].SpeechType)
}

func TestExtractKeywords_TruncatesToMax(t *testing.T) {
	t.Parallel()
	var items []string
	for i := range 12 {
		items = append(items, fmt.Sprintf(`"词%d"`, i))
	}
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse("[" + strings.Join(items, ",") + "]")
	p := h.join(t, "consumer_1", "李女士", types.RoleConsumer, provider)

	keywords, err := p.ExtractKeywords(context.Background(), "内容", "主题")
	require.NoError(t, err)
	assert.Len(t, keywords, 10)
	assert.Equal(t, "词0", keywords[0])
	assert.Equal(t, 1, provider.CallCount())
}

func TestExtractKeywords_StrictRetryMergesResults(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithScript(`["剪纸", "红色"]`, `["剪纸", "窗花", "节庆", "团圆"]`)
	p := h.join(t, "designer_1", "王设计师", types.RoleDesigner, provider)

	keywords, err := p.ExtractKeywords(context.Background(), "内容", "主题")
	require.NoError(t, err)
	assert.Equal(t, []string{"剪纸", "红色", "窗花", "节庆", "团圆"}, keywords)
}

func TestExtractKeywords_AlwaysWithinBounds(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.OneOf(
			rapid.String(),
			rapid.Map(rapid.SliceOf(rapid.StringMatching(`[a-z一-龥]{1,6}`)), func(list []string) string {
				return `["` + strings.Join(list, `","`) + `"]`
			}),
			rapid.Map(rapid.SliceOf(rapid.StringMatching(`[a-z]{1,6}`)), func(list []string) string {
				return "- " + strings.Join(list, "\n- ")
			}),
		).Draw(rt, "raw")

		h := newHarness(t)
		p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, mocks.NewMockProvider().WithResponse(raw))
		keywords, err := p.ExtractKeywords(context.Background(), "内容", "主题")
		if err != nil {
			rt.Fatalf("extract: %v", err)
		}
		if len(keywords) < 5 || len(keywords) > 10 {
			rt.Fatalf("keyword count %d out of bounds: %v", len(keywords), keywords)
		}
		seen := map[string]bool{}
		for _, kw := range keywords {
			if seen[kw] {
				rt.Fatalf("duplicate keyword %q", kw)
			}
			seen[kw] = true
		}
	})
}

// =============================================================================
// 讨论
// =============================================================================

func TestDiscuss_PromptCompositionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	other := h.join(t, "consumer_1", "李女士", types.RoleConsumer, mocks.NewMockProvider().WithResponse("我更在意实用性"))
	provider := mocks.NewMockProvider().WithResponse("我的观点")
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	_, err := p.Introduce(ctx, "剪纸", nil)
	require.NoError(t, err)
	_, err = other.Discuss(ctx, participant.DiscussInput{Topic: "剪纸"})
	require.NoError(t, err)

	_, err = p.Discuss(ctx, participant.DiscussInput{Topic: "剪纸", Context: "上一轮：大家都提到了红色"})
	require.NoError(t, err)

	call, ok := provider.LastCall()
	require.True(t, ok)
	prompt := call.Prompt

	base := strings.Index(prompt, "会议主题：剪纸")
	external := strings.Index(prompt, participant.HeadingContext)
	global := strings.Index(prompt, "我更在意实用性")
	personal := strings.Index(prompt, participant.HeadingMemories)
	require.True(t, base >= 0 && external >= 0 && global >= 0 && personal >= 0, prompt)
	assert.Less(t, base, external)
	assert.Less(t, external, global)
	assert.Less(t, global, personal)
	assert.Contains(t, prompt, "上一轮：大家都提到了红色")
	assert.Contains(t, call.SystemPrompt, "张师傅")
}

func TestDiscuss_OmitsEmptySections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse("观点")
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	_, err := p.Discuss(context.Background(), participant.DiscussInput{Topic: "剪纸"})
	require.NoError(t, err)

	call, _ := provider.LastCall()
	assert.NotContains(t, call.Prompt, participant.HeadingContext)
	assert.NotContains(t, call.Prompt, timeline.NoContext)
	assert.NotContains(t, call.Prompt, participant.HeadingMemories)
}

func TestDiscuss_SkipGlobalContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	other := h.join(t, "consumer_1", "李女士", types.RoleConsumer, mocks.NewMockProvider().WithResponse("其他人的话"))
	provider := mocks.NewMockProvider().WithResponse("观点")
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	_, err := other.Discuss(ctx, participant.DiscussInput{Topic: "剪纸"})
	require.NoError(t, err)
	_, err = p.Discuss(ctx, participant.DiscussInput{Topic: "剪纸", SkipGlobalContext: true})
	require.NoError(t, err)

	call, _ := provider.LastCall()
	assert.NotContains(t, call.Prompt, "其他人的话")
}

func TestDiscuss_ProviderErrorWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithError(errors.New("upstream 500"))
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	_, err := p.Discuss(ctx, participant.DiscussInput{Topic: "剪纸"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrLLM))

	all, err := p.Memory().GetAllMemories(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	utterances, err := h.board.GetMeetingTimeline(ctx, timeline.Query{})
	require.NoError(t, err)
	assert.Empty(t, utterances)
}

func TestIntroduce_StreamsAndTruncates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	long := strings.Repeat("剪", 400)
	provider := mocks.NewMockProvider().WithResponse("  " + long + "  ")
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	var streamed strings.Builder
	text, err := p.Introduce(context.Background(), "剪纸", func(chunk string) { streamed.WriteString(chunk) })
	require.NoError(t, err)
	assert.Equal(t, participant.IntroductionMaxRunes, utf8.RuneCountInString(text))
	assert.Contains(t, streamed.String(), long)

	utterances, err := h.board.GetMeetingTimeline(context.Background(), timeline.Query{})
	require.NoError(t, err)
	require.Len(t, utterances, 1)
	assert.Equal(t, types.MemoryIntroduction, utterances[0].SpeechType)
	assert.Equal(t, text, utterances[0].Content)
}

// =============================================================================
// 换位思考
// =============================================================================

func TestSwitchRole_VisibleToOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	providerA := mocks.NewMockProvider().WithScript("A1", "作为消费者，我会更关注价格")
	a := h.join(t, "a", "张师傅", types.RoleCraftsman, providerA)
	h.join(t, "b", "李女士", types.RoleConsumer, mocks.NewMockProvider())

	_, err := a.Discuss(ctx, participant.DiscussInput{Topic: "剪纸"})
	require.NoError(t, err)
	_, err = a.SwitchRole(ctx, types.RoleConsumer, "剪纸", nil)
	require.NoError(t, err)

	block, err := h.board.GetCurrentContext(ctx, "b", 10)
	require.NoError(t, err)
	assert.Contains(t, block, "A1")
	assert.Contains(t, block, timeline.RoleSwitchMarker)
	assert.Equal(t, types.RoleConsumer, a.CurrentRole())
	assert.Equal(t, types.RoleCraftsman, a.OriginalRole())
}

func TestSwitchRole_RecordsPreviousRole(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		roles := types.AllRoles()
		from := rapid.SampledFrom(roles).Draw(rt, "from")
		to := rapid.SampledFrom(roles).Draw(rt, "to")

		ctx := context.Background()
		h := newHarness(t)
		provider := mocks.NewMockProvider().WithResponse("新的自我介绍")
		p := h.join(t, "p1", "参会者", from, provider)
		_, err := p.Introduce(ctx, "主题", nil)
		if err != nil {
			rt.Fatalf("introduce: %v", err)
		}

		if _, err := p.SwitchRole(ctx, to, "主题", nil); err != nil {
			rt.Fatalf("switch: %v", err)
		}
		if p.CurrentRole() != to || p.OriginalRole() != from {
			rt.Fatalf("roles current=%s original=%s", p.CurrentRole(), p.OriginalRole())
		}
		entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryRoleSwitch, 0)
		if err != nil || len(entries) != 1 {
			rt.Fatalf("role_switch entries %d err=%v", len(entries), err)
		}
		if entries[0].Content["previous_role"] != string(from) {
			rt.Fatalf("previous_role = %v", entries[0].Content["previous_role"])
		}
		intros, _ := p.Memory().GetMemoriesByType(ctx, types.MemoryIntroduction, 0)
		if len(intros) != 1 {
			rt.Fatalf("prior memory lost")
		}
	})
}

func TestSwitchRole_FailureKeepsRole(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, mocks.NewMockProvider().WithError(errors.New("timeout")))

	_, err := p.SwitchRole(context.Background(), types.RoleDesigner, "主题", nil)
	require.Error(t, err)
	assert.Equal(t, types.RoleCraftsman, p.CurrentRole())

	_, err = p.SwitchRole(context.Background(), "poet", "主题", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))
}

// commitFailing 读操作正常，提交总是失败
type commitFailing struct {
	persistence.Backend
	err error
}

func (c commitFailing) Commit(context.Context, *persistence.Batch) error { return c.err }

// speechFailing 时间线写入总是失败
type speechFailing struct {
	participant.Board
}

func (speechFailing) RecordSpeech(context.Context, timeline.SpeechRequest) (string, error) {
	return "", errors.New("timeline unavailable")
}

func joinWith(t *testing.T, h *harness, backend persistence.Backend, board participant.Board) *participant.Participant {
	t.Helper()
	store, err := memory.New("p1", backend, memory.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	p, err := participant.New(
		participant.Profile{ID: "p1", Name: "张师傅", Role: types.RoleCraftsman, Age: 40, Background: "测试背景"},
		participant.Deps{Provider: mocks.NewMockProvider().WithResponse("换位发言"), Catalog: h.catalog, Memory: store, Board: board},
		participant.DefaultConfig(),
	)
	require.NoError(t, err)
	return p
}

func TestSwitchRole_MemoryCommitFailureKeepsRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	p := joinWith(t, h, commitFailing{Backend: h.backend, err: errors.New("disk full")}, h.board)

	_, err := p.SwitchRole(ctx, types.RoleConsumer, "主题", nil)
	require.Error(t, err)
	assert.Equal(t, types.RoleCraftsman, p.CurrentRole())
	assert.Equal(t, types.RoleCraftsman, p.OriginalRole())

	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryRoleSwitch, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	utterances, err := h.board.GetMeetingTimeline(ctx, timeline.Query{ParticipantID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, utterances)
}

func TestSwitchRole_TimelineFailureRemovesMemoryEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	p := joinWith(t, h, h.backend, speechFailing{Board: h.board})

	_, err := p.SwitchRole(ctx, types.RoleConsumer, "主题", nil)
	require.Error(t, err)
	assert.Equal(t, types.RoleCraftsman, p.CurrentRole())

	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryRoleSwitch, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	stats, err := p.Memory().GetMemoryStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMemories)
	assert.Empty(t, stats.ByType)
}

func TestSwitchRole_UsesNewRoleSystemPrompt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse("ok")
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, provider)

	_, err := p.SwitchRole(context.Background(), types.RoleDesigner, "主题", nil)
	require.NoError(t, err)
	call, _ := provider.LastCall()
	assert.Equal(t, h.catalog.SystemPrompt(types.RoleDesigner, map[string]string{
		"name": "张师傅", "age": "40", "background": "测试背景", "role_name": types.RoleDesigner.DisplayName(),
	}), call.SystemPrompt)
}

// =============================================================================
// 投票
// =============================================================================

func TestVote_FiltersToCandidates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse(`["剪纸", "不存在", "红色", "剪纸"]`)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, provider)

	ballot, err := p.Vote(context.Background(), "主题", []string{"红色", "剪纸", "窗花"}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{"剪纸", "红色"}, ballot)
}

func TestVote_FallsBackToSample(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, mocks.NewMockProvider().WithResponse("都不错"))

	candidates := []string{"a", "b", "c", "d", "e", "f", "g"}
	ballot, err := p.Vote(context.Background(), "主题", candidates, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Len(t, ballot, 5)
	assert.Subset(t, candidates, ballot)
}

func TestCastLocalBallot_PrefersOwnKeywords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse(`["剪纸", "窗花", "红色", "节庆", "团圆"]`)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, provider)
	_, err := p.ExtractKeywords(ctx, "内容", "主题")
	require.NoError(t, err)

	candidates := []string{"实用", "剪纸", "便携", "窗花", "送礼", "红色", "节庆", "团圆", "颜值"}
	ballot, err := p.CastLocalBallot(ctx, "主题", candidates, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	assert.Equal(t, []string{"剪纸", "窗花", "红色", "节庆", "团圆"}, ballot)
	assert.Equal(t, 1, provider.CallCount(), "local ballot makes no model call")

	utterances, err := h.board.GetMeetingTimeline(ctx, timeline.Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, utterances, 1)
	assert.Equal(t, types.MemoryVoting, utterances[0].SpeechType)
}

func TestCastLocalBallot_SmallCandidateSet(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, mocks.NewMockProvider())

	ballot, err := p.CastLocalBallot(context.Background(), "主题", []string{"x", "y"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, ballot)
}

// =============================================================================
// 图片与设计卡片
// =============================================================================

func TestTellStoryFromImage_WithoutVision(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithVision(false)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, provider)

	story, err := p.TellStoryFromImage(context.Background(), "missing.png", "主题")
	require.NoError(t, err)
	assert.Equal(t, participant.UnsupportedStory, story.Text)
	assert.Empty(t, story.Keywords)
	assert.Zero(t, provider.CallCount())
}

func TestTellStoryFromImage_SplitsKeywords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithVision(true).
		WithResponse(fixtures.ImageStory)
	p := h.join(t, "p1", "张师傅", types.RoleCraftsman, provider)
	img := testutil.TempImage(t, "ref.png")

	story, err := p.TellStoryFromImage(ctx, img, "剪纸")
	require.NoError(t, err)
	assert.Equal(t, "奶奶在窗前剪出一对喜鹊。", story.Text)
	assert.Equal(t, []string{"喜鹊", "窗花", "团圆", "手艺", "红纸"}, story.Keywords)

	call, _ := provider.LastCall()
	assert.Equal(t, "generate_with_image", call.Method)
	assert.Equal(t, img, call.ImagePath)

	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryImageStory, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, story.Text, entries[0].Text())
}

func TestGenerateDesignCard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse("产品形态：剪纸灯罩")
	p := h.join(t, "designer_1", "王设计师", types.RoleDesigner, provider)

	card, err := p.GenerateDesignCard(ctx, []string{"剪纸", "灯"}, "主题")
	require.NoError(t, err)
	assert.Equal(t, "产品形态：剪纸灯罩", card)

	call, _ := provider.LastCall()
	assert.Contains(t, call.Prompt, "剪纸、灯")
	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryDesignCard, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// =============================================================================
// 角色专属操作
// =============================================================================

func TestCraftsman_EvaluateDesign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().WithResponse("评价如下：\n```json\n" +
		`{"craft_fidelity": "高", "cultural_accuracy": "准确", "suggestions": ["加深刻线"]}` + "\n```")
	p := h.join(t, "craftsman_1", "张师傅", types.RoleCraftsman, provider)

	craftsman, ok := p.Craftsman()
	require.True(t, ok)
	res, err := craftsman.EvaluateDesign(ctx, "剪纸灯罩")
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	assert.Equal(t, "高", res.Value.CraftFidelity)
	assert.Equal(t, []string{"加深刻线"}, res.Value.Suggestions)

	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryDesignEvaluation, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "高", entries[0].Content["craft_fidelity"])
	assert.Equal(t, "剪纸灯罩", entries[0].Content["design"])
}

func TestConsumer_UnparseableKeepsRaw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	p := h.join(t, "consumer_1", "李女士", types.RoleConsumer, mocks.NewMockProvider().WithResponse("挺好看的，就是有点贵"))

	consumer, ok := p.Consumer()
	require.True(t, ok)
	res, err := consumer.EvaluateProduct(ctx, "剪纸灯罩")
	require.NoError(t, err)
	assert.False(t, res.Parsed)
	assert.Equal(t, "挺好看的，就是有点贵", res.Raw)

	entries, err := p.Memory().GetMemoriesByType(ctx, types.MemoryProductEvaluation, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "挺好看的，就是有点贵", entries[0].Content["raw"])
}

func TestManufacturer_EstimateCosts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.join(t, "manufacturer_1", "陈总", types.RoleManufacturer,
		mocks.NewMockProvider().WithResponse(fixtures.CostEstimate))

	m, ok := p.Manufacturer()
	require.True(t, ok)
	res, err := m.EstimateCosts(context.Background(), "剪纸灯罩")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, res.Value.UnitCost, 1e-9)
	assert.InDelta(t, 8000, res.Value.MoldCost, 1e-9)

	_, ok = p.Designer()
	assert.False(t, ok)
}

func TestDesigner_Operations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	provider := mocks.NewMockProvider().
		WithRule("完整的设计概念", fixtures.DesignConcept).
		WithRule("英文提示词", "  a paper-cut lamp shade  ")
	p := h.join(t, "designer_1", "王设计师", types.RoleDesigner, provider)

	d, ok := p.Designer()
	require.True(t, ok)
	concept, err := d.CreateDesignConcept(ctx, "剪纸", []string{"喜鹊", "灯"})
	require.NoError(t, err)
	assert.Equal(t, "福灯", concept.Value.Name)

	out, err := d.GenerateDesignPrompt(ctx, concept.Raw)
	require.NoError(t, err)
	assert.Equal(t, "a paper-cut lamp shade", out)

	_, err = d.AnalyzeDesignImage(ctx, "design.png")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))
}

// =============================================================================
// 默认名单
// =============================================================================

func TestDefaultRoster(t *testing.T) {
	t.Parallel()
	roster := participant.DefaultRoster(map[types.Role]int{
		types.RoleCraftsman:    1,
		types.RoleConsumer:     4,
		types.RoleManufacturer: 1,
		types.RoleDesigner:     1,
	})
	require.Len(t, roster, 7)

	assert.Equal(t, "craftsman_1", roster[0].ID)
	assert.Equal(t, "张师傅", roster[0].Name)
	assert.Equal(t, "李女士", roster[1].Name)
	assert.Equal(t, "李女士2", roster[4].Name)
	assert.Equal(t, "consumer_4", roster[4].ID)
	assert.Equal(t, "陈总", roster[5].Name)
	assert.Equal(t, "王设计师", roster[6].Name)

	ids := map[string]bool{}
	for _, p := range roster {
		assert.False(t, ids[p.ID], "duplicate id %s", p.ID)
		ids[p.ID] = true
	}
}
