package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/craftmeet/agent/conversation"
	"github.com/BaSui01/craftmeet/agent/participant"
	"github.com/BaSui01/craftmeet/llm/image"
	"github.com/BaSui01/craftmeet/types"
)

type fakeBackend struct {
	mu       sync.Mutex
	err      error
	block    bool
	keywords []string
	lastText string
	lastPath string
	design   []string
}

func (f *fakeBackend) RunMeeting(ctx context.Context, sink conversation.TraceSink) (*conversation.Session, error) {
	sink.Publish(conversation.TraceEvent{Type: conversation.EventStageStarted, Stage: types.StageIntroduction})
	sink.Publish(chunk("张师傅", types.RoleCraftsman, "大家好，"))
	sink.Publish(chunk("张师傅", types.RoleCraftsman, "我做剪纸"))
	sink.Publish(utterance("张师傅", types.RoleCraftsman, "大家好，我做剪纸"))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		sink.Publish(conversation.TraceEvent{Type: conversation.EventError, Stage: types.StageDiscussion, Content: f.err.Error()})
		return nil, f.err
	}
	return &conversation.Session{
		ID:            "meeting-1",
		Topic:         "剪纸文创产品设计",
		VotedKeywords: []string{"福字", "红色"},
		FinalKeywords: []string{"福字", "红色"},
		DesignPrompt:  "a red paper-cut lantern",
	}, nil
}

func (f *fakeBackend) ProcessImage(_ context.Context, _ conversation.TraceSink, path string) (map[string]participant.Story, error) {
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return map[string]participant.Story{
		"consumer_1":  {Text: "一只喜鹊", Keywords: []string{"喜鹊"}},
		"craftsman_1": {Text: "梅花", Keywords: []string{"梅花", "吉祥"}},
	}, nil
}

func (f *fakeBackend) DesignProduct(_ context.Context, _ conversation.TraceSink, keywords []string) (*conversation.DesignResult, error) {
	f.mu.Lock()
	f.design = keywords
	f.mu.Unlock()
	return &conversation.DesignResult{
		Designer: "王设计师",
		Concept: participant.Result[participant.DesignConcept]{
			Value:  participant.DesignConcept{Name: "福满灯", Form: "灯罩", Colors: []string{"中国红"}},
			Parsed: true,
		},
		Card: "【设计卡】福满灯",
	}, nil
}

func (f *fakeBackend) GenerateImage(_ context.Context, prompt string) (*image.Result, error) {
	return &image.Result{Model: "dall-e-3", Paths: []string{"output/images/1.png"}, RevisedPrompt: prompt}, nil
}

func (f *fakeBackend) ExtractKeywords(_ context.Context, text string) ([]string, error) {
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	return f.keywords, nil
}

// drive 在当前协程依次执行命令并把动作相关消息交给 Update
func drive(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 10000, "command loop did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch m := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, m...)
		case eventMsg, doneMsg, tickMsg:
			_, next := a.Update(m)
			queue = append(queue, next)
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func selectAction(t *testing.T, a *App, action menuAction) tea.Cmd {
	t.Helper()
	for i, item := range menuItems {
		if item.action == action {
			a.menu.Select(i)
			_, cmd := a.Update(key("enter"))
			return cmd
		}
	}
	t.Fatalf("action %d not in menu", action)
	return nil
}

func TestMenu_ListsEveryAction(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{})
	var titles []string
	for _, it := range a.menu.Items() {
		titles = append(titles, it.(menuItem).title)
	}
	assert.Equal(t, []string{"开始会议", "看图讲故事", "设计产品", "切换主题", "打字机效果", "AI 绘图测试", "关键词提取测试", "退出"}, titles)
}

func TestMenu_ThemeAndEffectsToggle(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{Theme: "朱砂"})
	require.Equal(t, 1, a.themeIdx)

	assert.Nil(t, selectAction(t, a, actionTheme))
	assert.Equal(t, 2, a.themeIdx)
	assert.Contains(t, a.View(), "青花")
	selectAction(t, a, actionTheme)
	assert.Equal(t, 0, a.themeIdx)

	selectAction(t, a, actionEffects)
	assert.True(t, a.typewriter)
	assert.Contains(t, a.status, "开")
	selectAction(t, a, actionEffects)
	assert.False(t, a.typewriter)
	assert.Equal(t, stateMenu, a.state)
}

func TestMenu_Exit(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{})
	cmd := selectAction(t, a, actionExit)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestMeeting_StreamsAndShowsSummary(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{})
	drive(t, a, selectAction(t, a, actionMeeting))

	require.Equal(t, stateResult, a.state)
	assert.Contains(t, a.transcript.Plain(), "张师傅（传统手艺人）: 大家好，我做剪纸")
	assert.Contains(t, a.summary, "投票关键词: 福字、红色")
	assert.Contains(t, a.summary, "a red paper-cut lantern")
	assert.Contains(t, a.View(), "结果")

	a.Update(key("enter"))
	assert.Equal(t, stateMenu, a.state)
}

func TestMeeting_TypewriterFinishesRevealing(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{Typewriter: true})
	drive(t, a, selectAction(t, a, actionMeeting))

	require.Equal(t, stateResult, a.state)
	assert.False(t, a.transcript.Pending())
	assert.False(t, a.ticking)
}

func TestMeeting_ErrorReturnsToMenu(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{err: errors.New("provider down")}, Options{})
	drive(t, a, selectAction(t, a, actionMeeting))

	assert.Equal(t, stateMenu, a.state)
	assert.Equal(t, "❌ 开始会议: provider down", a.status)
	assert.Contains(t, a.transcript.Plain(), "❌ [自由讨论] provider down")
	assert.Contains(t, a.View(), "provider down")
}

func TestMeeting_EscCancels(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{block: true}, Options{})
	cmd := selectAction(t, a, actionMeeting)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	go batch[0]()

	a.Update(key("esc"))
	assert.Equal(t, "正在取消…", a.status)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range a.msgs {
			a.Update(msg)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("action did not stop")
	}
	assert.Equal(t, stateMenu, a.state)
	assert.Contains(t, a.status, context.Canceled.Error())
}

func TestKeywordTest_UsesInput(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{keywords: []string{"窗花", "团圆"}}
	a := NewApp(backend, Options{})

	selectAction(t, a, actionKeywordTest)
	require.Equal(t, stateInput, a.state)

	_, cmd := a.Update(key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, stateInput, a.state)
	assert.Contains(t, a.status, "不能为空")

	a.input.SetValue("  过年贴窗花，一家团圆  ")
	_, cmd = a.Update(key("enter"))
	drive(t, a, cmd)

	assert.Equal(t, "过年贴窗花，一家团圆", backend.lastText)
	assert.Equal(t, stateResult, a.state)
	assert.Equal(t, "关键词: 窗花、团圆", a.summary)
}

func TestInput_EscReturnsToMenu(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{})
	selectAction(t, a, actionImageTest)
	require.Equal(t, stateInput, a.state)
	a.Update(key("esc"))
	assert.Equal(t, stateMenu, a.state)
}

func TestProcessImageAndDesign(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{}
	a := NewApp(backend, Options{})

	selectAction(t, a, actionProcessImage)
	a.input.SetValue("testdata/window.png")
	_, cmd := a.Update(key("enter"))
	drive(t, a, cmd)
	assert.Equal(t, "testdata/window.png", backend.lastPath)
	assert.Equal(t, "consumer_1: 一只喜鹊\n  关键词: 喜鹊\ncraftsman_1: 梅花\n  关键词: 梅花、吉祥", a.summary)
	a.Update(key("enter"))

	selectAction(t, a, actionDesignProduct)
	a.input.SetValue("福字、红色，灯笼")
	_, cmd = a.Update(key("enter"))
	drive(t, a, cmd)
	assert.Equal(t, []string{"福字", "红色", "灯笼"}, backend.design)
	assert.Contains(t, a.summary, "名称: 福满灯")
	assert.Contains(t, a.summary, "配色: 中国红")
	assert.Contains(t, a.summary, "【设计卡】福满灯")
}

func TestImageTest_ShowsPaths(t *testing.T) {
	t.Parallel()
	a := NewApp(&fakeBackend{}, Options{})
	selectAction(t, a, actionImageTest)
	a.input.SetValue("paper-cut phoenix")
	_, cmd := a.Update(key("enter"))
	drive(t, a, cmd)
	assert.Contains(t, a.summary, "output/images/1.png")
	assert.Contains(t, a.summary, "修订提示词: paper-cut phoenix")
}
