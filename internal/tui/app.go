package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/BaSui01/craftmeet/agent/conversation"
)

// appState 当前所在的界面
type appState int

const (
	stateMenu    appState = iota // 顶层菜单
	stateInput                   // 等待动作参数
	stateRunning                 // 动作执行中，实时显示事件
	stateResult                  // 动作完成，显示结果
)

const (
	eventBuffer        = 256
	typewriterInterval = 30 * time.Millisecond
	typewriterStep     = 3
)

type menuAction int

const (
	actionMeeting menuAction = iota
	actionProcessImage
	actionDesignProduct
	actionTheme
	actionEffects
	actionImageTest
	actionKeywordTest
	actionExit
)

// menuItem 实现 list.Item
type menuItem struct {
	action menuAction
	title  string
	desc   string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

var menuItems = []menuItem{
	{actionMeeting, "开始会议", "多角色讨论、投票、换位思考并生成设计"},
	{actionProcessImage, "看图讲故事", "参与者观察一张图片并给出关键词"},
	{actionDesignProduct, "设计产品", "设计师根据关键词给出设计概念与设计卡"},
	{actionTheme, "切换主题", "在内置配色之间切换"},
	{actionEffects, "打字机效果", "开启或关闭逐字显示"},
	{actionImageTest, "AI 绘图测试", "直接用提示词生成一张图片"},
	{actionKeywordTest, "关键词提取测试", "从一段文本中提炼关键词"},
	{actionExit, "退出", "结束程序"},
}

var inputPrompts = map[menuAction]string{
	actionProcessImage:  "图片路径",
	actionDesignProduct: "关键词（用逗号或顿号分隔）",
	actionImageTest:     "绘图提示词",
	actionKeywordTest:   "待提炼的文本",
}

type eventMsg struct {
	run int
	ev  conversation.TraceEvent
}

type doneMsg struct {
	run     int
	summary string
	err     error
}

type tickMsg struct{ run int }

// actionFunc 在后台执行的动作，返回结果摘要
type actionFunc func(ctx context.Context, sink conversation.TraceSink) (string, error)

// Options 界面选项
type Options struct {
	// Theme 初始主题名称
	Theme string
	// Typewriter 是否开启打字机效果
	Typewriter bool
	Logger     *zap.Logger
}

// App 菜单主模型
type App struct {
	backend Backend
	logger  *zap.Logger

	state   appState
	menu    list.Model
	input   textinput.Model
	pending menuAction

	title      string
	transcript *Transcript
	msgs       chan tea.Msg
	cancel     context.CancelFunc
	run        int
	ticking    bool
	summary    string
	status     string

	themeIdx   int
	typewriter bool

	width  int
	height int
}

// NewApp 创建菜单
func NewApp(backend Backend, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	items := make([]list.Item, len(menuItems))
	for i, item := range menuItems {
		items[i] = item
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "🏮 剪纸文创设计会议"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.SetShowHelp(false)

	input := textinput.New()
	input.CharLimit = 2000

	a := &App{
		backend:    backend,
		logger:     logger.With(zap.String("component", "tui")),
		state:      stateMenu,
		menu:       menu,
		input:      input,
		transcript: NewTranscript(opts.Typewriter),
		themeIdx:   ThemeIndex(opts.Theme),
		typewriter: opts.Typewriter,
	}
	a.applyTheme()
	return a
}

// Run 启动全屏界面，直到用户退出
func Run(ctx context.Context, backend Backend, opts Options) error {
	app := NewApp(backend, opts)
	_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	app.stop()
	return err
}

// Init 实现 tea.Model
func (a *App) Init() tea.Cmd {
	return nil
}

// Update 实现 tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menu.SetSize(max(0, msg.Width-4), max(0, msg.Height-6))
		a.input.Width = max(20, msg.Width-8)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.stop()
			return a, tea.Quit
		}
		switch a.state {
		case stateMenu:
			return a.updateMenu(msg)
		case stateInput:
			return a.updateInput(msg)
		case stateRunning:
			if msg.String() == "esc" {
				a.stop()
				a.status = "正在取消…"
			}
			return a, nil
		case stateResult:
			switch msg.String() {
			case "enter", "esc", "q":
				a.transcript.RevealAll()
				a.state = stateMenu
			}
			return a, nil
		}

	case eventMsg:
		if msg.run != a.run {
			return a, nil
		}
		a.transcript.Apply(msg.ev)
		return a, tea.Batch(a.waitForMsg(), a.startTick())

	case doneMsg:
		if msg.run != a.run {
			return a, nil
		}
		a.finish(msg)
		return a, a.startTick()

	case tickMsg:
		if msg.run != a.run {
			return a, nil
		}
		a.transcript.Reveal(typewriterStep)
		if a.transcript.Pending() {
			return a, a.tick()
		}
		a.ticking = false
		return a, nil
	}

	var cmd tea.Cmd
	switch a.state {
	case stateMenu:
		a.menu, cmd = a.menu.Update(msg)
	case stateInput:
		a.input, cmd = a.input.Update(msg)
	}
	return a, cmd
}

func (a *App) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		item, ok := a.menu.SelectedItem().(menuItem)
		if !ok {
			return a, nil
		}
		return a, a.choose(item.action)
	case "q":
		return a, tea.Quit
	}
	var cmd tea.Cmd
	a.menu, cmd = a.menu.Update(msg)
	return a, cmd
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.input.Blur()
		a.state = stateMenu
		return a, nil
	case "enter":
		value := strings.TrimSpace(a.input.Value())
		if value == "" {
			a.status = inputPrompts[a.pending] + "不能为空"
			return a, nil
		}
		a.input.Blur()
		return a, a.runWithInput(a.pending, value)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// choose 处理菜单选择
func (a *App) choose(action menuAction) tea.Cmd {
	switch action {
	case actionExit:
		return tea.Quit
	case actionTheme:
		a.themeIdx = (a.themeIdx + 1) % len(Themes)
		a.applyTheme()
		a.status = "主题: " + Themes[a.themeIdx].Name
		return nil
	case actionEffects:
		a.typewriter = !a.typewriter
		a.transcript.SetTypewriter(a.typewriter)
		a.status = "打字机效果: " + onOff(a.typewriter)
		return nil
	case actionMeeting:
		return a.start("开始会议", func(ctx context.Context, sink conversation.TraceSink) (string, error) {
			session, err := a.backend.RunMeeting(ctx, sink)
			if err != nil {
				return "", err
			}
			return summarizeSession(session), nil
		})
	}

	a.pending = action
	a.status = ""
	a.input.Reset()
	a.input.Placeholder = inputPrompts[action]
	a.state = stateInput
	return a.input.Focus()
}

func (a *App) runWithInput(action menuAction, value string) tea.Cmd {
	switch action {
	case actionProcessImage:
		return a.start("看图讲故事", func(ctx context.Context, sink conversation.TraceSink) (string, error) {
			stories, err := a.backend.ProcessImage(ctx, sink, value)
			if err != nil {
				return "", err
			}
			return summarizeStories(stories), nil
		})
	case actionDesignProduct:
		keywords := splitKeywords(value)
		return a.start("设计产品", func(ctx context.Context, sink conversation.TraceSink) (string, error) {
			result, err := a.backend.DesignProduct(ctx, sink, keywords)
			if err != nil {
				return "", err
			}
			return summarizeDesign(result), nil
		})
	case actionImageTest:
		return a.start("AI 绘图测试", func(ctx context.Context, _ conversation.TraceSink) (string, error) {
			result, err := a.backend.GenerateImage(ctx, value)
			if err != nil {
				return "", err
			}
			return summarizeImage(result), nil
		})
	case actionKeywordTest:
		return a.start("关键词提取测试", func(ctx context.Context, _ conversation.TraceSink) (string, error) {
			keywords, err := a.backend.ExtractKeywords(ctx, value)
			if err != nil {
				return "", err
			}
			return "关键词: " + strings.Join(keywords, "、"), nil
		})
	}
	a.state = stateMenu
	return nil
}

// start 在后台运行动作。事件与完成消息走同一个通道，保证显示顺序。
func (a *App) start(title string, fn actionFunc) tea.Cmd {
	a.stop()
	a.run++
	run := a.run
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan tea.Msg, eventBuffer)

	a.cancel = cancel
	a.msgs = msgs
	a.title = title
	a.summary = ""
	a.status = ""
	a.ticking = false
	a.transcript = NewTranscript(a.typewriter)
	a.state = stateRunning
	a.logger.Info("menu action started", zap.String("action", title))

	sink := conversation.SinkFunc(func(ev conversation.TraceEvent) {
		select {
		case msgs <- eventMsg{run: run, ev: ev}:
		case <-ctx.Done():
		}
	})
	exec := func() tea.Msg {
		summary, err := fn(ctx, sink)
		msgs <- doneMsg{run: run, summary: summary, err: err}
		close(msgs)
		return nil
	}
	return tea.Batch(exec, a.waitForMsg())
}

func (a *App) waitForMsg() tea.Cmd {
	msgs := a.msgs
	return func() tea.Msg {
		msg, ok := <-msgs
		if !ok {
			return nil
		}
		return msg
	}
}

func (a *App) finish(msg doneMsg) {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if msg.err != nil {
		a.logger.Warn("menu action failed", zap.String("action", a.title), zap.Error(msg.err))
		a.transcript.RevealAll()
		a.status = "❌ " + a.title + ": " + msg.err.Error()
		a.state = stateMenu
		return
	}
	a.logger.Info("menu action finished", zap.String("action", a.title))
	a.summary = msg.summary
	a.state = stateResult
}

func (a *App) startTick() tea.Cmd {
	if !a.typewriter || a.ticking || !a.transcript.Pending() {
		return nil
	}
	a.ticking = true
	return a.tick()
}

func (a *App) tick() tea.Cmd {
	run := a.run
	return tea.Tick(typewriterInterval, func(time.Time) tea.Msg { return tickMsg{run: run} })
}

func (a *App) stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) applyTheme() {
	a.menu.Styles.Title = Themes[a.themeIdx].Title
}

// View 实现 tea.Model
func (a *App) View() string {
	theme := Themes[a.themeIdx]
	var b strings.Builder

	switch a.state {
	case stateMenu:
		b.WriteString(a.menu.View())
		b.WriteString("\n")
		b.WriteString(theme.Status.Render(fmt.Sprintf("主题: %s · 打字机: %s", theme.Name, onOff(a.typewriter))))
		if a.status != "" {
			b.WriteString("\n")
			b.WriteString(a.statusStyle(theme).Render(a.status))
		}
	case stateInput:
		b.WriteString(theme.Title.Render(inputPrompts[a.pending]))
		b.WriteString("\n\n")
		b.WriteString(a.input.View())
		b.WriteString("\n\n")
		if a.status != "" {
			b.WriteString(theme.Error.Render(a.status) + "\n")
		}
		b.WriteString(theme.Status.Render("enter 确认 · esc 返回菜单"))
	case stateRunning:
		b.WriteString(theme.Title.Render(a.title))
		b.WriteString("\n")
		b.WriteString(a.transcript.Render(theme, a.transcriptHeight(4)))
		b.WriteString("\n\n")
		hint := "esc 取消"
		if a.status != "" {
			hint = a.status
		}
		b.WriteString(theme.Status.Render(hint))
	case stateResult:
		b.WriteString(theme.Title.Render(a.title))
		b.WriteString("\n")
		if body := a.transcript.Render(theme, a.transcriptHeight(8+strings.Count(a.summary, "\n"))); body != "" {
			b.WriteString(body)
			b.WriteString("\n\n")
		}
		b.WriteString(theme.Stage.Render("结果"))
		b.WriteString("\n")
		b.WriteString(theme.Speech.Render(a.summary))
		b.WriteString("\n\n")
		b.WriteString(theme.Status.Render("enter 返回菜单"))
	}
	return theme.Frame.Render(b.String())
}

func (a *App) statusStyle(theme Theme) lipgloss.Style {
	if strings.HasPrefix(a.status, "❌") {
		return theme.Error
	}
	return theme.Notice
}

func (a *App) transcriptHeight(reserved int) int {
	if a.height == 0 {
		return 0
	}
	return max(3, a.height-reserved-4)
}

func onOff(on bool) string {
	if on {
		return "开"
	}
	return "关"
}
