package tui

import "github.com/charmbracelet/lipgloss"

// Theme 界面配色
type Theme struct {
	Name    string
	Title   lipgloss.Style
	Stage   lipgloss.Style
	Speaker lipgloss.Style
	Speech  lipgloss.Style
	Notice  lipgloss.Style
	Error   lipgloss.Style
	Status  lipgloss.Style
	Frame   lipgloss.Style
}

// Themes 内置主题，第一个为默认
var Themes = []Theme{
	newTheme("水墨", "#E8E6E3", "#9AA5B1", "#F5F5F4", "#A8A29E"),
	newTheme("朱砂", "#E23D28", "#F2A65A", "#FDF2E9", "#C08457"),
	newTheme("青花", "#1E5AA8", "#5FA8D3", "#EAF4FB", "#7A9CC6"),
}

func newTheme(name, primary, accent, text, muted string) Theme {
	return Theme{
		Name:    name,
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(primary)),
		Stage:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accent)),
		Speaker: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(primary)),
		Speech:  lipgloss.NewStyle().Foreground(lipgloss.Color(text)),
		Notice:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(muted)),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F")),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color(muted)),
		Frame:   lipgloss.NewStyle().Padding(1, 2),
	}
}

// ThemeIndex 按名称查找主题，找不到返回 0
func ThemeIndex(name string) int {
	for i, t := range Themes {
		if t.Name == name {
			return i
		}
	}
	return 0
}
