package tui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/BaSui01/craftmeet/agent/conversation"
	"github.com/BaSui01/craftmeet/agent/participant"
	"github.com/BaSui01/craftmeet/llm/image"
)

// Backend 菜单动作的业务实现。sink 接收动作过程中的会议事件。
type Backend interface {
	RunMeeting(ctx context.Context, sink conversation.TraceSink) (*conversation.Session, error)
	ProcessImage(ctx context.Context, sink conversation.TraceSink, path string) (map[string]participant.Story, error)
	DesignProduct(ctx context.Context, sink conversation.TraceSink, keywords []string) (*conversation.DesignResult, error)
	GenerateImage(ctx context.Context, prompt string) (*image.Result, error)
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
}

func summarizeSession(s *conversation.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "会议 %s 已结束（%s）\n", s.ID, s.Topic)
	writeList(&b, "投票关键词", s.VotedKeywords)
	writeList(&b, "最终关键词", s.FinalKeywords)
	writeList(&b, "换位关键词", s.SwitchKeywords)
	if s.DesignPrompt != "" {
		fmt.Fprintf(&b, "设计提示词: %s\n", s.DesignPrompt)
	}
	writeList(&b, "生成图片", s.Images)
	return strings.TrimRight(b.String(), "\n")
}

func summarizeStories(stories map[string]participant.Story) string {
	var b strings.Builder
	for _, id := range slices.Sorted(maps.Keys(stories)) {
		st := stories[id]
		fmt.Fprintf(&b, "%s: %s\n", id, st.Text)
		writeList(&b, "  关键词", st.Keywords)
	}
	if b.Len() == 0 {
		return "没有参与者讲述故事"
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarizeDesign(r *conversation.DesignResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "设计师: %s\n", r.Designer)
	c := r.Concept.Value
	if r.Concept.Parsed {
		fmt.Fprintf(&b, "名称: %s\n形态: %s\n", c.Name, c.Form)
		writeList(&b, "元素", c.Elements)
		writeList(&b, "配色", c.Colors)
		if c.Story != "" {
			fmt.Fprintf(&b, "故事: %s\n", c.Story)
		}
	} else {
		fmt.Fprintf(&b, "%s\n", r.Concept.Raw)
	}
	if r.Card != "" {
		fmt.Fprintf(&b, "\n%s\n", r.Card)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarizeImage(r *image.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "模型: %s\n", r.Model)
	if r.RevisedPrompt != "" {
		fmt.Fprintf(&b, "修订提示词: %s\n", r.RevisedPrompt)
	}
	writeList(&b, "图片", r.Paths)
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, "、"))
}

// splitKeywords 按中英文逗号、顿号与空白拆分用户输入
func splitKeywords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', '，', '、', ';', '；', ' ', '\t', '\n':
			return true
		}
		return false
	})
}
