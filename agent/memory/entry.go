package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/craftmeet/types"
)

// previewRunes 未知类型的内容预览长度
const previewRunes = 100

// Entry 一条记忆
type Entry struct {
	ID        string           `json:"id"`
	Type      types.MemoryType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Content   map[string]any   `json:"content"`
}

// typeLabels 已知类型的中文标签
var typeLabels = map[types.MemoryType]string{
	types.MemoryIntroduction:      "自我介绍",
	types.MemoryDiscussion:        "讨论发言",
	types.MemoryKeywords:          "提取关键词",
	types.MemoryVoting:            "投票",
	types.MemoryRoleSwitch:        "角色转换",
	types.MemoryImageStory:        "图片故事",
	types.MemoryDesignCard:        "设计卡片",
	types.MemoryProductEvaluation: "产品评价",
	types.MemoryMaterialSuggest:   "材料建议",
	types.MemoryDesignEvaluation:  "设计评价",
	types.MemoryImprovements:      "改进建议",
	types.MemoryMarketEvaluation:  "市场潜力评估",
	types.MemoryFeedback:          "反馈",
	types.MemoryFeasibility:       "可行性评估",
	types.MemoryCostEstimate:      "成本估算",
	types.MemoryDesignConcept:     "设计概念",
	types.MemoryDesignPrompt:      "设计提示词",
	types.MemoryImageAnalysis:     "图片分析",
}

// Keywords 返回内容中的 keywords 列表
func (e *Entry) Keywords() []string {
	return stringList(e.Content["keywords"])
}

// Text 把内容展开为纯文本，用于格式化与子串检索
func (e *Entry) Text() string {
	if e == nil || len(e.Content) == 0 {
		return ""
	}
	for _, key := range []string{"content", "text", "story", "card"} {
		if s, ok := e.Content[key].(string); ok && s != "" {
			return s
		}
	}
	if kw := e.Keywords(); len(kw) > 0 {
		return strings.Join(kw, "、")
	}

	keys := make([]string, 0, len(e.Content))
	for k := range e.Content {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := e.Content[k].(type) {
		case string:
			parts = append(parts, v)
		case nil:
		default:
			if list := stringList(v); len(list) > 0 {
				parts = append(parts, strings.Join(list, "、"))
				continue
			}
			b, err := json.Marshal(v)
			if err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, " ")
}

// Format 渲染为单行可读文本
func (e *Entry) Format() string {
	ts := e.Timestamp.Format("15:04:05")
	label, known := typeLabels[e.Type]
	if !known {
		return fmt.Sprintf("[%s] %s: %s", ts, e.Type, truncateRunes(e.Text(), previewRunes))
	}

	switch e.Type {
	case types.MemoryKeywords, types.MemoryVoting:
		return fmt.Sprintf("[%s] %s: %s", ts, label, strings.Join(e.Keywords(), "、"))
	case types.MemoryRoleSwitch:
		from := roleName(e.Content["previous_role"])
		to := roleName(e.Content["new_role"])
		line := fmt.Sprintf("[%s] %s: %s → %s", ts, label, from, to)
		if text, _ := e.Content["content"].(string); text != "" {
			line += " | " + text
		}
		return line
	default:
		return fmt.Sprintf("[%s] %s: %s", ts, label, e.Text())
	}
}

func roleName(v any) string {
	s, _ := v.(string)
	if r := types.Role(s); r.Valid() {
		return r.DisplayName()
	}
	if s == "" {
		return "未知"
	}
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
