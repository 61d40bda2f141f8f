package structured

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinKeywords 关键词列表的下限
	MinKeywords = 5
	// MaxKeywords 关键词列表的上限
	MaxKeywords = 10
	// maxKeywordRunes 超过该长度的片段视为句子而非关键词
	maxKeywordRunes = 20
)

// Strategy 命中的解析策略
type Strategy string

const (
	StrategyJSON    Strategy = "json"
	StrategyBracket Strategy = "bracket"
	StrategyLines   Strategy = "lines"
	StrategyNone    Strategy = "none"
)

var (
	codeFence    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•·+>]+|\(?\d+[.)、:：]|[（(]\d+[）)])\s*`)
	separators   = regexp.MustCompile(`[,，、;；|]`)
)

// ParseKeywordList 解析关键词列表，结果已清洗、去重并保持首次出现顺序
func ParseKeywordList(raw string) ([]string, Strategy) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, StrategyNone
	}

	if list, ok := parseJSONList(text); ok {
		if out := clean(list); len(out) > 0 {
			return out, StrategyJSON
		}
	}
	if list, ok := parseBracketSpan(text); ok {
		if out := clean(list); len(out) > 0 {
			return out, StrategyBracket
		}
	}
	if out := clean(parseLines(text)); len(out) > 0 {
		return out, StrategyLines
	}
	return nil, StrategyNone
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

func parseJSONList(text string) ([]string, bool) {
	var list []any
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return anyStrings(list), true
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		for _, key := range []string{"keywords", "关键词", "result"} {
			if arr, ok := obj[key].([]any); ok {
				return anyStrings(arr), true
			}
		}
	}
	return nil, false
}

func anyStrings(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// parseBracketSpan 取第一个 [ 到其后第一个 ] 之间的内容按分隔符切分
func parseBracketSpan(text string) ([]string, bool) {
	start := strings.IndexAny(text, "[［")
	if start < 0 {
		return nil, false
	}
	_, width := utf8.DecodeRuneInString(text[start:])
	rest := text[start+width:]
	end := strings.IndexAny(rest, "]］")
	if end < 0 {
		return nil, false
	}
	return separators.Split(rest[:end], -1), true
}

// parseLines 按行切分。单行文本没有项目符号或分隔符时不产生关键词
func parseLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	switch {
	case len(lines) > 1:
		var out []string
		for _, line := range lines {
			if separators.MatchString(line) && !bulletPrefix.MatchString(line) {
				out = append(out, separators.Split(line, -1)...)
				continue
			}
			out = append(out, line)
		}
		return out
	case len(lines) == 1:
		line := lines[0]
		if separators.MatchString(line) {
			return separators.Split(line, -1)
		}
		if bulletPrefix.MatchString(line) {
			return lines
		}
	}
	return nil
}

func clean(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		kw := NormalizeKeyword(item)
		if kw == "" || utf8.RuneCountInString(kw) > maxKeywordRunes || isHeading(item) {
			continue
		}
		out = append(out, kw)
	}
	return Dedupe(out)
}

// isHeading 识别 "关键词如下：" 这类引导行
func isHeading(item string) bool {
	s := strings.TrimSpace(item)
	return strings.HasSuffix(s, "：") || strings.HasSuffix(s, ":")
}

const trimQuotes = "\"'`“”‘’「」『』《》【】"

// NormalizeKeyword 去掉项目符号、引号、首尾空白与结尾标点
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	s = bulletPrefix.ReplaceAllString(s, "")
	for {
		before := s
		s = strings.TrimSpace(s)
		s = strings.Trim(s, trimQuotes)
		s = strings.TrimRightFunc(s, func(r rune) bool {
			return unicode.IsPunct(r) && !strings.ContainsRune(trimQuotes, r)
		})
		if s == before {
			return s
		}
	}
}

// Dedupe 去掉空串与重复项，保持首次出现顺序
func Dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FillFromPool 不足 minimum 时按顺序从 pool 补齐，结果截断到 maximum
func FillFromPool(list, pool []string, minimum, maximum int) []string {
	out := Dedupe(list)
	if len(out) < minimum {
		seen := make(map[string]struct{}, len(out))
		for _, kw := range out {
			seen[kw] = struct{}{}
		}
		for _, kw := range pool {
			if len(out) >= minimum {
				break
			}
			if _, ok := seen[kw]; ok || kw == "" {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	if maximum > 0 && len(out) > maximum {
		out = out[:maximum]
	}
	return out
}
