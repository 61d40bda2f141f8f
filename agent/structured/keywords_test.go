package structured

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BaSui01/craftmeet/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseKeywordList(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     []string
		strategy Strategy
	}{
		{
			name:     "json array",
			raw:      `["剪纸", "红色", "吉祥"]`,
			want:     []string{"剪纸", "红色", "吉祥"},
			strategy: StrategyJSON,
		},
		{
			name:     "json in code fence",
			raw:      "```json\n[\"非遗\", \"灯笼\"]\n```",
			want:     []string{"非遗", "灯笼"},
			strategy: StrategyJSON,
		},
		{
			name:     "json object wrapper",
			raw:      `{"keywords": ["文创", "文创", "书签"]}`,
			want:     []string{"文创", "书签"},
			strategy: StrategyJSON,
		},
		{
			name:     "bracket span",
			raw:      "好的，关键词是：[剪纸, 窗花、 红色]，希望有帮助",
			want:     []string{"剪纸", "窗花", "红色"},
			strategy: StrategyBracket,
		},
		{
			name:     "numbered lines",
			raw:      "关键词如下：\n1. 剪纸\n2. \"窗花\"\n3、年画。",
			want:     []string{"剪纸", "窗花", "年画"},
			strategy: StrategyLines,
		},
		{
			name:     "bulleted lines",
			raw:      "- 传统工艺\n* 现代设计\n• 传统工艺",
			want:     []string{"传统工艺", "现代设计"},
			strategy: StrategyLines,
		},
		{
			name:     "single comma line",
			raw:      "剪纸，灯笼，福字",
			want:     []string{"剪纸", "灯笼", "福字"},
			strategy: StrategyLines,
		},
		{
			name:     "unparseable prose",
			raw:      "hello world",
			strategy: StrategyNone,
		},
		{
			name:     "empty",
			raw:      "   ",
			strategy: StrategyNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy := ParseKeywordList(tt.raw)
			assert.Equal(t, tt.strategy, strategy)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeKeyword(t *testing.T) {
	cases := map[string]string{
		"  剪纸  ":   "剪纸",
		"“窗花”":     "窗花",
		"- 红色。":    "红色",
		"(2) 吉祥！":  "吉祥",
		"《年画》":     "年画",
		"3D打印":     "3D打印",
		"":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKeyword(in), "input %q", in)
	}
}

func TestFillFromPool(t *testing.T) {
	pool := []string{"传统", "手工", "剪纸", "文化", "非遗", "匠心"}

	assert.Equal(t, []string{"传统", "手工", "剪纸", "文化", "非遗"}, FillFromPool(nil, pool, MinKeywords, MaxKeywords))
	assert.Equal(t, []string{"剪纸", "红色", "传统", "手工", "文化"}, FillFromPool([]string{"剪纸", "红色", "剪纸"}, pool, MinKeywords, MaxKeywords))

	many := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	assert.Len(t, FillFromPool(many, pool, MinKeywords, MaxKeywords), MaxKeywords)
}

func TestParseKeywordList_NeverPanicsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.String().Draw(rt, "raw")
		got, strategy := ParseKeywordList(raw)
		if strategy == StrategyNone && len(got) != 0 {
			rt.Fatalf("strategy none with %d keywords", len(got))
		}
		seen := map[string]bool{}
		for _, kw := range got {
			if kw == "" || kw != strings.TrimSpace(kw) {
				rt.Fatalf("keyword %q not normalized", kw)
			}
			if utf8.RuneCountInString(kw) > maxKeywordRunes {
				rt.Fatalf("keyword %q too long", kw)
			}
			if seen[kw] {
				rt.Fatalf("duplicate keyword %q", kw)
			}
			seen[kw] = true
		}
	})
}

func TestParseKeywordList_JSONRoundTripProperty(t *testing.T) {
	word := rapid.StringMatching(`[\p{Han}a-z]{1,8}`)
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(word, 1, 12).Draw(rt, "words")
		raw, err := json.Marshal(words)
		if err != nil {
			rt.Fatal(err)
		}
		got, strategy := ParseKeywordList(string(raw))
		if strategy != StrategyJSON {
			rt.Fatalf("strategy = %s", strategy)
		}
		want := Dedupe(words)
		if len(got) != len(want) {
			rt.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				rt.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}

func TestProperty_FillAlwaysWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pool := []string{"传统", "手工", "剪纸", "文化", "非遗", "匠心", "红色"}
	properties.Property("filled list has between 5 and 10 unique keywords", prop.ForAll(
		func(list []string) bool {
			out := FillFromPool(list, pool, MinKeywords, MaxKeywords)
			if len(out) < MinKeywords || len(out) > MaxKeywords {
				return false
			}
			return len(Dedupe(out)) == len(out)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestParseJSONObject(t *testing.T) {
	obj, err := ParseJSONObject(`{"feasibility": "高", "score": 8}`)
	require.NoError(t, err)
	assert.Equal(t, "高", obj["feasibility"])

	obj, err = ParseJSONObject("评估结果如下：\n```json\n{\"cost\": 120}\n```")
	require.NoError(t, err)
	assert.EqualValues(t, 120, obj["cost"])

	obj, err = ParseJSONObject(`我的看法是 {"risk": "低"} 供参考`)
	require.NoError(t, err)
	assert.Equal(t, "低", obj["risk"])

	_, err = ParseJSONObject("没有结构化内容")
	assert.True(t, types.IsErrorCode(err, types.ErrParse))
}

func TestParseInto(t *testing.T) {
	type estimate struct {
		UnitCost float64 `json:"unit_cost"`
		Currency string  `json:"currency"`
	}

	got, err := ParseInto[estimate](`估算：{"unit_cost": 35.5, "currency": "CNY"}`)
	require.NoError(t, err)
	assert.Equal(t, estimate{UnitCost: 35.5, Currency: "CNY"}, got)

	_, err = ParseInto[estimate]("无法估算")
	assert.True(t, types.IsErrorCode(err, types.ErrParse))
}
