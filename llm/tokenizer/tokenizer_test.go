package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEstimator_CJKWeighsMore(t *testing.T) {
	t.Parallel()

	e := NewEstimatorTokenizer()
	zh, err := e.CountTokens("传统手艺人谈竹编")
	assert.NoError(t, err)
	en, err := e.CountTokens("bamboo!!")
	assert.NoError(t, err)

	assert.Equal(t, 5, zh)
	assert.Equal(t, 2, en)

	empty, _ := e.CountTokens("")
	assert.Zero(t, empty)
	single, _ := e.CountTokens("a")
	assert.Equal(t, 1, single)
}

func TestForModel_NonOpenAIUsesEstimator(t *testing.T) {
	t.Parallel()

	c := ForModel("deepseek-chat", nil)
	assert.Equal(t, "estimator", c.Name())
	assert.Equal(t, 4, c.Count("一二三四五六"))
	assert.Zero(t, c.Count(""))
}

func TestEncodingFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		enc   string
		ok    bool
	}{
		{"gpt-4o-mini", "o200k_base", true},
		{"GPT-4-turbo", "cl100k_base", true},
		{"gpt-3.5-turbo", "cl100k_base", true},
		{"qwen-plus", "", false},
	}
	for _, tt := range tests {
		enc, ok := encodingFor(tt.model)
		assert.Equal(t, tt.ok, ok, tt.model)
		assert.Equal(t, tt.enc, enc, tt.model)
	}
}

func TestCounter_FitLines(t *testing.T) {
	t.Parallel()

	c := ForModel("local", nil)
	lines := []string{"一二三", "四五六", "七八九"}

	assert.Equal(t, lines, c.FitLines(lines, 0))
	assert.Equal(t, lines[:2], c.FitLines(lines, 4))
	assert.Empty(t, c.FitLines(lines, 1))
}

func TestCounter_FitLinesNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	c := ForModel("local", nil)
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.StringMatching(`[a-z一-龥]{0,12}`)).Draw(t, "lines")
		budget := rapid.IntRange(1, 40).Draw(t, "budget")

		kept := c.FitLines(lines, budget)
		if len(kept) > len(lines) {
			t.Fatalf("kept more lines than given")
		}
		total := 0
		for i, line := range kept {
			if line != lines[i] {
				t.Fatalf("order changed at %d", i)
			}
			total += c.Count(line)
		}
		if total > budget {
			t.Fatalf("total %d exceeds budget %d (%s)", total, budget, strings.Join(kept, "|"))
		}
	})
}
