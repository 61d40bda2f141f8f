package deliberation

import (
	"fmt"
	"testing"

	"github.com/BaSui01/craftmeet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestConsensusVoting_ThresholdScenario(t *testing.T) {
	ballots := []Ballot{
		{VoterID: "V1", Keywords: []string{"x", "y"}},
		{VoterID: "V2", Keywords: []string{"x", "z"}},
		{VoterID: "V3", Keywords: []string{"x", "w"}},
	}

	got := ConsensusVoting(ballots, VotingConfig{Threshold: 0.66, MaxKeywords: 5})
	assert.Equal(t, []VoteCount{
		{Keyword: "x", Count: 3},
		{Keyword: "y", Count: 1},
		{Keyword: "z", Count: 1},
		{Keyword: "w", Count: 1},
	}, got)
	assert.Equal(t, []string{"x", "y", "z", "w"}, FinalKeywords(got))
}

func TestConsensusVoting(t *testing.T) {
	tests := []struct {
		name    string
		ballots []Ballot
		config  VotingConfig
		want    []string
	}{
		{
			name: "threshold filters minority",
			ballots: []Ballot{
				{Keywords: []string{"剪纸", "红色"}},
				{Keywords: []string{"剪纸", "灯笼"}},
				{Keywords: []string{"剪纸", "红色"}},
				{Keywords: []string{"书签"}},
			},
			config: VotingConfig{Threshold: 0.5, MaxKeywords: 5},
			want:   []string{"剪纸", "红色"},
		},
		{
			name: "max keywords truncates",
			ballots: []Ballot{
				{Keywords: []string{"a", "b", "c"}},
				{Keywords: []string{"c", "d"}},
			},
			config: VotingConfig{Threshold: 0, MaxKeywords: 2},
			want:   []string{"c", "a"},
		},
		{
			name: "duplicates within a ballot count once",
			ballots: []Ballot{
				{Keywords: []string{"a", "a", "a"}},
				{Keywords: []string{"b"}},
				{Keywords: []string{"b"}},
			},
			config: VotingConfig{MaxKeywords: 5},
			want:   []string{"b", "a"},
		},
		{
			name: "case sensitive",
			ballots: []Ballot{
				{Keywords: []string{"Paper"}},
				{Keywords: []string{"paper"}},
			},
			config: VotingConfig{MaxKeywords: 5},
			want:   []string{"Paper", "paper"},
		},
		{
			name:   "no ballots",
			config: VotingConfig{Threshold: 0.5, MaxKeywords: 5},
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalKeywords(ConsensusVoting(tt.ballots, tt.config)))
		})
	}
}

func TestThresholdCount(t *testing.T) {
	assert.Equal(t, 1, ThresholdCount(3, 0.66))
	assert.Equal(t, 2, ThresholdCount(4, 0.5))
	assert.Equal(t, 29, ThresholdCount(100, 0.29))
	assert.Equal(t, 0, ThresholdCount(5, 0))
	assert.Equal(t, 0, ThresholdCount(0, 0.8))
}

func ballotsGen() *rapid.Generator[[]Ballot] {
	keyword := rapid.SampledFrom([]string{"剪纸", "红色", "灯笼", "窗花", "书签", "福字", "非遗", "年画"})
	return rapid.Custom(func(rt *rapid.T) []Ballot {
		n := rapid.IntRange(1, 8).Draw(rt, "voters")
		out := make([]Ballot, n)
		for i := range out {
			out[i] = Ballot{
				VoterID:  fmt.Sprintf("v%d", i),
				Keywords: rapid.SliceOfN(keyword, 0, 6).Draw(rt, "keywords"),
			}
		}
		return out
	})
}

func TestConsensusVoting_UnanimousKeywordAlwaysKeptProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ballots := ballotsGen().Draw(rt, "ballots")
		threshold := rapid.Float64Range(0, 1).Draw(rt, "threshold")
		for i := range ballots {
			ballots[i].Keywords = append([]string{"共识"}, ballots[i].Keywords...)
		}

		got := ConsensusVoting(ballots, VotingConfig{Threshold: threshold, MaxKeywords: 10})
		if len(got) == 0 || got[0].Keyword != "共识" || got[0].Count != len(ballots) {
			rt.Fatalf("unanimous keyword missing: %v", got)
		}
	})
}

func TestConsensusVoting_ThresholdExcludesProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ballots := ballotsGen().Draw(rt, "ballots")
		threshold := rapid.Float64Range(0, 1).Draw(rt, "threshold")
		maxKeywords := rapid.IntRange(1, 10).Draw(rt, "max")

		got := ConsensusVoting(ballots, VotingConfig{Threshold: threshold, MaxKeywords: maxKeywords})
		floor := ThresholdCount(len(ballots), threshold)
		if len(got) > maxKeywords {
			rt.Fatalf("result size %d exceeds %d", len(got), maxKeywords)
		}
		for i, vc := range got {
			if vc.Count < floor {
				rt.Fatalf("%q has %d votes, below %d", vc.Keyword, vc.Count, floor)
			}
			if i > 0 && got[i-1].Count < vc.Count {
				rt.Fatalf("result not sorted: %v", got)
			}
		}
	})
}

func TestEngine_DecideBypassesToUnion(t *testing.T) {
	engine, err := NewEngine(VotingConfig{Threshold: 1, MaxKeywords: 5}, nil, nil)
	require.NoError(t, err)

	outcome := engine.Decide([]Ballot{
		{VoterID: "a", Keywords: []string{"剪纸", "红色"}},
		{VoterID: "b", Keywords: []string{"灯笼"}},
	}, nil)
	assert.Empty(t, outcome.Counts)
	assert.True(t, outcome.Bypassed)
	assert.Equal(t, []string{"剪纸", "红色", "灯笼"}, outcome.Keywords)
	assert.Equal(t, 2, outcome.ThresholdCount)
}

func TestEngine_DecideTruncatesLargePool(t *testing.T) {
	engine, err := NewEngine(VotingConfig{Threshold: 1, MaxKeywords: 2}, nil, nil)
	require.NoError(t, err)

	outcome := engine.Decide([]Ballot{
		{Keywords: []string{"a", "b"}},
		{Keywords: []string{"c"}},
	}, nil)
	assert.False(t, outcome.Bypassed)
	assert.True(t, outcome.Truncated)
	assert.Equal(t, []string{"a", "b"}, outcome.Keywords)
}

func TestEngine_DecideUsesRawPool(t *testing.T) {
	engine, err := NewEngine(VotingConfig{Threshold: 1, MaxKeywords: 3}, nil, nil)
	require.NoError(t, err)
	ballots := []Ballot{
		{VoterID: "a", Keywords: []string{"剪纸"}},
		{VoterID: "b", Keywords: []string{"红色"}},
	}

	// 原始池比选票并集大，超过上限时截断原始池而不是采用并集
	outcome := engine.Decide(ballots, []string{"窗花", "剪纸", "窗花", "红色", "灯笼"})
	assert.False(t, outcome.Bypassed)
	assert.True(t, outcome.Truncated)
	assert.Equal(t, []string{"窗花", "剪纸", "红色"}, outcome.Keywords)

	outcome = engine.Decide(ballots, []string{"窗花", "剪纸", "红色"})
	assert.True(t, outcome.Bypassed)
	assert.Equal(t, []string{"窗花", "剪纸", "红色"}, outcome.Keywords)

	// 有票数达标的关键词时不看原始池
	outcome = engine.Decide([]Ballot{
		{Keywords: []string{"剪纸"}},
		{Keywords: []string{"剪纸"}},
	}, []string{"窗花"})
	assert.False(t, outcome.Bypassed)
	assert.False(t, outcome.Truncated)
	assert.Equal(t, []string{"剪纸"}, outcome.Keywords)
}

func TestEngine_Validation(t *testing.T) {
	_, err := NewEngine(VotingConfig{Threshold: 1.5}, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	engine, err := NewEngine(VotingConfig{Threshold: 0.5}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, engine.Config().MaxKeywords)
	assert.Error(t, engine.SetThreshold(-0.1))
	require.NoError(t, engine.SetThreshold(0.8))
	assert.Equal(t, 0.8, engine.Config().Threshold)
}
