package deliberation

import (
	"math"
	"sort"
	"sync"

	"github.com/BaSui01/craftmeet/internal/metrics"
	"github.com/BaSui01/craftmeet/types"
	"go.uber.org/zap"
)

// Ballot 一位投票者的选票
type Ballot struct {
	VoterID  string   `json:"voter_id"`
	Keywords []string `json:"keywords"`
}

// VoteCount 关键词与票数
type VoteCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// VotingConfig 投票参数
type VotingConfig struct {
	Threshold   float64 `json:"threshold"`
	MaxKeywords int     `json:"max_keywords"`
}

// DefaultVotingConfig 返回默认参数
func DefaultVotingConfig() VotingConfig {
	return VotingConfig{
		Threshold:   0.5,
		MaxKeywords: 10,
	}
}

// ThresholdCount 返回 ⌊voters × threshold⌋
func ThresholdCount(voters int, threshold float64) int {
	if threshold <= 0 || voters <= 0 {
		return 0
	}
	// 1e-9 吸收 0.29*100 这类浮点误差
	return int(math.Floor(float64(voters)*threshold + 1e-9))
}

// ConsensusVoting 计票并返回排好序的结果
func ConsensusVoting(ballots []Ballot, config VotingConfig) []VoteCount {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, b := range ballots {
		inBallot := make(map[string]struct{}, len(b.Keywords))
		for _, kw := range b.Keywords {
			if kw == "" {
				continue
			}
			if _, dup := inBallot[kw]; dup {
				continue
			}
			inBallot[kw] = struct{}{}
			if _, ok := firstSeen[kw]; !ok {
				firstSeen[kw] = order
				order++
			}
			counts[kw]++
		}
	}

	result := make([]VoteCount, 0, len(counts))
	for kw, c := range counts {
		result = append(result, VoteCount{Keyword: kw, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return firstSeen[result[i].Keyword] < firstSeen[result[j].Keyword]
	})

	if floor := ThresholdCount(len(ballots), config.Threshold); floor > 0 {
		kept := result[:0]
		for _, vc := range result {
			if vc.Count >= floor {
				kept = append(kept, vc)
			}
		}
		result = kept
	}

	if config.MaxKeywords > 0 && len(result) > config.MaxKeywords {
		result = result[:config.MaxKeywords]
	}
	return result
}

// FinalKeywords 去掉票数只保留关键词
func FinalKeywords(result []VoteCount) []string {
	out := make([]string, 0, len(result))
	for _, vc := range result {
		out = append(out, vc.Keyword)
	}
	return out
}

// Union 按首次出现顺序合并全部选票的关键词
func Union(ballots []Ballot) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, b := range ballots {
		for _, kw := range b.Keywords {
			if kw == "" {
				continue
			}
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

// =============================================================================
// 🗳️ 投票引擎
// =============================================================================

// Outcome 一次投票的完整结果
type Outcome struct {
	Counts         []VoteCount `json:"counts"`
	Keywords       []string    `json:"keywords"`
	Voters         int         `json:"voters"`
	ThresholdCount int         `json:"threshold_count"`
	// Bypassed 为 true 表示阈值过滤后为空，原始关键词池不超过上限，直接采用了整个池
	Bypassed bool `json:"bypassed"`
	// Truncated 为 true 表示阈值过滤后为空，原始关键词池超过上限，取了池的前若干项
	Truncated bool `json:"truncated"`
}

// Engine 投票引擎
type Engine struct {
	mu      sync.RWMutex
	config  VotingConfig
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewEngine 创建投票引擎
func NewEngine(config VotingConfig, collector *metrics.Collector, logger *zap.Logger) (*Engine, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, types.NewError(types.ErrInvalidInput, "voting threshold must be within [0,1]")
	}
	if config.MaxKeywords <= 0 {
		config.MaxKeywords = DefaultVotingConfig().MaxKeywords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:  config,
		metrics: collector,
		logger:  logger.With(zap.String("component", "voting_engine")),
	}, nil
}

// Config 返回当前参数
func (e *Engine) Config() VotingConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// SetThreshold 运行时调整阈值
func (e *Engine) SetThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return types.NewError(types.ErrInvalidInput, "voting threshold must be within [0,1]")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.Threshold = threshold
	e.logger.Info("voting threshold changed", zap.Float64("threshold", threshold))
	return nil
}

// Decide 计票。pool 是投票前提炼出的原始关键词池，为空时取选票并集。
// 阈值过滤后结果为空时：池不超过上限则整池采用，否则取池的前 MaxKeywords 项。
func (e *Engine) Decide(ballots []Ballot, pool []string) *Outcome {
	config := e.Config()

	counts := ConsensusVoting(ballots, config)
	outcome := &Outcome{
		Counts:         counts,
		Keywords:       FinalKeywords(counts),
		Voters:         len(ballots),
		ThresholdCount: ThresholdCount(len(ballots), config.Threshold),
	}

	if len(counts) == 0 {
		pool = Union([]Ballot{{Keywords: pool}})
		if len(pool) == 0 {
			pool = Union(ballots)
		}
		switch {
		case len(pool) == 0:
		case len(pool) <= config.MaxKeywords:
			outcome.Keywords = pool
			outcome.Bypassed = true
		default:
			outcome.Keywords = pool[:config.MaxKeywords]
			outcome.Truncated = true
		}
	}

	e.metrics.RecordVotingResult(len(outcome.Keywords))
	e.logger.Info("voting finished",
		zap.Int("voters", outcome.Voters),
		zap.Int("threshold_count", outcome.ThresholdCount),
		zap.Strings("keywords", outcome.Keywords),
		zap.Bool("bypassed", outcome.Bypassed),
		zap.Bool("truncated", outcome.Truncated),
	)
	return outcome
}
