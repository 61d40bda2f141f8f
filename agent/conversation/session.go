package conversation

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/BaSui01/craftmeet/agent/deliberation"
	"github.com/BaSui01/craftmeet/agent/participant"
	"github.com/BaSui01/craftmeet/types"
)

// ParticipantView 参与者快照
type ParticipantView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	OriginalRole types.Role `json:"original_role"`
	CurrentRole  types.Role `json:"current_role"`
}

// Session 一场会议的状态快照
type Session struct {
	ID        string      `json:"id"`
	Topic     string      `json:"topic"`
	Stage     types.Stage `json:"stage"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	EndedAt   time.Time   `json:"ended_at,omitzero"`

	Participants []ParticipantView `json:"participants"`

	ImagePath     string                       `json:"image_path,omitempty"`
	ImageStories  map[string]participant.Story `json:"image_stories,omitempty"`
	ImageKeywords []string                     `json:"image_keywords,omitempty"`

	// Extracted 每位参与者在 keywords 阶段提出的关键词
	Extracted     map[string][]string   `json:"extracted,omitempty"`
	Ballots       []deliberation.Ballot `json:"ballots,omitempty"`
	Voting        *deliberation.Outcome `json:"voting,omitempty"`
	VotedKeywords []string              `json:"voted_keywords,omitempty"`
	FinalKeywords []string              `json:"final_keywords,omitempty"`

	RoleAssignments map[string]types.Role `json:"role_assignments,omitempty"`
	// SwitchKeywords 换位后关键词的并集，作为设计种子
	SwitchKeywords []string `json:"switch_keywords,omitempty"`

	DesignPrompt string   `json:"design_prompt,omitempty"`
	Images       []string `json:"images,omitempty"`
}

// clone 深拷贝
func (s *Session) clone() *Session {
	out := *s
	out.Participants = slices.Clone(s.Participants)
	out.ImageStories = maps.Clone(s.ImageStories)
	out.ImageKeywords = slices.Clone(s.ImageKeywords)
	if s.Extracted != nil {
		out.Extracted = make(map[string][]string, len(s.Extracted))
		for k, v := range s.Extracted {
			out.Extracted[k] = slices.Clone(v)
		}
	}
	out.Ballots = make([]deliberation.Ballot, 0, len(s.Ballots))
	for _, b := range s.Ballots {
		out.Ballots = append(out.Ballots, deliberation.Ballot{VoterID: b.VoterID, Keywords: slices.Clone(b.Keywords)})
	}
	if s.Voting != nil {
		v := *s.Voting
		v.Counts = slices.Clone(s.Voting.Counts)
		v.Keywords = slices.Clone(s.Voting.Keywords)
		out.Voting = &v
	}
	out.VotedKeywords = slices.Clone(s.VotedKeywords)
	out.FinalKeywords = slices.Clone(s.FinalKeywords)
	out.RoleAssignments = maps.Clone(s.RoleAssignments)
	out.SwitchKeywords = slices.Clone(s.SwitchKeywords)
	out.Images = slices.Clone(s.Images)
	return &out
}

// =============================================================================
// 🙋 人工输入
// =============================================================================

// HumanInput 会议中需要人工确认的两个节点
type HumanInput interface {
	// FinalKeywords 返回最终关键词；返回空列表表示沿用投票结果
	FinalKeywords(ctx context.Context, voted []string) ([]string, error)
	// DesignPrompt 返回图像生成提示词；返回空串表示使用 suggested
	DesignPrompt(ctx context.Context, seed []string, suggested string) (string, error)
}

// StaticInput 预先给定的人工输入，零值表示全部沿用默认
type StaticInput struct {
	Keywords []string
	Prompt   string
}

// FinalKeywords 实现 HumanInput
func (s StaticInput) FinalKeywords(context.Context, []string) ([]string, error) {
	return slices.Clone(s.Keywords), nil
}

// DesignPrompt 实现 HumanInput
func (s StaticInput) DesignPrompt(context.Context, []string, string) (string, error) {
	return s.Prompt, nil
}
