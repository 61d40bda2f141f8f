package types

// Stage 会议阶段。阶段只能向前推进，离开后不会再次进入。
type Stage string

const (
	StageInit                  Stage = "init"
	StageImageReference        Stage = "image_reference"
	StageIntroduction          Stage = "introduction"
	StageDiscussion            Stage = "discussion"
	StageKeywords              Stage = "keywords"
	StageVoting                Stage = "voting"
	StageWaitingFinalKeywords  Stage = "waiting_final_keywords"
	StageRoleSwitch            Stage = "role_switch"
	StageDiscussionAfterSwitch Stage = "discussion_after_switch"
	StageKeywordsAfterSwitch   Stage = "keywords_after_switch"
	StageWaitingForUserInput   Stage = "waiting_for_user_input"
	StageImageGeneration       Stage = "image_generation"
	StageEnd                   Stage = "end"
)

var stageOrder = []Stage{
	StageInit,
	StageImageReference,
	StageIntroduction,
	StageDiscussion,
	StageKeywords,
	StageVoting,
	StageWaitingFinalKeywords,
	StageRoleSwitch,
	StageDiscussionAfterSwitch,
	StageKeywordsAfterSwitch,
	StageWaitingForUserInput,
	StageImageGeneration,
	StageEnd,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		m[s] = i
	}
	return m
}()

var stageLabels = map[Stage]string{
	StageInit:                  "准备",
	StageImageReference:        "图片参考",
	StageIntroduction:          "自我介绍",
	StageDiscussion:            "自由讨论",
	StageKeywords:              "关键词提取",
	StageVoting:                "关键词投票",
	StageWaitingFinalKeywords:  "确认最终关键词",
	StageRoleSwitch:            "角色转换",
	StageDiscussionAfterSwitch: "转换后讨论",
	StageKeywordsAfterSwitch:   "转换后关键词",
	StageWaitingForUserInput:   "等待设计输入",
	StageImageGeneration:       "图像生成",
	StageEnd:                   "结束",
}

// Stages 按顺序返回全部阶段
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Index 返回阶段在序列中的位置，未知阶段返回 -1
func (s Stage) Index() int {
	if i, ok := stageIndex[s]; ok {
		return i
	}
	return -1
}

// Valid 是否为已知阶段
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Before s 是否严格早于 other
func (s Stage) Before(other Stage) bool {
	return s.Valid() && other.Valid() && s.Index() < other.Index()
}

// Label 返回阶段的中文名称
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Stage) String() string { return string(s) }
