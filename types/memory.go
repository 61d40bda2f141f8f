package types

// MemoryType 记忆条目类型，同时作为全局时间线上发言的 speech_type。
// 集合可扩展，未知类型按通用格式渲染。
type MemoryType string

const (
	MemoryIntroduction      MemoryType = "introduction"
	MemoryDiscussion        MemoryType = "discussion"
	MemoryKeywords          MemoryType = "keywords"
	MemoryVoting            MemoryType = "voting"
	MemoryRoleSwitch        MemoryType = "role_switch"
	MemoryImageStory        MemoryType = "image_story"
	MemoryDesignCard        MemoryType = "design_card"
	MemoryProductEvaluation MemoryType = "product_evaluation"
	MemoryMaterialSuggest   MemoryType = "material_suggestion"
	MemoryDesignEvaluation  MemoryType = "design_evaluation"
	MemoryImprovements      MemoryType = "improvement_suggestion"
	MemoryMarketEvaluation  MemoryType = "market_evaluation"
	MemoryFeedback          MemoryType = "feedback"
	MemoryFeasibility       MemoryType = "feasibility_evaluation"
	MemoryCostEstimate      MemoryType = "cost_estimate"
	MemoryDesignConcept     MemoryType = "design_concept"
	MemoryDesignPrompt      MemoryType = "design_prompt"
	MemoryImageAnalysis     MemoryType = "image_analysis"
)

func (t MemoryType) String() string { return string(t) }
