package participant

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/craftmeet/agent/prompts"
	"github.com/BaSui01/craftmeet/agent/structured"
	"github.com/BaSui01/craftmeet/types"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// 🧰 角色专属操作
// =============================================================================

// Result 结构化操作结果。模型输出无法解析为 JSON 时 Parsed 为 false，Raw 保留原文。
type Result[T any] struct {
	Value  T      `json:"value"`
	Raw    string `json:"raw"`
	Parsed bool   `json:"parsed"`
}

type structuredCall struct {
	op        string
	task      prompts.Task
	memory    types.MemoryType
	vars      map[string]string
	imagePath string
}

// runStructured 渲染任务、调用模型、解析 JSON 并写入个人记忆。
// 结构化结果只进入个人记忆，不发布到时间线。
func runStructured[T any](ctx context.Context, p *Participant, call structuredCall) (Result[T], error) {
	ctx, span := p.startSpan(ctx, call.op)
	defer span.End()

	role := p.CurrentRole()
	prompt, err := p.catalog.Render(call.task, role, p.vars(role, call.vars))
	if err != nil {
		return Result[T]{}, p.fail(span, err)
	}

	var raw string
	if call.imagePath != "" {
		raw, err = p.provider.GenerateWithImage(ctx, prompt, p.systemPrompt(role), call.imagePath)
	} else {
		raw, err = p.provider.Generate(ctx, prompt, p.systemPrompt(role))
	}
	if err != nil {
		return Result[T]{}, p.fail(span, types.WrapLLMError(call.op, err))
	}

	res := Result[T]{Raw: strings.TrimSpace(raw)}
	content := map[string]any{"raw": res.Raw}
	if v, perr := structured.ParseInto[T](raw); perr == nil {
		res.Value = v
		res.Parsed = true
		content = toContent(v)
	}
	for k, v := range call.vars {
		if _, exists := content[k]; !exists {
			content[k] = v
		}
	}
	if call.imagePath != "" {
		content["image_path"] = call.imagePath
	}
	span.SetAttributes(attribute.Bool("result.parsed", res.Parsed))

	if _, err := p.memory.AddMemory(ctx, call.memory, content); err != nil {
		return Result[T]{}, p.fail(span, err)
	}
	return res, nil
}

// toContent 把结构体展开为记忆内容
func toContent(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// =============================================================================
// 传统手艺人
// =============================================================================

// DesignEvaluation 手艺人对设计的评价
type DesignEvaluation struct {
	CraftFidelity    string   `json:"craft_fidelity"`
	CulturalAccuracy string   `json:"cultural_accuracy"`
	Suggestions      []string `json:"suggestions"`
}

// Material 推荐材料
type Material struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// MaterialSuggestion 材料建议
type MaterialSuggestion struct {
	Materials []Material `json:"materials"`
}

// Craftsman 传统手艺人视图
type Craftsman struct{ *Participant }

// EvaluateDesign 评价设计的工艺还原度与文化准确性
func (c Craftsman) EvaluateDesign(ctx context.Context, design string) (Result[DesignEvaluation], error) {
	return runStructured[DesignEvaluation](ctx, c.Participant, structuredCall{
		op:     "evaluate_design",
		task:   prompts.TaskEvaluateDesign,
		memory: types.MemoryDesignEvaluation,
		vars:   map[string]string{"design": design},
	})
}

// SuggestMaterials 推荐传统材料
func (c Craftsman) SuggestMaterials(ctx context.Context, product string) (Result[MaterialSuggestion], error) {
	return runStructured[MaterialSuggestion](ctx, c.Participant, structuredCall{
		op:     "suggest_materials",
		task:   prompts.TaskSuggestMaterials,
		memory: types.MemoryMaterialSuggest,
		vars:   map[string]string{"product": product},
	})
}

// =============================================================================
// 消费者
// =============================================================================

// ProductEvaluation 消费者评价
type ProductEvaluation struct {
	Appeal           float64  `json:"appeal"`
	PriceExpectation string   `json:"price_expectation"`
	Concerns         []string `json:"concerns"`
}

// Improvements 改进建议
type Improvements struct {
	Improvements []string `json:"improvements"`
}

// MarketEvaluation 市场潜力
type MarketEvaluation struct {
	TargetUsers string   `json:"target_users"`
	Channels    []string `json:"channels"`
	Potential   string   `json:"potential"`
}

// Feedback 使用者反馈
type Feedback struct {
	Likes    []string `json:"likes"`
	Dislikes []string `json:"dislikes"`
	WouldBuy bool     `json:"would_buy"`
}

// Consumer 消费者视图
type Consumer struct{ *Participant }

// EvaluateProduct 从消费者角度评价产品
func (c Consumer) EvaluateProduct(ctx context.Context, product string) (Result[ProductEvaluation], error) {
	return runStructured[ProductEvaluation](ctx, c.Participant, structuredCall{
		op:     "evaluate_product",
		task:   prompts.TaskEvaluateProduct,
		memory: types.MemoryProductEvaluation,
		vars:   map[string]string{"product": product},
	})
}

// SuggestImprovements 提出改进建议
func (c Consumer) SuggestImprovements(ctx context.Context, product string) (Result[Improvements], error) {
	return runStructured[Improvements](ctx, c.Participant, structuredCall{
		op:     "suggest_improvements",
		task:   prompts.TaskSuggestImprovements,
		memory: types.MemoryImprovements,
		vars:   map[string]string{"product": product},
	})
}

// EvaluateMarketPotential 评估市场潜力
func (c Consumer) EvaluateMarketPotential(ctx context.Context, product string) (Result[MarketEvaluation], error) {
	return runStructured[MarketEvaluation](ctx, c.Participant, structuredCall{
		op:     "evaluate_market_potential",
		task:   prompts.TaskEvaluateMarket,
		memory: types.MemoryMarketEvaluation,
		vars:   map[string]string{"product": product},
	})
}

// ProvideFeedback 给出使用反馈
func (c Consumer) ProvideFeedback(ctx context.Context, design string) (Result[Feedback], error) {
	return runStructured[Feedback](ctx, c.Participant, structuredCall{
		op:     "provide_feedback",
		task:   prompts.TaskProvideFeedback,
		memory: types.MemoryFeedback,
		vars:   map[string]string{"design": design},
	})
}

// =============================================================================
// 制造商
// =============================================================================

// Feasibility 生产可行性
type Feasibility struct {
	Feasibility  string   `json:"feasibility"`
	Difficulties []string `json:"difficulties"`
	Process      string   `json:"process"`
}

// CostEstimate 成本估算
type CostEstimate struct {
	UnitCost float64 `json:"unit_cost"`
	MoldCost float64 `json:"mold_cost"`
	Notes    string  `json:"notes"`
}

// Manufacturer 制造商视图
type Manufacturer struct{ *Participant }

// EvaluateFeasibility 评估生产可行性
func (m Manufacturer) EvaluateFeasibility(ctx context.Context, design string) (Result[Feasibility], error) {
	return runStructured[Feasibility](ctx, m.Participant, structuredCall{
		op:     "evaluate_feasibility",
		task:   prompts.TaskEvaluateFeasibility,
		memory: types.MemoryFeasibility,
		vars:   map[string]string{"design": design},
	})
}

// EstimateCosts 估算生产成本
func (m Manufacturer) EstimateCosts(ctx context.Context, product string) (Result[CostEstimate], error) {
	return runStructured[CostEstimate](ctx, m.Participant, structuredCall{
		op:     "estimate_costs",
		task:   prompts.TaskEstimateCosts,
		memory: types.MemoryCostEstimate,
		vars:   map[string]string{"product": product},
	})
}

// =============================================================================
// 设计师
// =============================================================================

// DesignConcept 设计概念
type DesignConcept struct {
	Name     string   `json:"name"`
	Form     string   `json:"form"`
	Elements []string `json:"elements"`
	Colors   []string `json:"colors"`
	Story    string   `json:"story"`
}

// ImageAnalysis 设计图分析
type ImageAnalysis struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// Designer 设计师视图
type Designer struct{ *Participant }

// CreateDesignConcept 根据关键词提出设计概念
func (d Designer) CreateDesignConcept(ctx context.Context, topic string, keywords []string) (Result[DesignConcept], error) {
	return runStructured[DesignConcept](ctx, d.Participant, structuredCall{
		op:     "create_design_concept",
		task:   prompts.TaskCreateDesignConcept,
		memory: types.MemoryDesignConcept,
		vars:   map[string]string{"topic": topic, "keywords": strings.Join(keywords, "、")},
	})
}

// GenerateDesignPrompt 把设计概念改写为图像生成提示词
func (d Designer) GenerateDesignPrompt(ctx context.Context, concept string) (string, error) {
	ctx, span := d.startSpan(ctx, "generate_design_prompt")
	defer span.End()

	role := d.CurrentRole()
	prompt, err := d.catalog.Render(prompts.TaskGenerateDesignPrompt, role, d.vars(role, map[string]string{"concept": concept}))
	if err != nil {
		return "", d.fail(span, err)
	}
	out, err := d.provider.Generate(ctx, prompt, d.systemPrompt(role))
	if err != nil {
		return "", d.fail(span, types.WrapLLMError("generate_design_prompt", err))
	}
	out = strings.TrimSpace(out)
	if _, err := d.memory.AddMemory(ctx, types.MemoryDesignPrompt, map[string]any{"content": out, "concept": concept}); err != nil {
		return "", d.fail(span, err)
	}
	return out, nil
}

// AnalyzeDesignImage 分析设计图；模型不支持视觉时返回 ErrInvalidInput
func (d Designer) AnalyzeDesignImage(ctx context.Context, imagePath string) (Result[ImageAnalysis], error) {
	if !d.SupportsVision() {
		return Result[ImageAnalysis]{}, types.NewError(types.ErrInvalidInput, "provider does not support vision").
			WithProvider(d.provider.Name())
	}
	return runStructured[ImageAnalysis](ctx, d.Participant, structuredCall{
		op:        "analyze_design_image",
		task:      prompts.TaskAnalyzeDesignImage,
		memory:    types.MemoryImageAnalysis,
		imagePath: imagePath,
	})
}

// =============================================================================
// 角色视图
// =============================================================================

// Craftsman 返回手艺人视图，原始角色不是手艺人时 ok 为 false
func (p *Participant) Craftsman() (Craftsman, bool) {
	return Craftsman{p}, p.OriginalRole() == types.RoleCraftsman
}

// Consumer 返回消费者视图
func (p *Participant) Consumer() (Consumer, bool) {
	return Consumer{p}, p.OriginalRole() == types.RoleConsumer
}

// Manufacturer 返回制造商视图
func (p *Participant) Manufacturer() (Manufacturer, bool) {
	return Manufacturer{p}, p.OriginalRole() == types.RoleManufacturer
}

// Designer 返回设计师视图
func (p *Participant) Designer() (Designer, bool) {
	return Designer{p}, p.OriginalRole() == types.RoleDesigner
}
