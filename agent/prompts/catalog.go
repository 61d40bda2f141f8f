package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BaSui01/craftmeet/types"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Task 提示词任务
type Task string

const (
	TaskIntroduction          Task = "introduction"
	TaskDiscussion            Task = "discussion"
	TaskKeywords              Task = "keywords"
	TaskKeywordsStrict        Task = "keywords_strict"
	TaskVote                  Task = "vote"
	TaskRoleSwitch            Task = "role_switch"
	TaskDiscussionAfterSwitch Task = "discussion_after_switch"
	TaskImageStory            Task = "image_story"
	TaskDesignCard            Task = "design_card"
	TaskDesignPrompt          Task = "design_prompt"
	TaskEvaluateDesign        Task = "evaluate_design"
	TaskSuggestMaterials      Task = "suggest_materials"
	TaskEvaluateProduct       Task = "evaluate_product"
	TaskSuggestImprovements   Task = "suggest_improvements"
	TaskEvaluateMarket        Task = "evaluate_market_potential"
	TaskProvideFeedback       Task = "provide_feedback"
	TaskEvaluateFeasibility   Task = "evaluate_feasibility"
	TaskEstimateCosts         Task = "estimate_costs"
	TaskCreateDesignConcept   Task = "create_design_concept"
	TaskGenerateDesignPrompt  Task = "generate_design_prompt"
	TaskAnalyzeDesignImage    Task = "analyze_design_image"
)

var requiredTasks = []Task{
	TaskIntroduction, TaskDiscussion, TaskKeywords, TaskKeywordsStrict, TaskVote,
	TaskRoleSwitch, TaskDiscussionAfterSwitch, TaskImageStory, TaskDesignCard, TaskDesignPrompt,
}

// Catalog 提示词目录
type Catalog interface {
	// SystemPrompt 返回角色的系统提示词，vars 用于替换身份中的占位符
	SystemPrompt(role types.Role, vars map[string]string) string
	// Render 渲染任务模板，角色有覆盖时使用覆盖版本
	Render(task Task, role types.Role, vars map[string]string) (string, error)
	// KeywordPool 返回角色的默认关键词池
	KeywordPool(role types.Role) []string
}

// SystemPrompt 系统提示词的组成部分
type SystemPrompt struct {
	Role        string   `yaml:"role"`
	Identity    string   `yaml:"identity"`
	Policies    []string `yaml:"policies"`
	OutputRules []string `yaml:"output_rules"`
	Prohibits   []string `yaml:"prohibits"`
}

// Render 按固定顺序拼接各部分
func (s SystemPrompt) Render() string {
	var parts []string
	if v := strings.TrimSpace(s.Role); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(s.Identity); v != "" {
		parts = append(parts, v)
	}
	if sec := formatBulletSection("行为政策：", s.Policies); sec != "" {
		parts = append(parts, sec)
	}
	if sec := formatBulletSection("输出规则：", s.OutputRules); sec != "" {
		parts = append(parts, sec)
	}
	if sec := formatBulletSection("禁止行为：", s.Prohibits); sec != "" {
		parts = append(parts, sec)
	}
	return strings.Join(parts, "\n\n")
}

func formatBulletSection(title string, items []string) string {
	var cleaned []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			cleaned = append(cleaned, "- "+it)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}
	return strings.TrimSpace(title) + "\n" + strings.Join(cleaned, "\n")
}

// RoleProfile 一个角色的提示词配置
type RoleProfile struct {
	System      SystemPrompt    `yaml:"system"`
	KeywordPool []string        `yaml:"keyword_pool"`
	Tasks       map[Task]string `yaml:"tasks"`
}

type catalogFile struct {
	Version string                     `yaml:"version"`
	Roles   map[types.Role]RoleProfile `yaml:"roles"`
	Tasks   map[Task]string            `yaml:"tasks"`
}

// YAMLCatalog 基于 YAML 的目录实现
type YAMLCatalog struct {
	version string
	roles   map[types.Role]RoleProfile
	tasks   map[Task]string
}

// ParseYAMLCatalog 解析并校验目录
func ParseYAMLCatalog(data []byte) (*YAMLCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, types.NewError(types.ErrConfig, "parse prompt catalog").WithCause(err)
	}

	var problems []string
	for _, role := range types.AllRoles() {
		profile, ok := f.Roles[role]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing role %s", role))
			continue
		}
		if profile.System.IsZero() {
			problems = append(problems, fmt.Sprintf("role %s has no system prompt", role))
		}
		if len(profile.KeywordPool) < 5 {
			problems = append(problems, fmt.Sprintf("role %s keyword pool needs at least 5 entries", role))
		}
	}
	for _, task := range requiredTasks {
		if strings.TrimSpace(f.Tasks[task]) == "" {
			problems = append(problems, fmt.Sprintf("missing task %s", task))
		}
	}
	if len(problems) > 0 {
		return nil, types.NewError(types.ErrConfig, "invalid prompt catalog: "+strings.Join(problems, "; "))
	}

	return &YAMLCatalog{version: f.Version, roles: f.Roles, tasks: f.Tasks}, nil
}

// DefaultCatalog 返回嵌入的默认目录
func DefaultCatalog() (*YAMLCatalog, error) {
	return ParseYAMLCatalog(defaultCatalogYAML)
}

// LoadCatalogFile 从文件加载目录
func LoadCatalogFile(path string) (*YAMLCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "read prompt catalog").WithCause(err)
	}
	return ParseYAMLCatalog(data)
}

// IsZero 判断是否为空
func (s SystemPrompt) IsZero() bool {
	return strings.TrimSpace(s.Role) == "" && strings.TrimSpace(s.Identity) == "" &&
		len(s.Policies) == 0 && len(s.OutputRules) == 0 && len(s.Prohibits) == 0
}

// Version 返回目录版本
func (c *YAMLCatalog) Version() string { return c.version }

// SystemPrompt 实现 Catalog
func (c *YAMLCatalog) SystemPrompt(role types.Role, vars map[string]string) string {
	profile, ok := c.roles[role]
	if !ok {
		return ""
	}
	return ReplaceVars(profile.System.Render(), vars)
}

// Render 实现 Catalog
func (c *YAMLCatalog) Render(task Task, role types.Role, vars map[string]string) (string, error) {
	tmpl := ""
	if profile, ok := c.roles[role]; ok {
		tmpl = profile.Tasks[task]
	}
	if tmpl == "" {
		tmpl = c.tasks[task]
	}
	if tmpl == "" {
		return "", types.NewError(types.ErrNotFound, fmt.Sprintf("prompt task %q not found", task))
	}
	return strings.TrimSpace(ReplaceVars(tmpl, vars)), nil
}

// KeywordPool 实现 Catalog
func (c *YAMLCatalog) KeywordPool(role types.Role) []string {
	profile, ok := c.roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), profile.KeywordPool...)
}

// templateVarRegexp 匹配 {{variable}} 或 {{ variable }}
var templateVarRegexp = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`)

// ReplaceVars 替换模板变量，未提供的变量保持原样
func ReplaceVars(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	return templateVarRegexp.ReplaceAllStringFunc(text, func(match string) string {
		sub := templateVarRegexp.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if val, ok := vars[sub[1]]; ok {
			return val
		}
		return match
	})
}

// Variables 返回文本中出现的变量名，按出现顺序去重
func Variables(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range templateVarRegexp.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
