// Package fixtures 提供会议测试的样例回复与数据
package fixtures

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/craftmeet/testutil/mocks"
)

// DefaultKeywords 默认的五个关键词，刚好满足关键词下限
var DefaultKeywords = []string{"剪纸", "窗花", "红色", "节庆", "团圆"}

// Introduction50 50 字的自我介绍
var Introduction50 = strings.Repeat("我", 50)

// 固定回复
const (
	DiscussionReply = "我觉得可以把剪纸纹样用在灯具上。"
	SwitchReply     = "换个角度看，我会更在意实用。"
	DesignConcept   = `{"name": "福灯", "form": "灯罩", "elements": ["喜鹊"], "colors": ["中国红"], "story": "团圆"}`
	CostEstimate    = `{"unit_cost": 12.5, "mold_cost": 8000, "notes": "激光切割"}`
	ImageStory      = "奶奶在窗前剪出一对喜鹊。\n关键词：喜鹊，窗花，团圆，手艺，红纸，节日"
)

// KeywordList 把关键词编码成 JSON 数组回复
func KeywordList(keywords ...string) string {
	data, _ := json.Marshal(keywords)
	return string(data)
}

// MeetingResponder 按提示词内容返回会议各阶段的固定回复，关键词阶段返回 keywords
func MeetingResponder(keywords string) func(mocks.Call) (string, error) {
	return func(call mocks.Call) (string, error) {
		switch {
		case strings.Contains(call.Prompt, "换位思考"):
			return SwitchReply, nil
		case strings.Contains(call.Prompt, "请用第一人称"):
			return Introduction50, nil
		case strings.Contains(call.Prompt, "提炼"), strings.Contains(call.Prompt, "严格只输出"):
			return keywords, nil
		default:
			return DiscussionReply, nil
		}
	}
}

// MeetingProvider 返回使用 MeetingResponder 的模拟 Provider
func MeetingProvider() *mocks.MockProvider {
	return mocks.NewMockProvider().WithResponder(MeetingResponder(KeywordList(DefaultKeywords...)))
}
