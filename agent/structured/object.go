package structured

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/craftmeet/types"
)

// ExtractJSON 从可能夹杂说明文字或代码块的回答中取出 JSON 片段
func ExtractJSON(response string) string {
	response = stripCodeFence(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	start = strings.Index(response, "[")
	end = strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}

// ParseJSONObject 先按完整 JSON 解析，失败时退回到 {...} 片段
func ParseJSONObject(raw string) (map[string]any, error) {
	text := stripCodeFence(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}

	span := ExtractJSON(text)
	if err := json.Unmarshal([]byte(span), &obj); err != nil || obj == nil {
		return nil, types.NewError(types.ErrParse, "no JSON object in response").WithCause(err)
	}
	return obj, nil
}

// ParseInto 与 ParseJSONObject 相同的回退链，解码到具体类型
func ParseInto[T any](raw string) (T, error) {
	var v T
	text := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	var zero T
	v = zero
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &v); err != nil {
		return v, types.NewError(types.ErrParse, "decode structured response").WithCause(err)
	}
	return v, nil
}
