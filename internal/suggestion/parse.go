package suggestion

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"formfill-go/internal/model"
)

// rawCandidate 的每个字段都按不可信数据处理，类型不符时逐项降级而不是整体失败。
type rawCandidate struct {
	FieldName   interface{} `json:"fieldName"`
	Value       interface{} `json:"value"`
	Confidence  interface{} `json:"confidence"`
	Source      interface{} `json:"source"`
	Explanation interface{} `json:"explanation"`
}

type rawResponse struct {
	Fields      map[string]json.RawMessage `json:"fields"`
	Suggestions []rawCandidate             `json:"suggestions"`
}

// parseCandidates 解析模型输出，支持 {"fields": {name: [...]}} 与 {"suggestions": [{fieldName, ...}]} 两种形态。
// 未知字段名、空值、不在可选项内的值都会被丢弃，置信度取整并限制在 0-100。
func parseCandidates(raw string, fields []model.FieldDescriptor) (map[string][]model.SuggestionCandidate, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("generator returned no JSON object")
	}
	var resp rawResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode generator response: %w", err)
	}

	byName := make(map[string]model.FieldDescriptor, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	out := make(map[string][]model.SuggestionCandidate)
	admit := func(name string, rc rawCandidate) {
		field, ok := byName[name]
		if !ok {
			return
		}
		if c, ok := toCandidate(field, rc); ok {
			out[name] = append(out[name], c)
		}
	}

	for name, msg := range resp.Fields {
		for _, rc := range decodeCandidateList(msg) {
			admit(name, rc)
		}
	}
	for _, rc := range resp.Suggestions {
		admit(stringOf(rc.FieldName), rc)
	}
	return out, nil
}

// decodeCandidateList 同时接受候选数组、单个候选对象以及直接给出的标量值。
func decodeCandidateList(msg json.RawMessage) []rawCandidate {
	var list []rawCandidate
	if err := json.Unmarshal(msg, &list); err == nil {
		return list
	}
	var single rawCandidate
	if err := json.Unmarshal(msg, &single); err == nil {
		return []rawCandidate{single}
	}
	var scalar interface{}
	if err := json.Unmarshal(msg, &scalar); err == nil {
		if items, ok := scalar.([]interface{}); ok {
			out := make([]rawCandidate, 0, len(items))
			for _, it := range items {
				out = append(out, rawCandidate{Value: it})
			}
			return out
		}
		return []rawCandidate{{Value: scalar}}
	}
	return nil
}

func toCandidate(field model.FieldDescriptor, rc rawCandidate) (model.SuggestionCandidate, bool) {
	value := strings.TrimSpace(stringOf(rc.Value))
	if value == "" {
		return model.SuggestionCandidate{}, false
	}
	if field.Type.IsEnumerated() && len(field.Options) > 0 {
		canonical, ok := matchOption(field.Options, value)
		if !ok {
			return model.SuggestionCandidate{}, false
		}
		value = canonical
	}
	source := strings.TrimSpace(stringOf(rc.Source))
	if source == "" {
		source = model.SourceLabelAI
	}
	return model.SuggestionCandidate{
		FieldName:   field.Name,
		Value:       value,
		Confidence:  clampConfidence(rc.Confidence),
		Source:      source,
		Explanation: strings.TrimSpace(stringOf(rc.Explanation)),
	}, true
}

func matchOption(options []string, value string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), value) {
			return o, true
		}
	}
	return "", false
}

func stringOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// clampConfidence 取整并限制在 [0,100]，缺失或无法解析时为 0。
func clampConfidence(v interface{}) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f)
}

// extractJSONObject 去掉 Markdown 代码块等包裹，返回第一个 '{' 与最后一个 '}' 之间的内容。
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
