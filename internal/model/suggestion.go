package model

// 常用的来源标签。
const (
	SourceLabelAI        = "AI Suggestion"
	SourceLabelFieldHelp = "Field Help"
	EnhancedSuffix       = " (Enhanced)"
)

// SuggestionCandidate 是为某个字段生成的候选值。
// Value 去除空白后非空，Confidence 取值 0-100。
type SuggestionCandidate struct {
	FieldName   string `json:"fieldName"`
	Value       string `json:"value"`
	Confidence  int    `json:"confidence"`
	Source      string `json:"source"`
	Explanation string `json:"explanation,omitempty"`
}
