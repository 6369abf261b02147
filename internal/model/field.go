// Package model 定义了表单、上下文与建议的数据模型。
package model

// FieldType 是表单字段类型的封闭枚举。
type FieldType string

const (
	FieldTypeText          FieldType = "text"
	FieldTypeEmail         FieldType = "email"
	FieldTypeTel           FieldType = "tel"
	FieldTypeURL           FieldType = "url"
	FieldTypePassword      FieldType = "password"
	FieldTypeNumber        FieldType = "number"
	FieldTypeDate          FieldType = "date"
	FieldTypeDateTimeLocal FieldType = "datetime-local"
	FieldTypeTime          FieldType = "time"
	FieldTypeMonth         FieldType = "month"
	FieldTypeWeek          FieldType = "week"
	FieldTypeTextarea      FieldType = "textarea"
	FieldTypeSelect        FieldType = "select"
	FieldTypeCheckbox      FieldType = "checkbox"
	FieldTypeRadio         FieldType = "radio"
)

// IsEnumerated 报告该类型的字段是否带有可选项列表。
func (t FieldType) IsEnumerated() bool {
	return t == FieldTypeSelect || t == FieldTypeRadio
}

// FieldDescriptor 是从 HTML 中抽取出的单个表单字段的规范化描述。
// Name 在同一个表单内唯一，Name 与 Label 始终非空。
type FieldDescriptor struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Readonly    bool      `json:"readonly"`
	Placeholder string    `json:"placeholder,omitempty"`
	Options     []string  `json:"options,omitempty"`
}
