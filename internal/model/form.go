package model

import "time"

// FormRecord 对应于 form_records 表，在首次检测到表单时创建，不会被自动删除。
// Suggestions 不在本表中存储，而是按字段存放在 form_field_suggestions 中，
// 读取时再组装回来。
type FormRecord struct {
	ID          uint                             `gorm:"primaryKey;autoIncrement" json:"-"`
	FormID      string                           `gorm:"type:varchar(36);uniqueIndex;not null" json:"formId"`
	UserID      uint                             `gorm:"not null;index" json:"userId"`
	URL         string                           `gorm:"type:varchar(2048)" json:"url"`
	Domain      string                           `gorm:"type:varchar(255);index" json:"domain"`
	Fields      []FieldDescriptor                `gorm:"type:json;serializer:json" json:"fields"`
	Suggestions map[string][]SuggestionCandidate `gorm:"-" json:"suggestions"`
	CreatedAt   time.Time                        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time                        `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FormRecord) TableName() string {
	return "form_records"
}

// Field 按名称查找字段。
func (r *FormRecord) Field(name string) (FieldDescriptor, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// FormFieldSuggestion 对应于 form_field_suggestions 表，每个 (form_id, field_name) 一行。
type FormFieldSuggestion struct {
	ID         uint                  `gorm:"primaryKey;autoIncrement"`
	FormID     string                `gorm:"type:varchar(36);not null;uniqueIndex:idx_form_field"`
	FieldName  string                `gorm:"type:varchar(255);not null;uniqueIndex:idx_form_field"`
	Candidates []SuggestionCandidate `gorm:"type:json;serializer:json"`
	UpdatedAt  time.Time             `gorm:"autoUpdateTime"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FormFieldSuggestion) TableName() string {
	return "form_field_suggestions"
}
