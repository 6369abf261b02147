package repository

import (
	"formfill-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormRepository 定义了表单记录及其逐字段建议的数据操作接口。
type FormRepository interface {
	Create(record *model.FormRecord) error
	FindByFormID(formID string, userID uint) (*model.FormRecord, error)
	SaveFieldSuggestions(formID, fieldName string, candidates []model.SuggestionCandidate) error
}

type formRepository struct {
	db *gorm.DB
}

// NewFormRepository 创建一个新的 FormRepository 实例。
func NewFormRepository(db *gorm.DB) FormRepository {
	return &formRepository{db: db}
}

// Create 在同一事务中写入表单记录及其全部字段的建议。
func (r *formRepository) Create(record *model.FormRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		rows := make([]*model.FormFieldSuggestion, 0, len(record.Suggestions))
		for _, f := range record.Fields {
			candidates, ok := record.Suggestions[f.Name]
			if !ok {
				continue
			}
			rows = append(rows, &model.FormFieldSuggestion{
				FormID:     record.FormID,
				FieldName:  f.Name,
				Candidates: candidates,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// FindByFormID 加载表单记录并组装各字段的建议。
func (r *formRepository) FindByFormID(formID string, userID uint) (*model.FormRecord, error) {
	var record model.FormRecord
	if err := r.db.Where("form_id = ? AND user_id = ?", formID, userID).First(&record).Error; err != nil {
		return nil, err
	}

	var rows []model.FormFieldSuggestion
	if err := r.db.Where("form_id = ?", formID).Find(&rows).Error; err != nil {
		return nil, err
	}
	record.Suggestions = make(map[string][]model.SuggestionCandidate, len(rows))
	for _, row := range rows {
		record.Suggestions[row.FieldName] = row.Candidates
	}
	return &record, nil
}

// SaveFieldSuggestions 覆盖单个字段的建议列表。不同字段互不影响，同一字段并发写入时后写者胜出。
func (r *formRepository) SaveFieldSuggestions(formID, fieldName string, candidates []model.SuggestionCandidate) error {
	row := &model.FormFieldSuggestion{
		FormID:     formID,
		FieldName:  fieldName,
		Candidates: candidates,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "form_id"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"candidates", "updated_at"}),
	}).Create(row).Error
}
