package repository

import (
	"formfill-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了上传文档相关的数据持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByDocumentID(documentID string, userID uint) (*model.Document, error)
	FindByUserID(userID uint) ([]model.Document, error)
	UpdateStatus(documentID string, status model.DocumentStatus, errMsg string) error
	UpdateExtraction(documentID string, text string, chunkCount int) error
	UpdateSummary(documentID string, summary string, entities []string) error
	Delete(documentID string, userID uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByDocumentID 根据文档 ID 和用户 ID 检索文档记录。
func (r *documentRepository) FindByDocumentID(documentID string, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("document_id = ? AND user_id = ?", documentID, userID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUserID 查找指定用户上传的所有文档，不加载抽取出的全文。
func (r *documentRepository) FindByUserID(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Omit("extracted_text").Where("user_id = ?", userID).Order("created_at desc").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新文档处理状态，errMsg 仅在失败时有意义。
func (r *documentRepository) UpdateStatus(documentID string, status model.DocumentStatus, errMsg string) error {
	return r.db.Model(&model.Document{}).Where("document_id = ?", documentID).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
	}).Error
}

func (r *documentRepository) UpdateExtraction(documentID string, text string, chunkCount int) error {
	return r.db.Model(&model.Document{}).Where("document_id = ?", documentID).Updates(map[string]interface{}{
		"extracted_text": text,
		"chunk_count":    chunkCount,
	}).Error
}

func (r *documentRepository) UpdateSummary(documentID string, summary string, entities []string) error {
	return r.db.Model(&model.Document{}).Where("document_id = ?", documentID).Updates(&model.Document{
		Summary:  summary,
		Entities: entities,
	}).Error
}

// Delete 删除文档记录，记录不存在时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) Delete(documentID string, userID uint) error {
	res := r.db.Where("document_id = ? AND user_id = ?", documentID, userID).Delete(&model.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
