// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"formfill-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContextRepository 定义了对 context_chunks 表的数据操作接口。
type ContextRepository interface {
	Upsert(chunk *model.ContextChunk) error
	BatchCreate(chunks []*model.ContextChunk) error
	FindByEntryIDs(userID uint, entryIDs []string) ([]model.ContextChunk, error)
	FindEntry(userID uint, entryID string) (*model.ContextChunk, error)
	FindRecent(userID uint, limit int) ([]model.ContextChunk, error)
	ListBySource(userID uint, kind model.SourceKind) ([]model.ContextChunk, error)
	CountByDocument(userID uint, documentID string) (int64, error)
	Touch(userID uint, entryIDs []string, at time.Time) error
	DeleteByDocument(userID uint, documentID string) error
	DeleteEntry(userID uint, entryID string) (bool, error)
}

type contextRepository struct {
	db *gorm.DB
}

// NewContextRepository 创建一个新的 ContextRepository 实例。
func NewContextRepository(db *gorm.DB) ContextRepository {
	return &contextRepository{db: db}
}

// Upsert 以 entry_id 为键写入或覆盖一条上下文，访问统计保持不变。
func (r *contextRepository) Upsert(chunk *model.ContextChunk) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entry_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"key", "text", "tags", "source_kind", "document_id", "chunk_index", "total_chunks",
		}),
	}).Create(chunk).Error
}

// BatchCreate 批量写入上下文记录，entry_id 已存在时覆盖，重新处理同一文档时保持幂等。
func (r *contextRepository) BatchCreate(chunks []*model.ContextChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_id"}},
		UpdateAll: true,
	}).CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindByEntryIDs 按 entry_id 批量查询，结果限定在该用户名下。
func (r *contextRepository) FindByEntryIDs(userID uint, entryIDs []string) ([]model.ContextChunk, error) {
	var chunks []model.ContextChunk
	if len(entryIDs) == 0 {
		return chunks, nil
	}
	err := r.db.Where("user_id = ? AND entry_id IN ?", userID, entryIDs).Find(&chunks).Error
	return chunks, err
}

func (r *contextRepository) FindEntry(userID uint, entryID string) (*model.ContextChunk, error) {
	var chunk model.ContextChunk
	if err := r.db.Where("user_id = ? AND entry_id = ?", userID, entryID).First(&chunk).Error; err != nil {
		return nil, err
	}
	return &chunk, nil
}

// FindRecent 返回最近访问、访问次数最多的若干条上下文，用作相似度检索不可用时的降级结果。
func (r *contextRepository) FindRecent(userID uint, limit int) ([]model.ContextChunk, error) {
	var chunks []model.ContextChunk
	err := r.db.Where("user_id = ?", userID).
		Order("last_accessed desc").
		Order("access_count desc").
		Order("id desc").
		Limit(limit).
		Find(&chunks).Error
	return chunks, err
}

// ListBySource 按来源列出用户的上下文，按创建时间倒序。
func (r *contextRepository) ListBySource(userID uint, kind model.SourceKind) ([]model.ContextChunk, error) {
	var chunks []model.ContextChunk
	err := r.db.Where("user_id = ? AND source_kind = ?", userID, kind).
		Order("created_at desc").
		Find(&chunks).Error
	return chunks, err
}

// CountByDocument 统计某个文档目前已写入的分块数量。
func (r *contextRepository) CountByDocument(userID uint, documentID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.ContextChunk{}).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		Count(&count).Error
	return count, err
}

// Touch 将 access_count 加一并刷新 last_accessed。
func (r *contextRepository) Touch(userID uint, entryIDs []string, at time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return r.db.Model(&model.ContextChunk{}).
		Where("user_id = ? AND entry_id IN ?", userID, entryIDs).
		Updates(map[string]interface{}{
			"access_count":  gorm.Expr("access_count + ?", 1),
			"last_accessed": at,
		}).Error
}

// DeleteByDocument 删除某个文档的全部分块记录。
func (r *contextRepository) DeleteByDocument(userID uint, documentID string) error {
	return r.db.Where("user_id = ? AND document_id = ?", userID, documentID).Delete(&model.ContextChunk{}).Error
}

// DeleteEntry 删除单条上下文，返回是否确有记录被删除。
func (r *contextRepository) DeleteEntry(userID uint, entryID string) (bool, error) {
	res := r.db.Where("user_id = ? AND entry_id = ?", userID, entryID).Delete(&model.ContextChunk{})
	return res.RowsAffected > 0, res.Error
}
