package model

import "time"

// DocumentStatus 是文档后台处理的状态。
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// IsTerminal 报告状态是否不会再变化。
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// Document 对应于 documents 表，记录一个上传文档的元数据、处理状态以及抽取结果。
type Document struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	DocumentID    string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"documentId"`
	UserID        uint           `gorm:"not null;index" json:"userId"`
	Title         string         `gorm:"type:varchar(255);not null" json:"title"`
	FileName      string         `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName    string         `gorm:"type:varchar(512);not null" json:"-"`
	Size          int64          `gorm:"not null" json:"size"`
	Status        DocumentStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	ErrorMessage  string         `gorm:"type:text" json:"errorMessage,omitempty"`
	ExtractedText string         `gorm:"type:mediumtext" json:"-"`
	Summary       string         `gorm:"type:text" json:"summary,omitempty"`
	Entities      []string       `gorm:"type:json;serializer:json" json:"entities,omitempty"`
	ChunkCount    int            `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentStatusDTO 是状态查询接口的返回结构。
type DocumentStatusDTO struct {
	DocumentID string         `json:"documentId"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	EntryCount int64          `json:"entryCount"`
	UpdatedAt  LocalTime      `json:"updatedAt"`
}
