package model

import "time"

// SourceKind 标识上下文条目的来源。
type SourceKind string

const (
	SourceManual   SourceKind = "manual"
	SourceDocument SourceKind = "document"
	SourceForm     SourceKind = "form"
)

// ChunkMetadata 记录文档分块的来源与顺序，同一文档的分块共享 DocumentID，ChunkIndex 从 0 连续编号。
type ChunkMetadata struct {
	DocumentID  string `gorm:"type:varchar(36);index;column:document_id" json:"documentId,omitempty"`
	ChunkIndex  int    `gorm:"not null;default:0;column:chunk_index" json:"chunkIndex"`
	TotalChunks int    `gorm:"not null;default:1;column:total_chunks" json:"totalChunks"`
}

// ContextChunk 对应于数据库中的 context_chunks 表，是一条归属于单个用户的可检索上下文。
// 向量不落库，只存放在 Elasticsearch 中，以 EntryID 作为文档 ID。
type ContextChunk struct {
	ID           uint          `gorm:"primaryKey;autoIncrement" json:"-"`
	EntryID      string        `gorm:"type:varchar(36);uniqueIndex;not null" json:"entryId"`
	UserID       uint          `gorm:"not null;index" json:"userId"`
	Key          string        `gorm:"type:varchar(255);not null" json:"key"`
	Text         string        `gorm:"type:text" json:"text"`
	Tags         []string      `gorm:"type:json;serializer:json" json:"tags"`
	SourceKind   SourceKind    `gorm:"type:varchar(16);not null;index" json:"sourceKind"`
	Metadata     ChunkMetadata `gorm:"embedded" json:"metadata"`
	Embedding    []float32     `gorm:"-" json:"-"`
	LastAccessed time.Time     `gorm:"index" json:"lastAccessed"`
	AccessCount  int           `gorm:"not null;default:0" json:"accessCount"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ContextChunk) TableName() string {
	return "context_chunks"
}

// ScoredChunk 是一次相似度检索的结果。
// Fallback 为 true 时表示结果来自按最近访问排序的降级路径，Score 固定为 1.0，不代表真实相关度。
type ScoredChunk struct {
	Chunk    ContextChunk `json:"chunk"`
	Score    float64      `json:"score"`
	Fallback bool         `json:"fallback"`
}

// EsContextDocument 定义了存储在 Elasticsearch 中的上下文文档结构。
type EsContextDocument struct {
	EntryID     string    `json:"entry_id"`
	UserID      uint      `json:"user_id"`
	Key         string    `json:"key"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags"`
	SourceKind  string    `json:"source_kind"`
	DocumentID  string    `json:"document_id,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	Vector      []float32 `json:"vector"`
}
