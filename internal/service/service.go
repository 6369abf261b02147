// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"io"
	"net/url"
	"strings"

	"formfill-go/internal/model"
	"formfill-go/internal/suggestion"
	"formfill-go/pkg/tasks"
)

// ContextStore 是服务层使用的上下文存储能力，由 contextstore.Store 实现。
type ContextStore interface {
	Write(ctx context.Context, chunk *model.ContextChunk) error
	Search(ctx context.Context, userID uint, vector []float32, limit int, minScore float64) ([]model.ScoredChunk, error)
	RecordAccess(userID uint, entryIDs []string) error
	DeleteDocument(ctx context.Context, userID uint, documentID string) error
	DeleteEntry(ctx context.Context, userID uint, entryID string) (bool, error)
	List(userID uint, kind model.SourceKind) ([]model.ContextChunk, error)
	CountByDocument(userID uint, documentID string) (int64, error)
}

// SuggestionGenerator 为一组字段生成候选，由 suggestion.Generator 实现。
type SuggestionGenerator interface {
	Generate(ctx context.Context, fields []model.FieldDescriptor, bundle suggestion.Bundle) suggestion.Result
}

// FieldExtractor 从 HTML 中抽取字段描述，由 extractor.Extractor 实现。
type FieldExtractor interface {
	Extract(rawHTML string) []model.FieldDescriptor
}

// BlobStore 保存上传的原始文件，由 storage.ObjectStore 实现。
type BlobStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectName string) error
}

// IngestQueue 投递后台文档处理任务，由 kafka.Producer 实现。
type IngestQueue interface {
	Publish(ctx context.Context, task tasks.DocumentIngestTask) error
}

// domainOf 返回 URL 的主机名，无法解析时返回空串。
func domainOf(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
