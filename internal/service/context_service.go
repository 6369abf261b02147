package service

import (
	"context"
	"fmt"
	"strings"

	"formfill-go/internal/model"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/log"
)

// FactRequest 是用户手动添加的一条事实。
type FactRequest struct {
	Key   string
	Value string
	Tags  []string
}

// ContextService 接口定义了手动维护上下文事实的业务操作。
type ContextService interface {
	AddFact(ctx context.Context, userID uint, req FactRequest) (*model.ContextChunk, error)
	ListFacts(ctx context.Context, userID uint) ([]model.ContextChunk, error)
	DeleteFact(ctx context.Context, userID uint, entryID string) error
}

type contextService struct {
	embedder embedding.Client
	store    ContextStore
}

// NewContextService 创建一个新的 ContextService 实例。
func NewContextService(embedder embedding.Client, store ContextStore) ContextService {
	return &contextService{embedder: embedder, store: store}
}

// AddFact 向量化并写入一条 sourceKind=manual 的上下文。
func (s *contextService) AddFact(ctx context.Context, userID uint, req FactRequest) (*model.ContextChunk, error) {
	key := strings.TrimSpace(req.Key)
	value := strings.TrimSpace(req.Value)
	if key == "" || value == "" {
		return nil, fmt.Errorf("%w: key and value are required", ErrInvalidInput)
	}

	vector, err := s.embedder.CreateEmbedding(ctx, key+": "+value)
	if err != nil {
		return nil, fmt.Errorf("向量化事实失败: %w", err)
	}
	chunk := &model.ContextChunk{
		UserID:     userID,
		Key:        key,
		Text:       value,
		Tags:       normalizeTags(req.Tags),
		SourceKind: model.SourceManual,
		Metadata:   model.ChunkMetadata{TotalChunks: 1},
		Embedding:  vector,
	}
	if err := s.store.Write(ctx, chunk); err != nil {
		return nil, err
	}
	log.Infof("[ContextService] 添加事实成功, userID: %d, entryID: %s, key: %s", userID, chunk.EntryID, key)
	return chunk, nil
}

// ListFacts 列出用户手动添加的事实。
func (s *contextService) ListFacts(ctx context.Context, userID uint) ([]model.ContextChunk, error) {
	return s.store.List(userID, model.SourceManual)
}

// DeleteFact 删除一条上下文，不存在或不属于该用户时返回 ErrContextEntryNotFound。
func (s *contextService) DeleteFact(ctx context.Context, userID uint, entryID string) error {
	found, err := s.store.DeleteEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrContextEntryNotFound, entryID)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
