// Package contextstore 负责上下文条目的写入、相似度检索以及检索不可用时的降级。
//
// 主路径是 Elasticsearch 上按用户过滤的 kNN 检索；索引出错或没有任何结果达到
// 最低分时，退化为按最近访问、访问次数排序的若干条上下文，得分固定为 1.0。
package contextstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"formfill-go/internal/model"
	"formfill-go/internal/repository"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/es"
	"formfill-go/pkg/log"

	"github.com/google/uuid"
)

// FallbackScore 是降级结果的名义得分。
const FallbackScore = 1.0

// VectorIndex 是相似度索引需要提供的能力。
type VectorIndex interface {
	Upsert(ctx context.Context, doc model.EsContextDocument) error
	KNNSearch(ctx context.Context, userID uint, vector []float32, k int) ([]es.Hit, error)
	DeleteByDocument(ctx context.Context, userID uint, documentID string) error
	DeleteEntry(ctx context.Context, entryID string) error
}

// Store 组合了关系库中的上下文记录与相似度索引。
type Store struct {
	repo       repository.ContextRepository
	index      VectorIndex
	dims       int
	multiplier int
	now        func() time.Time
}

// Option 配置 Store。
type Option func(*Store)

// WithCandidateMultiplier 设置 kNN 候选池相对 limit 的倍数。
func WithCandidateMultiplier(m int) Option {
	return func(s *Store) {
		if m > 0 {
			s.multiplier = m
		}
	}
}

// WithClock 替换时间来源，测试中使用。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New 创建一个 Store，dims 为全系统固定的向量维度。
func New(repo repository.ContextRepository, index VectorIndex, dims int, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		index:      index,
		dims:       dims,
		multiplier: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write 写入或覆盖单条上下文。向量维度不符时返回 *embedding.ShapeError，不做任何写入。
func (s *Store) Write(ctx context.Context, chunk *model.ContextChunk) error {
	if err := s.prepare(chunk); err != nil {
		return err
	}
	if err := s.repo.Upsert(chunk); err != nil {
		return fmt.Errorf("保存上下文记录失败: %w", err)
	}
	if err := s.index.Upsert(ctx, toEsDocument(chunk)); err != nil {
		return fmt.Errorf("索引上下文失败 (entry_id=%s): %w", chunk.EntryID, err)
	}
	return nil
}

// WriteBatch 批量写入同一批上下文。所有条目先整体校验，任意一条维度不符则整批拒绝。
// 批内写入顺序不作保证，顺序信息由 ChunkIndex/TotalChunks 保留。
func (s *Store) WriteBatch(ctx context.Context, chunks []*model.ContextChunk) error {
	for _, c := range chunks {
		if err := s.prepare(c); err != nil {
			return err
		}
	}
	if err := s.repo.BatchCreate(chunks); err != nil {
		return fmt.Errorf("批量保存上下文记录失败: %w", err)
	}
	for _, c := range chunks {
		if err := s.index.Upsert(ctx, toEsDocument(c)); err != nil {
			return fmt.Errorf("索引上下文失败 (entry_id=%s): %w", c.EntryID, err)
		}
	}
	return nil
}

func (s *Store) prepare(chunk *model.ContextChunk) error {
	if err := embedding.Validate(chunk.Embedding, s.dims); err != nil {
		return err
	}
	if chunk.EntryID == "" {
		chunk.EntryID = uuid.NewString()
	}
	if chunk.LastAccessed.IsZero() {
		chunk.LastAccessed = s.now()
	}
	if chunk.Tags == nil {
		chunk.Tags = []string{}
	}
	return nil
}

// Search 返回属于 userID 的、得分不低于 minScore 的上下文，按得分降序，最多 limit 条。
// 索引不可用或没有结果时走降级路径，降级结果的 Fallback 为 true。
func (s *Store) Search(ctx context.Context, userID uint, vector []float32, limit int, minScore float64) ([]model.ScoredChunk, error) {
	if limit <= 0 {
		return []model.ScoredChunk{}, nil
	}
	if vector == nil {
		return s.fallback(userID, limit)
	}
	if err := embedding.Validate(vector, s.dims); err != nil {
		return nil, err
	}

	hits, err := s.index.KNNSearch(ctx, userID, vector, limit*s.multiplier)
	if err != nil {
		log.Warnf("[ContextStore] 相似度检索失败，降级为最近访问排序, userID: %d, error: %v", userID, err)
		return s.fallback(userID, limit)
	}

	results := make([]model.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Doc.UserID != userID {
			continue
		}
		score := cosineFromESScore(h.Score)
		if score < minScore {
			continue
		}
		results = append(results, model.ScoredChunk{Chunk: fromEsDocument(h.Doc), Score: score})
	}
	if len(results) == 0 {
		log.Infof("[ContextStore] 没有达到最低分 %.2f 的结果，降级为最近访问排序, userID: %d", minScore, userID)
		return s.fallback(userID, limit)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) fallback(userID uint, limit int) ([]model.ScoredChunk, error) {
	chunks, err := s.repo.FindRecent(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("降级检索失败: %w", err)
	}
	results := make([]model.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, model.ScoredChunk{Chunk: c, Score: FallbackScore, Fallback: true})
	}
	return results, nil
}

// RecordAccess 为参与了建议生成的上下文累加访问次数并刷新访问时间。
func (s *Store) RecordAccess(userID uint, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return s.repo.Touch(userID, entryIDs, s.now())
}

// DeleteDocument 将某个文档的全部分块作为一个整体删除，索引与记录的失败会一并返回。
func (s *Store) DeleteDocument(ctx context.Context, userID uint, documentID string) error {
	var errs []error
	if err := s.index.DeleteByDocument(ctx, userID, documentID); err != nil {
		errs = append(errs, fmt.Errorf("删除索引分块失败: %w", err))
	}
	if err := s.repo.DeleteByDocument(userID, documentID); err != nil {
		errs = append(errs, fmt.Errorf("删除分块记录失败: %w", err))
	}
	return errors.Join(errs...)
}

// DeleteEntry 删除单条上下文，返回记录是否存在。
func (s *Store) DeleteEntry(ctx context.Context, userID uint, entryID string) (bool, error) {
	found, err := s.repo.DeleteEntry(userID, entryID)
	if err != nil {
		return false, fmt.Errorf("删除上下文记录失败: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := s.index.DeleteEntry(ctx, entryID); err != nil {
		log.Warnf("[ContextStore] 删除索引条目失败, entry_id: %s, error: %v", entryID, err)
	}
	return true, nil
}

// List 按来源列出用户的上下文。
func (s *Store) List(userID uint, kind model.SourceKind) ([]model.ContextChunk, error) {
	return s.repo.ListBySource(userID, kind)
}

// CountByDocument 返回某个文档目前已写入的上下文条目数。
func (s *Store) CountByDocument(userID uint, documentID string) (int64, error) {
	return s.repo.CountByDocument(userID, documentID)
}

// cosineFromESScore 将 Elasticsearch cosine 相似度得分 (1+cos)/2 还原为余弦值。
func cosineFromESScore(score float64) float64 {
	return 2*score - 1
}

func toEsDocument(c *model.ContextChunk) model.EsContextDocument {
	return model.EsContextDocument{
		EntryID:     c.EntryID,
		UserID:      c.UserID,
		Key:         c.Key,
		Text:        c.Text,
		Tags:        c.Tags,
		SourceKind:  string(c.SourceKind),
		DocumentID:  c.Metadata.DocumentID,
		ChunkIndex:  c.Metadata.ChunkIndex,
		TotalChunks: c.Metadata.TotalChunks,
		Vector:      c.Embedding,
	}
}

func fromEsDocument(d model.EsContextDocument) model.ContextChunk {
	return model.ContextChunk{
		EntryID:    d.EntryID,
		UserID:     d.UserID,
		Key:        d.Key,
		Text:       d.Text,
		Tags:       d.Tags,
		SourceKind: model.SourceKind(d.SourceKind),
		Metadata: model.ChunkMetadata{
			DocumentID:  d.DocumentID,
			ChunkIndex:  d.ChunkIndex,
			TotalChunks: d.TotalChunks,
		},
	}
}
