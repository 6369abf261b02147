package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"formfill-go/internal/config"
	"formfill-go/internal/model"
	"formfill-go/internal/repository"
	"formfill-go/internal/suggestion"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// submissionNamespace 用于为表单提交生成确定性的 entry_id，同一用户在同一站点重复提交同一字段时覆盖旧值。
var submissionNamespace = uuid.MustParse("6f1c1b7e-3d8a-4c55-9a4e-2f0b7d9e5a31")

// DetectRequest 是表单检测的输入。
type DetectRequest struct {
	HTML string
	URL  string
	// FieldContext 是逐字段的补充说明，键为字段名。
	FieldContext map[string]string
}

// RefineRequest 是单字段精修的输入。
type RefineRequest struct {
	DocumentIDs  []string
	ExtraContext string
	Instruction  string
}

// FormService 接口定义了表单检测、精修与提交相关的业务操作。
type FormService interface {
	Detect(ctx context.Context, userID uint, req DetectRequest) (*model.FormRecord, error)
	Get(ctx context.Context, userID uint, formID string) (*model.FormRecord, error)
	Refine(ctx context.Context, userID uint, formID, fieldName string, req RefineRequest) ([]model.SuggestionCandidate, error)
	RecordSubmission(ctx context.Context, userID uint, formID string, values map[string]string) (int, error)
}

type formService struct {
	extractor    FieldExtractor
	embedder     embedding.Client
	store        ContextStore
	generator    SuggestionGenerator
	formRepo     repository.FormRepository
	docRepo      repository.DocumentRepository
	excerptCache repository.ExcerptCache
	retrieval    config.RetrievalConfig
	refine       config.RefineConfig
}

// NewFormService 创建一个新的 FormService 实例。
func NewFormService(
	extractor FieldExtractor,
	embedder embedding.Client,
	store ContextStore,
	generator SuggestionGenerator,
	formRepo repository.FormRepository,
	docRepo repository.DocumentRepository,
	excerptCache repository.ExcerptCache,
	retrieval config.RetrievalConfig,
	refine config.RefineConfig,
) FormService {
	if retrieval.Limit <= 0 {
		retrieval.Limit = 10
	}
	if refine.ExcerptLength <= 0 {
		refine.ExcerptLength = 2000
	}
	if refine.KeepPrevious < 0 {
		refine.KeepPrevious = 0
	}
	return &formService{
		extractor:    extractor,
		embedder:     embedder,
		store:        store,
		generator:    generator,
		formRepo:     formRepo,
		docRepo:      docRepo,
		excerptCache: excerptCache,
		retrieval:    retrieval,
		refine:       refine,
	}
}

// Detect 抽取表单字段，检索上下文并生成候选，最后持久化为一条新的 FormRecord。
func (s *formService) Detect(ctx context.Context, userID uint, req DetectRequest) (*model.FormRecord, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, fmt.Errorf("%w: html is empty", ErrInvalidInput)
	}

	fields := s.extractor.Extract(req.HTML)
	domain := domainOf(req.URL)
	log.Infof("[FormService] 检测到表单字段, userID: %d, domain: %s, fields: %d", userID, domain, len(fields))

	record := &model.FormRecord{
		FormID:      uuid.NewString(),
		UserID:      userID,
		URL:         req.URL,
		Domain:      domain,
		Fields:      fields,
		Suggestions: map[string][]model.SuggestionCandidate{},
	}

	if len(fields) > 0 {
		chunks := s.retrieve(ctx, userID, detectQuery(fields, domain))
		result := s.generator.Generate(ctx, fields, suggestion.Bundle{
			UserID:       userID,
			Chunks:       chunks,
			FormContext:  formContext(req.URL, domain),
			FieldContext: req.FieldContext,
		})
		record.Suggestions = result.Suggestions
		s.recordAccess(userID, result.UsedEntryIDs)
	}

	if err := s.formRepo.Create(record); err != nil {
		log.Errorf("[FormService] 保存表单记录失败, userID: %d, error: %v", userID, err)
		return nil, fmt.Errorf("保存表单记录失败: %w", err)
	}
	return record, nil
}

// Get 读取一条表单记录。
func (s *formService) Get(ctx context.Context, userID uint, formID string) (*model.FormRecord, error) {
	return s.loadForm(userID, formID)
}

// Refine 只为一个字段重新生成候选：新候选带 "(Enhanced)" 后缀排在最前，其后保留至多 KeepPrevious 个旧候选。
func (s *formService) Refine(ctx context.Context, userID uint, formID, fieldName string, req RefineRequest) ([]model.SuggestionCandidate, error) {
	record, err := s.loadForm(userID, formID)
	if err != nil {
		return nil, err
	}
	field, ok := record.Field(fieldName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}

	var parts []string
	for _, docID := range req.DocumentIDs {
		excerpt, err := s.excerpt(ctx, userID, docID)
		if err != nil {
			return nil, err
		}
		if excerpt != "" {
			parts = append(parts, excerpt)
		}
	}
	if extra := strings.TrimSpace(req.ExtraContext); extra != "" {
		parts = append(parts, extra)
	}
	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		parts = append(parts, "Instruction: "+instruction)
	}
	enriched := strings.Join(parts, "\n\n")

	query := strings.TrimSpace(strings.Join([]string{field.Label, field.Name, req.ExtraContext}, " "))
	chunks := s.retrieve(ctx, userID, query)

	result := s.generator.Generate(ctx, []model.FieldDescriptor{field}, suggestion.Bundle{
		UserID:       userID,
		Chunks:       chunks,
		FormContext:  formContext(record.URL, record.Domain),
		FieldContext: map[string]string{field.Name: strings.TrimSpace(req.ExtraContext)},
		Extra:        enriched,
	})
	s.recordAccess(userID, result.UsedEntryIDs)

	fresh := suggestion.MarkEnhanced(result.Suggestions[field.Name])
	merged := suggestion.Merge(fresh, record.Suggestions[field.Name], s.refine.KeepPrevious)

	if err := s.formRepo.SaveFieldSuggestions(record.FormID, field.Name, merged); err != nil {
		log.Errorf("[FormService] 保存精修结果失败, formID: %s, field: %s, error: %v", formID, field.Name, err)
		return nil, fmt.Errorf("保存精修结果失败: %w", err)
	}
	log.Infof("[FormService] 字段精修完成, formID: %s, field: %s, fresh: %d, total: %d", formID, field.Name, len(fresh), len(merged))
	return merged, nil
}

// RecordSubmission 将用户实际提交的字段值写入上下文 (sourceKind=form)，返回写入条数。
// 密码字段与表单中不存在的字段会被忽略。
func (s *formService) RecordSubmission(ctx context.Context, userID uint, formID string, values map[string]string) (int, error) {
	record, err := s.loadForm(userID, formID)
	if err != nil {
		return 0, err
	}

	var tags []string
	if record.Domain != "" {
		tags = []string{record.Domain}
	}

	written := 0
	for _, field := range record.Fields {
		value := strings.TrimSpace(values[field.Name])
		if value == "" || field.Type == model.FieldTypePassword {
			continue
		}
		vector, err := s.embedder.CreateEmbedding(ctx, field.Label+": "+value)
		if err != nil {
			return written, fmt.Errorf("向量化提交值失败 (field=%s): %w", field.Name, err)
		}
		chunk := &model.ContextChunk{
			EntryID:    submissionEntryID(userID, record.Domain, field.Name),
			UserID:     userID,
			Key:        field.Label,
			Text:       value,
			Tags:       tags,
			SourceKind: model.SourceForm,
			Metadata:   model.ChunkMetadata{TotalChunks: 1},
			Embedding:  vector,
		}
		if err := s.store.Write(ctx, chunk); err != nil {
			return written, fmt.Errorf("保存提交值失败 (field=%s): %w", field.Name, err)
		}
		written++
	}
	log.Infof("[FormService] 记录表单提交, formID: %s, userID: %d, written: %d", formID, userID, written)
	return written, nil
}

func (s *formService) loadForm(userID uint, formID string) (*model.FormRecord, error) {
	record, err := s.formRepo.FindByFormID(formID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFormNotFound, formID)
		}
		return nil, fmt.Errorf("查询表单记录失败: %w", err)
	}
	return record, nil
}

// retrieve 为查询文本检索上下文。向量化失败时以空向量调用检索，直接走最近访问的降级路径。
func (s *formService) retrieve(ctx context.Context, userID uint, query string) []model.ScoredChunk {
	var vector []float32
	if query != "" {
		v, err := s.embedder.CreateEmbedding(ctx, query)
		if err != nil {
			log.Warnf("[FormService] 查询向量化失败，使用降级检索, userID: %d, error: %v", userID, err)
		} else {
			vector = v
		}
	}
	chunks, err := s.store.Search(ctx, userID, vector, s.retrieval.Limit, s.retrieval.MinScore)
	if err != nil {
		log.Warnf("[FormService] 上下文检索失败, userID: %d, error: %v", userID, err)
		return nil
	}
	return chunks
}

func (s *formService) recordAccess(userID uint, entryIDs []string) {
	if err := s.store.RecordAccess(userID, entryIDs); err != nil {
		log.Warnf("[FormService] 更新上下文访问统计失败, userID: %d, error: %v", userID, err)
	}
}

// excerpt 返回文档的精修摘录：截断后的正文加上摘要与实体。只有处理完成的文档按 (用户, 文档) 缓存。
func (s *formService) excerpt(ctx context.Context, userID uint, documentID string) (string, error) {
	if cached, ok, err := s.excerptCache.Get(ctx, userID, documentID); err != nil {
		log.Warnf("[FormService] 读取摘录缓存失败, documentID: %s, error: %v", documentID, err)
	} else if ok {
		return cached, nil
	}

	doc, err := s.docRepo.FindByDocumentID(documentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return "", fmt.Errorf("查询文档失败: %w", err)
	}

	excerpt := buildExcerpt(doc, s.refine.ExcerptLength)
	// 未处理完成的文档还没有正文与摘要，不缓存，避免完成后仍读到空摘录
	if doc.Status != model.DocumentCompleted {
		return excerpt, nil
	}
	if err := s.excerptCache.Set(ctx, userID, documentID, excerpt, s.refine.CacheTTL); err != nil {
		log.Warnf("[FormService] 写入摘录缓存失败, documentID: %s, error: %v", documentID, err)
	}
	return excerpt, nil
}

func buildExcerpt(doc *model.Document, maxLen int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", doc.Title)
	text := strings.TrimSpace(doc.ExtractedText)
	if utf8.RuneCountInString(text) > maxLen {
		text = string([]rune(text)[:maxLen])
	}
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n")
	}
	if doc.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", doc.Summary)
	}
	if len(doc.Entities) > 0 {
		fmt.Fprintf(&b, "Entities: %s\n", strings.Join(doc.Entities, "; "))
	}
	return strings.TrimSpace(b.String())
}

func detectQuery(fields []model.FieldDescriptor, domain string) string {
	labels := make([]string, 0, len(fields)+1)
	if domain != "" {
		labels = append(labels, domain)
	}
	for _, f := range fields {
		labels = append(labels, f.Label)
	}
	return strings.Join(labels, " ")
}

func formContext(rawURL, domain string) string {
	if rawURL != "" {
		return rawURL
	}
	return domain
}

func submissionEntryID(userID uint, domain, fieldName string) string {
	return uuid.NewSHA1(submissionNamespace, []byte(fmt.Sprintf("%d|%s|%s", userID, domain, fieldName))).String()
}
