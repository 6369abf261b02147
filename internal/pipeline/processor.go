// Package pipeline 定义了文档后台处理的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"formfill-go/internal/chunker"
	"formfill-go/internal/model"
	"formfill-go/internal/repository"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/llm"
	"formfill-go/pkg/log"
	"formfill-go/pkg/tasks"

	"github.com/google/uuid"
)

// summaryInputLimit 是生成摘要时送入模型的最大字符数。
const summaryInputLimit = 6000

var chunkNamespace = uuid.MustParse("0d3a7f0e-8b9c-4f1e-a2d6-5c4b3e2a1f90")

// BlobReader 读取上传的原始文件。
type BlobReader interface {
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// TextExtractor 从二进制文件中抽取纯文本。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// ChunkWriter 以文档为单位写入、删除上下文分块。
type ChunkWriter interface {
	WriteBatch(ctx context.Context, chunks []*model.ContextChunk) error
	DeleteDocument(ctx context.Context, userID uint, documentID string) error
}

// ExcerptInvalidator 在文档内容变化后清除精修摘录缓存。
type ExcerptInvalidator interface {
	Delete(ctx context.Context, userID uint, documentID string) error
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	blobs     BlobReader
	extractor TextExtractor
	chunker   *chunker.Chunker
	embedder  embedding.Client
	store     ChunkWriter
	docRepo   repository.DocumentRepository
	llm       llm.Client
	excerpts  ExcerptInvalidator
}

// NewProcessor 创建一个新的 Processor 实例。llmClient 为 nil 时跳过摘要生成，excerpts 为 nil 时不清理缓存。
func NewProcessor(
	blobs BlobReader,
	extractor TextExtractor,
	textChunker *chunker.Chunker,
	embedder embedding.Client,
	store ChunkWriter,
	docRepo repository.DocumentRepository,
	llmClient llm.Client,
	excerpts ExcerptInvalidator,
) *Processor {
	return &Processor{
		blobs:     blobs,
		extractor: extractor,
		chunker:   textChunker,
		embedder:  embedder,
		store:     store,
		docRepo:   docRepo,
		llm:       llmClient,
		excerpts:  excerpts,
	}
}

// Process 是文档处理的主函数。失败时文档被标记为 failed 并记录错误信息，而不是停留在 pending。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s, UserID: %d", task.DocumentID, task.FileName, task.UserID)

	if err := p.docRepo.UpdateStatus(task.DocumentID, model.DocumentProcessing, ""); err != nil {
		log.Errorf("[Processor] 更新文档状态为 processing 失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	if err := p.ingest(ctx, task); err != nil {
		if upErr := p.docRepo.UpdateStatus(task.DocumentID, model.DocumentFailed, err.Error()); upErr != nil {
			log.Errorf("[Processor] 更新文档状态为 failed 失败, DocumentID: %s, Error: %v", task.DocumentID, upErr)
		}
		return err
	}

	if err := p.docRepo.UpdateStatus(task.DocumentID, model.DocumentCompleted, ""); err != nil {
		log.Errorf("[Processor] 更新文档状态为 completed 失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %s", task.DocumentID)
	return nil
}

func (p *Processor) ingest(ctx context.Context, task tasks.DocumentIngestTask) error {
	// 1. 从对象存储下载文件
	log.Infof("[Processor] 步骤1: 下载原始文件, Object: %s", task.ObjectName)
	object, err := p.blobs.Get(ctx, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return err
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 读取对象流失败, Error: %v", err)
		return fmt.Errorf("读取对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 使用Tika提取文本内容")
	text, err := p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 3. 清理旧分块，保证重试不会产生重复条目
	if err := p.store.DeleteDocument(ctx, task.UserID, task.DocumentID); err != nil {
		log.Warnf("[Processor] 清理旧分块失败 (document_id=%s): %v", task.DocumentID, err)
	}

	// 4. 文本切块
	pieces := p.chunker.Split(text)
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(pieces))
	if len(pieces) == 0 {
		return errors.New("未生成任何文本分块")
	}

	// 5. 向量化
	log.Info("[Processor] 步骤4: 开始向量化分块")
	title := task.Title
	if title == "" {
		title = task.FileName
	}
	chunks := make([]*model.ContextChunk, 0, len(pieces))
	for _, piece := range pieces {
		vector, err := p.embedder.CreateEmbedding(ctx, piece.Text)
		if err != nil {
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", piece.Index, err)
			return fmt.Errorf("块 %d 向量化失败: %w", piece.Index, err)
		}
		chunks = append(chunks, &model.ContextChunk{
			EntryID:    chunkEntryID(task.DocumentID, piece.Index),
			UserID:     task.UserID,
			Key:        chunkKey(title, piece),
			Text:       piece.Text,
			Tags:       []string{string(model.SourceDocument)},
			SourceKind: model.SourceDocument,
			Metadata: model.ChunkMetadata{
				DocumentID:  task.DocumentID,
				ChunkIndex:  piece.Index,
				TotalChunks: piece.Total,
			},
			Embedding: vector,
		})
	}

	// 6. 批量写入上下文存储
	if err := p.store.WriteBatch(ctx, chunks); err != nil {
		log.Errorf("[Processor] 批量写入分块失败, Error: %v", err)
		// 部分写入的分块会被降级检索和计数看到，失败时整体清除
		if delErr := p.store.DeleteDocument(ctx, task.UserID, task.DocumentID); delErr != nil {
			log.Warnf("[Processor] 清理部分写入的分块失败 (document_id=%s): %v", task.DocumentID, delErr)
		}
		return fmt.Errorf("批量写入分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤5: 成功写入 %d 个分块", len(chunks))

	if err := p.docRepo.UpdateExtraction(task.DocumentID, text, len(chunks)); err != nil {
		return fmt.Errorf("保存抽取结果失败: %w", err)
	}

	// 7. 摘要与实体，尽力而为
	p.summarize(ctx, task, text)
	p.invalidateExcerpt(ctx, task)
	return nil
}

func (p *Processor) invalidateExcerpt(ctx context.Context, task tasks.DocumentIngestTask) {
	if p.excerpts == nil {
		return
	}
	if err := p.excerpts.Delete(ctx, task.UserID, task.DocumentID); err != nil {
		log.Warnf("[Processor] 清除摘录缓存失败, DocumentID: %s, Error: %v", task.DocumentID, err)
	}
}

type summaryResponse struct {
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
}

func (p *Processor) summarize(ctx context.Context, task tasks.DocumentIngestTask, text string) {
	if p.llm == nil {
		return
	}
	if utf8.RuneCountInString(text) > summaryInputLimit {
		text = string([]rune(text)[:summaryInputLimit])
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: `Summarize the document in at most three sentences and list the facts a person might type into a web form as "key: value" strings. Answer with JSON {"summary": "...", "entities": ["key: value"]}.`},
		{Role: llm.RoleUser, Content: text},
	}
	raw, err := p.llm.Complete(ctx, messages, nil)
	if err != nil {
		log.Warnf("[Processor] 生成文档摘要失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return
	}
	var resp summaryResponse
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		log.Warnf("[Processor] 摘要响应不是JSON, DocumentID: %s", task.DocumentID)
		return
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		log.Warnf("[Processor] 解析摘要响应失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return
	}
	entities := make([]string, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	if err := p.docRepo.UpdateSummary(task.DocumentID, strings.TrimSpace(resp.Summary), entities); err != nil {
		log.Warnf("[Processor] 保存文档摘要失败, DocumentID: %s, Error: %v", task.DocumentID, err)
	}
}

// chunkKey 单块文档直接使用标题，多块时附加从 1 开始的序号。
func chunkKey(title string, c chunker.Chunk) string {
	if c.Total <= 1 {
		return title
	}
	return fmt.Sprintf("%s (Part %d)", title, c.Index+1)
}

func chunkEntryID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s|%d", documentID, index))).String()
}
