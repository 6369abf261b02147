package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"formfill-go/internal/model"
	"formfill-go/internal/repository"
	"formfill-go/pkg/log"
	"formfill-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// supportedExtensions 是可以交给 Tika 抽取文本的文件类型。
var supportedExtensions = map[string]string{
	".pdf":  "PDF文档",
	".doc":  "Word文档",
	".docx": "Word文档",
	".odt":  "OpenDocument文本",
	".rtf":  "RTF文档",
	".txt":  "纯文本",
	".md":   "Markdown",
	".html": "HTML文档",
	".htm":  "HTML文档",
}

// UploadRequest 描述一次文档上传。
type UploadRequest struct {
	FileName    string
	Title       string
	Size        int64
	ContentType string
	Content     io.Reader
}

// DocumentService 接口定义了文档上传、状态查询和删除的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, userID uint, req UploadRequest) (*model.Document, error)
	List(ctx context.Context, userID uint) ([]model.Document, error)
	Status(ctx context.Context, userID uint, documentID string) (*model.DocumentStatusDTO, error)
	Delete(ctx context.Context, userID uint, documentID string) error
}

type documentService struct {
	docRepo      repository.DocumentRepository
	store        ContextStore
	blobs        BlobStore
	queue        IngestQueue
	excerptCache repository.ExcerptCache
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, store ContextStore, blobs BlobStore, queue IngestQueue, excerptCache repository.ExcerptCache) DocumentService {
	return &documentService{
		docRepo:      docRepo,
		store:        store,
		blobs:        blobs,
		queue:        queue,
		excerptCache: excerptCache,
	}
}

// Upload 保存原始文件，创建 pending 状态的文档记录并投递后台处理任务，不等待处理完成。
func (s *documentService) Upload(ctx context.Context, userID uint, req UploadRequest) (*model.Document, error) {
	fileName := filepath.Base(strings.TrimSpace(req.FileName))
	if fileName == "" || fileName == "." || req.Content == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := supportedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	documentID := uuid.NewString()
	objectName := fmt.Sprintf("documents/%d/%s/%s", userID, documentID, fileName)
	log.Infof("[DocumentService] 开始上传文档, userID: %d, documentID: %s, fileName: %s, size: %d", userID, documentID, fileName, req.Size)

	if err := s.blobs.Put(ctx, objectName, req.Content, req.Size, req.ContentType); err != nil {
		log.Errorf("[DocumentService] 上传文件到对象存储失败, documentID: %s, error: %v", documentID, err)
		return nil, err
	}

	doc := &model.Document{
		DocumentID: documentID,
		UserID:     userID,
		Title:      title,
		FileName:   fileName,
		ObjectName: objectName,
		Size:       req.Size,
		Status:     model.DocumentPending,
	}
	if err := s.docRepo.Create(doc); err != nil {
		log.Errorf("[DocumentService] 创建文档记录失败, documentID: %s, error: %v", documentID, err)
		if rmErr := s.blobs.Remove(ctx, objectName); rmErr != nil {
			log.Warnf("[DocumentService] 回滚对象存储失败, object: %s, error: %v", objectName, rmErr)
		}
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	task := tasks.DocumentIngestTask{
		DocumentID: documentID,
		UserID:     userID,
		ObjectName: objectName,
		FileName:   fileName,
		Title:      title,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		log.Errorf("[DocumentService] 投递处理任务失败, documentID: %s, error: %v", documentID, err)
		msg := fmt.Sprintf("投递处理任务失败: %v", err)
		if upErr := s.docRepo.UpdateStatus(documentID, model.DocumentFailed, msg); upErr != nil {
			log.Warnf("[DocumentService] 更新文档状态失败, documentID: %s, error: %v", documentID, upErr)
		}
		return nil, fmt.Errorf("投递处理任务失败: %w", err)
	}

	log.Infof("[DocumentService] 文档已进入处理队列, documentID: %s", documentID)
	return doc, nil
}

// List 列出用户的全部文档。
func (s *documentService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	return s.docRepo.FindByUserID(userID)
}

// Status 返回文档的处理状态以及目前已写入的上下文条目数。
func (s *documentService) Status(ctx context.Context, userID uint, documentID string) (*model.DocumentStatusDTO, error) {
	doc, err := s.findDocument(userID, documentID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountByDocument(userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("统计文档上下文失败: %w", err)
	}
	return &model.DocumentStatusDTO{
		DocumentID: doc.DocumentID,
		Status:     doc.Status,
		Error:      doc.ErrorMessage,
		EntryCount: count,
		UpdatedAt:  model.LocalTime(doc.UpdatedAt),
	}, nil
}

// Delete 尽力删除文档及其派生数据：对象存储中的文件、上下文分块与索引、摘录缓存，最后是文档记录。
// 前面的子步骤失败只记录日志，不会中断后续清理。
func (s *documentService) Delete(ctx context.Context, userID uint, documentID string) error {
	doc, err := s.findDocument(userID, documentID)
	if err != nil {
		return err
	}
	log.Infof("[DocumentService] 开始删除文档, documentID: %s, userID: %d", documentID, userID)

	if err := s.blobs.Remove(ctx, doc.ObjectName); err != nil {
		log.Warnf("[DocumentService] 删除原始文件失败, documentID: %s, error: %v", documentID, err)
	}
	if err := s.store.DeleteDocument(ctx, userID, documentID); err != nil {
		log.Warnf("[DocumentService] 删除文档上下文失败, documentID: %s, error: %v", documentID, err)
	}
	if err := s.excerptCache.Delete(ctx, userID, documentID); err != nil {
		log.Warnf("[DocumentService] 删除摘录缓存失败, documentID: %s, error: %v", documentID, err)
	}
	if err := s.docRepo.Delete(documentID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		log.Errorf("[DocumentService] 删除文档记录失败, documentID: %s, error: %v", documentID, err)
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	log.Infof("[DocumentService] 文档删除完成, documentID: %s", documentID)
	return nil
}

func (s *documentService) findDocument(userID uint, documentID string) (*model.Document, error) {
	doc, err := s.docRepo.FindByDocumentID(documentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	return doc, nil
}
