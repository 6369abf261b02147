package handler

import (
	"net/http"
	"time"

	"formfill-go/internal/model"
	"formfill-go/internal/service"
	"formfill-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// maxUploadSize 是单个上传文件的大小上限 (20MB)。
const maxUploadSize = 20 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService   service.DocumentService
	pollInterval time.Duration
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。pollInterval 是状态推送的轮询间隔。
func NewDocumentHandler(docService service.DocumentService, pollInterval time.Duration) *DocumentHandler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &DocumentHandler{docService: docService, pollInterval: pollInterval}
}

// Upload 接收一个 multipart 文件，立即返回 pending 状态的文档，处理在后台进行。
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件")
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": http.StatusRequestEntityTooLarge, "message": "文件过大"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Error("Upload: 打开上传文件失败", err)
		badRequest(c, "无法读取上传文件")
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), userID, service.UploadRequest{
		FileName:    fileHeader.Filename,
		Title:       c.PostForm("title"),
		Size:        fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		respondError(c, "Upload", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "文档已接收，正在后台处理",
		"data":    doc,
	})
}

// List 列出用户上传的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	docs, err := h.docService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "ListDocuments", err)
		return
	}
	success(c, "获取文档列表成功", docs)
}

// Status 返回文档的处理状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	status, err := h.docService.Status(c.Request.Context(), userID, c.Param("documentId"))
	if err != nil {
		respondError(c, "DocumentStatus", err)
		return
	}
	success(c, "获取文档状态成功", status)
}

// Delete 删除文档及其派生的上下文。
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), userID, c.Param("documentId")); err != nil {
		respondError(c, "DeleteDocument", err)
		return
	}
	success(c, "删除文档成功", nil)
}

// WatchStatus 通过 WebSocket 推送文档状态，状态变化时发送一次，进入终态后关闭连接。
func (h *DocumentHandler) WatchStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	documentID := c.Param("documentId")

	// 升级前先确认文档存在，不存在时按普通 HTTP 返回 404
	first, err := h.docService.Status(c.Request.Context(), userID, documentID)
	if err != nil {
		respondError(c, "WatchStatus", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	// 读协程只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	current := first
	var last *model.DocumentStatusDTO
	for {
		if last == nil || changed(last, current) {
			if err := conn.WriteJSON(current); err != nil {
				log.Warnf("[WatchStatus] 推送状态失败, documentID: %s, error: %v", documentID, err)
				return
			}
			last = current
		}
		if current.Status.IsTerminal() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(current.Status)))
			return
		}

		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		next, err := h.docService.Status(c.Request.Context(), userID, documentID)
		if err != nil {
			log.Warnf("[WatchStatus] 查询状态失败, documentID: %s, error: %v", documentID, err)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable"))
			return
		}
		current = next
	}
}

func changed(a, b *model.DocumentStatusDTO) bool {
	return a.Status != b.Status || a.EntryCount != b.EntryCount || a.Error != b.Error
}
