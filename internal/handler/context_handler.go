package handler

import (
	"formfill-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ContextHandler 负责处理手动事实的增删查请求。
type ContextHandler struct {
	contextService service.ContextService
}

// NewContextHandler 创建一个新的 ContextHandler 实例。
func NewContextHandler(contextService service.ContextService) *ContextHandler {
	return &ContextHandler{contextService: contextService}
}

type factRequest struct {
	Key   string   `json:"key" binding:"required"`
	Value string   `json:"value" binding:"required"`
	Tags  []string `json:"tags"`
}

// AddFact 添加一条事实。
func (h *ContextHandler) AddFact(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req factRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效: "+err.Error())
		return
	}
	chunk, err := h.contextService.AddFact(c.Request.Context(), userID, service.FactRequest{
		Key:   req.Key,
		Value: req.Value,
		Tags:  req.Tags,
	})
	if err != nil {
		respondError(c, "AddFact", err)
		return
	}
	success(c, "添加成功", chunk)
}

// ListFacts 列出用户手动添加的事实。
func (h *ContextHandler) ListFacts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	facts, err := h.contextService.ListFacts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "ListFacts", err)
		return
	}
	success(c, "获取成功", facts)
}

// DeleteFact 删除一条事实。
func (h *ContextHandler) DeleteFact(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.contextService.DeleteFact(c.Request.Context(), userID, c.Param("entryId")); err != nil {
		respondError(c, "DeleteFact", err)
		return
	}
	success(c, "删除成功", nil)
}
