package handler

import (
	"formfill-go/internal/service"

	"github.com/gin-gonic/gin"
)

// FormHandler 负责处理表单检测、精修与提交相关的 API 请求。
type FormHandler struct {
	formService service.FormService
}

// NewFormHandler 创建一个新的 FormHandler 实例。
func NewFormHandler(formService service.FormService) *FormHandler {
	return &FormHandler{formService: formService}
}

type detectRequest struct {
	HTML         string            `json:"html" binding:"required"`
	URL          string            `json:"url"`
	FieldContext map[string]string `json:"fieldContext"`
}

// Detect 抽取表单字段并返回每个字段的候选值。
func (h *FormHandler) Detect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效: "+err.Error())
		return
	}

	record, err := h.formService.Detect(c.Request.Context(), userID, service.DetectRequest{
		HTML:         req.HTML,
		URL:          req.URL,
		FieldContext: req.FieldContext,
	})
	if err != nil {
		respondError(c, "Detect", err)
		return
	}
	success(c, "表单检测成功", record)
}

// Get 返回一条已保存的表单记录。
func (h *FormHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	record, err := h.formService.Get(c.Request.Context(), userID, c.Param("formId"))
	if err != nil {
		respondError(c, "GetForm", err)
		return
	}
	success(c, "获取表单成功", record)
}

type refineRequest struct {
	DocumentIDs []string `json:"documentIds"`
	Context     string   `json:"context"`
	Instruction string   `json:"instruction"`
}

// Refine 为单个字段重新生成候选。
func (h *FormHandler) Refine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req refineRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "请求参数无效: "+err.Error())
			return
		}
	}

	fieldName := c.Param("fieldName")
	suggestions, err := h.formService.Refine(c.Request.Context(), userID, c.Param("formId"), fieldName, service.RefineRequest{
		DocumentIDs:  req.DocumentIDs,
		ExtraContext: req.Context,
		Instruction:  req.Instruction,
	})
	if err != nil {
		respondError(c, "Refine", err)
		return
	}
	success(c, "字段精修成功", gin.H{
		"fieldName":   fieldName,
		"suggestions": suggestions,
	})
}

type submissionRequest struct {
	Values map[string]string `json:"values" binding:"required"`
}

// RecordSubmission 将用户实际提交的值记录为上下文。
func (h *FormHandler) RecordSubmission(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效: "+err.Error())
		return
	}
	n, err := h.formService.RecordSubmission(c.Request.Context(), userID, c.Param("formId"), req.Values)
	if err != nil {
		respondError(c, "RecordSubmission", err)
		return
	}
	success(c, "提交记录成功", gin.H{"recorded": n})
}
