// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"formfill-go/internal/middleware"
	"formfill-go/internal/service"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// currentUserID 读取 AuthMiddleware 写入的用户 ID。
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无法获取用户信息"})
		return 0, false
	}
	userID, ok := v.(uint)
	if !ok || userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户信息无效"})
		return 0, false
	}
	return userID, true
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message})
}

// respondError 将业务错误映射为 HTTP 状态码，未识别的错误按 500 处理并记录日志。
func respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	var shapeErr *embedding.ShapeError
	switch {
	case errors.Is(err, service.ErrFormNotFound),
		errors.Is(err, service.ErrFieldNotFound),
		errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrContextEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnsupportedFileType):
		status = http.StatusUnsupportedMediaType
	case errors.As(err, &shapeErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		log.Errorf("[%s] 请求处理失败: %v", op, err)
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error()})
}
