package handler

import (
	"net/http"

	"formfill-go/internal/middleware"
	"formfill-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总了所有需要注册路由的处理器。
type Handlers struct {
	Form     *FormHandler
	Document *DocumentHandler
	Context  *ContextHandler
}

// NewRouter 创建路由引擎并注册全部 /api/v1 路由，除健康检查外都需要认证。
func NewRouter(jwtManager *token.JWTManager, h Handlers) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		forms := apiV1.Group("/forms")
		{
			forms.POST("/detect", h.Form.Detect)
			forms.GET("/:formId", h.Form.Get)
			forms.POST("/:formId/fields/:fieldName/refine", h.Form.Refine)
			forms.POST("/:formId/submissions", h.Form.RecordSubmission)
		}

		documents := apiV1.Group("/documents")
		{
			documents.POST("", h.Document.Upload)
			documents.GET("", h.Document.List)
			documents.GET("/:documentId/status", h.Document.Status)
			documents.GET("/:documentId/status/ws", h.Document.WatchStatus)
			documents.DELETE("/:documentId", h.Document.Delete)
		}

		contextGroup := apiV1.Group("/context")
		{
			contextGroup.POST("", h.Context.AddFact)
			contextGroup.GET("", h.Context.ListFacts)
			contextGroup.DELETE("/:entryId", h.Context.DeleteFact)
		}
	}
	return r
}
