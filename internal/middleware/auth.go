// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"formfill-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ContextUserIDKey 是 AuthMiddleware 写入 gin.Context 的用户 ID 键。
const ContextUserIDKey = "userID"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 从 Authorization 请求头中提取；浏览器无法为 WebSocket 设置请求头，因此也接受 ?token= 查询参数。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含有效的授权信息"})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		// 所有读写都按该用户 ID 隔离
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set("claims", claims)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	// Token 通常以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
	const bearerPrefix = "Bearer "
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return "", false
		}
		t := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		return t, t != ""
	}
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t, true
	}
	return "", false
}
