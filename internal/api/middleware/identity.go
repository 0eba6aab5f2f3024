package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/lease_go_server/internal/pkg/response"
)

const (
	UserIDHeader = "X-User-ID"
	UserIDKey    = "userID"
)

// UserIdentity 读取网关注入的用户标识，缺失时返回 1001
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			response.AuthError(c, "请提供 X-User-ID")
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}
