package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"motivechat/internal/apperr"
)

const userIDContextKey = "auth_user_id"

// Middleware validates bearer tokens and stores the authenticated user in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			abort(c, apperr.ErrInvalidToken, "authorization required")
			return
		}
		userID, err := s.ValidateToken(authToken)
		if err != nil {
			abort(c, err, err.Error())
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func abort(c *gin.Context, err error, msg string) {
	c.AbortWithStatusJSON(apperr.Status(err), gin.H{
		"success": false,
		"code":    apperr.Code(err),
		"error":   msg,
	})
}
