package middlewares

import (
	"strings"

	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderUser          = "X-User"
	HeaderCorrelationId = "X-Correlation-Id"
)

// SessionMiddleware records the operator named by the gateway in X-User as the request actor.
// Authentication happens upstream.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := strings.TrimSpace(c.Request.Header.Get(HeaderUser))
		if username == "" {
			c.Next()
			return
		}
		ctx := utils.SetUsernameInContext(c.Request.Context(), username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware reuses the caller's correlation id or mints one, and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.Request.Header.Get(HeaderCorrelationId))
		if cid == "" || len(cid) > 128 {
			cid = uuid.NewString()
		}
		c.Writer.Header().Set(HeaderCorrelationId, cid)
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
