package middleware

import (
	"github.com/gin-gonic/gin"
)

// CacheControl sets the Cache-Control header, e.g. "private, max-age=60" or "no-store".
func CacheControl(directive string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", directive)
		c.Next()
	}
}
