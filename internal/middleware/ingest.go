package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IngestTokenMiddleware guards the heartbeat ingest endpoint with a
// shared token. An empty token leaves ingestion open; agents then need
// no credentials at all.
func IngestTokenMiddleware(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" {
			ctx.Next()
			return
		}

		presented := ctx.GetHeader("X-Heartbeat-Token")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid heartbeat token"})
			return
		}
		ctx.Next()
	}
}
