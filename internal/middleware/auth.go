package middleware

import (
	"net/http"
	"strings"

	"pulseguard/internal/auth"

	"github.com/gin-gonic/gin"
)

// ContextSubjectKey holds the authenticated operator subject.
const ContextSubjectKey = "subject"

// AuthMiddleware is the explicit guard in front of operator routes:
// Bearer token, HS256, subject stored in the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		subject, err := auth.VerifyToken(secret, parts[1])
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		ctx.Set(ContextSubjectKey, subject)
		ctx.Next()
	}
}
