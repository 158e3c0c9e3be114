package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"Community_Sync/internal/pkg"
	"Community_Sync/internal/repository/redis"
)

const ContextUserIDKey = "user_id"

// TokenChecker confirms that a parsed token is still the one issued to the user.
type TokenChecker interface {
	CheckUserToken(ctx context.Context, userID, token string) error
}

// AuthMiddleware resolves the caller's identity from a bearer token. Requests
// without an Authorization header continue anonymously; a header that does
// not verify is rejected. checker may be nil.
func AuthMiddleware(tokens *pkg.TokenManager, checker TokenChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization format"})
			return
		}

		tokenStr := parts[1]
		claims, err := tokens.ParseAccess(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid or expired token"})
			return
		}

		if checker != nil {
			err := checker.CheckUserToken(c.Request.Context(), claims.UserID, tokenStr)
			switch {
			case errors.Is(err, redis.ErrTokenNotFound), errors.Is(err, redis.ErrTokenMismatch):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Account has been logging elsewhere"})
				return
			case err != nil:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
				return
			}
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}
