package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/util"
)

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by websocket clients.
func TokenFromRequest(c *gin.Context) string {
	return BearerToken(c.Request)
}

// BearerToken is TokenFromRequest for handlers served outside gin
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		return strings.TrimSpace(header)
	}
	return r.URL.Query().Get("token")
}

// OptionalAuthMiddleware sets the actor when a valid token is presented and
// lets anonymous requests through. A token that is present but invalid is
// rejected rather than silently downgraded to anonymous.
func OptionalAuthMiddleware(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := v.ValidateToken(tokenString)
		if err != nil {
			util.RespondWithAPIError(c, apperrors.Unauthorized(err.Error()))
			c.Abort()
			return
		}

		c.Set(util.ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

// RequireAuthMiddleware rejects requests without a valid token
func RequireAuthMiddleware(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := v.ValidateToken(TokenFromRequest(c))
		if err != nil {
			util.RespondWithAPIError(c, apperrors.Unauthorized(err.Error()))
			c.Abort()
			return
		}

		c.Set(util.ContextUserIDKey, claims.UserID)
		c.Next()
	}
}
