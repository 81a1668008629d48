package util

import (
	"github.com/gin-gonic/gin"
)

// ContextUserIDKey is where the auth middleware stores the authenticated actor
const ContextUserIDKey = "user_id"

// ActorFromContext returns the authenticated actor id, or "" for anonymous requests.
// It never writes a response; the ledger decides what anonymous actors may do.
func ActorFromContext(c *gin.Context) string {
	userID, exists := c.Get(ContextUserIDKey)
	if !exists {
		return ""
	}
	userIDStr, _ := userID.(string)
	return userIDStr
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the user is not authenticated it responds with 401 and returns false.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID := ActorFromContext(c)
	if userID == "" {
		RespondUnauthorized(c)
		return "", false
	}
	return userID, true
}
