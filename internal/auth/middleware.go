package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIKey carries the caller's API key on every authenticated route.
	HeaderAPIKey = "X-API-Key"

	ContextUserKey  = "user"
	ContextOwnerKey = "owner_id"
)

// Middleware verifies the X-API-Key header and injects the resolved owner
// into the request context.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAPIKey)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			c.Abort()
			return
		}

		user, err := svc.Verify(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			} else {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable"})
			}
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextOwnerKey, user.ID)
		c.Next()
	}
}

// OwnerID returns the verified owner of the current request.
func OwnerID(c *gin.Context) string {
	return c.GetString(ContextOwnerKey)
}
