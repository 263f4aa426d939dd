package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	hearingIDContextKey = "auth_hearing_id"
	authTokenContextKey = "auth_token"
)

// Middleware validates bearer tokens and stores the authorised hearing in the
// context. When the route carries an :id parameter it must name that hearing.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		hearingID, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if id := c.Param("id"); id != "" && id != hearingID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not grant access to this hearing"})
			return
		}
		c.Set(hearingIDContextKey, hearingID)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// HearingIDFromContext retrieves the authorised hearing id from the gin context.
func HearingIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(hearingIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
