package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openboard/openboard/internal/slogging"
)

const (
	// ClaimsContextKey is the gin context key for validated JWT claims
	ClaimsContextKey = "claims"
	// UsernameContextKey is the gin context key for the resolved identity
	UsernameContextKey = "username"
)

// Middleware provides authentication middleware for Gin
type Middleware struct {
	service *Service
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// bearerToken extracts the token from an Authorization header value
func bearerToken(authHeader string) (string, bool) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthRequired rejects requests without a valid Bearer token
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := slogging.Get().WithContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
			})
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header format must be Bearer {token}",
			})
			return
		}

		claims, err := m.service.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("Authentication failed: %v client_ip=%s", err, c.ClientIP())
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(ClaimsContextKey, claims)
		c.Set(UsernameContextKey, claims.Username)
		c.Next()
	}
}

// AuthOptional resolves an identity when a valid token is present but never
// rejects the request; absent or invalid credentials leave the request
// unauthenticated.
func (m *Middleware) AuthOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := m.service.ValidateToken(tokenString); err == nil {
				c.Set(ClaimsContextKey, claims)
				c.Set(UsernameContextKey, claims.Username)
			}
		}
		c.Next()
	}
}

// UsernameFromContext returns the identity resolved by the middleware
func UsernameFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(UsernameContextKey)
	if !ok {
		return "", false
	}
	username, ok := v.(string)
	return username, ok && username != ""
}
