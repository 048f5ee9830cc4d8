package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openboard/openboard/internal/slogging"
)

// Handlers exposes the REST authentication endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates the auth handler set
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts the auth endpoints on the router group
func (h *Handlers) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/register", h.Register)
	group.POST("/login", h.Login)
	group.POST("/refresh", h.Refresh)
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email"`
}

type authResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Username     string `json:"username"`
	ExpiresIn    int    `json:"expires_in"`
}

// Register creates an account and returns a token pair
func (h *Handlers) Register(c *gin.Context) {
	logger := slogging.Get().WithContext(c)

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Registration failed: username and password are required"})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		logger.Warn("Registration failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "Registration failed: " + publicAuthError(err)})
		return
	}

	tokens, err := h.service.GenerateTokens(c.Request.Context(), user)
	if err != nil {
		logger.Error("Token generation failed after registration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Registration failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Token:        tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Username:     user.DisplayName,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Login verifies credentials and returns a token pair
func (h *Handlers) Login(c *gin.Context) {
	logger := slogging.Get().WithContext(c)

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Login failed: username and password are required"})
		return
	}

	user, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.Warn("Login failed client_ip=%s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"message": "Login failed: " + publicAuthError(err)})
		return
	}

	tokens, err := h.service.GenerateTokens(c.Request.Context(), user)
	if err != nil {
		logger.Error("Token generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Token:        tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Username:     user.DisplayName,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new token pair
func (h *Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "refresh_token is required"})
		return
	}

	tokens, err := h.service.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":         tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_in":    tokens.ExpiresIn,
	})
}

// publicAuthError maps auth errors to messages safe to show callers
func publicAuthError(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return "username already exists"
	case errors.Is(err, ErrDuplicateEmail):
		return "email already exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid username or password"
	default:
		return "internal error"
	}
}
