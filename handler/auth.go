package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/middleware"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	config *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{config: cfg}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt string     `json:"expires_at"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	Agent     string     `json:"agent,omitempty"`
}

// Login checks the configured users and issues a token carrying the
// user's role and, for agents, their sheet name
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user := h.config.FindUser(req.Username)
	if user == nil || subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) != 1 {
		logger.Warn(c.Request.Context(), "login failed", "username", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	role := model.Role(user.Role)
	if !role.Valid() || (role == model.RoleAgent && user.Agent == "") {
		logger.Error(c.Request.Context(), "user misconfigured", "username", user.Username, "role", user.Role)
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is not configured for the dashboard"})
		return
	}

	token, expiresAt, err := middleware.GenerateToken(user, &h.config.Auth)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Username:  user.Username,
		Role:      role,
		Agent:     user.Agent,
	})
}

// GetCurrentUser returns the identity carried by the caller's token
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	resp := gin.H{
		"username": middleware.GetUsername(c),
		"role":     middleware.GetRole(c),
	}
	if agent := middleware.GetAgent(c); agent != "" {
		resp["agent"] = agent
	}
	c.JSON(http.StatusOK, resp)
}
