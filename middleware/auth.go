package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies a dashboard user and the view they may see
type Claims struct {
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	// Agent is the sheet name of an agent user, empty for other roles
	Agent string `json:"agent,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed token for user
func GenerateToken(user *config.User, cfg *config.AuthConfig) (string, time.Time, error) {
	if cfg.JWTSecret == "" {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}
	now := time.Now()
	expiresAt := now.Add(time.Duration(cfg.TokenExpireHours) * time.Hour)

	claims := Claims{
		Username: user.Username,
		Role:     model.Role(user.Role),
		Agent:    user.Agent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// AuthMiddleware validates the bearer token and stores the caller's
// identity in the gin and logger contexts
func AuthMiddleware(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// without a secret any self-signed token would verify
		if cfg.JWTSecret == "" {
			abortWithError(c, http.StatusUnauthorized, "Authentication is not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			abortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if !claims.Role.Valid() {
			abortWithError(c, http.StatusForbidden, "Unknown role")
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Set("agent", claims.Agent)

		ctx := logger.WithValue(c.Request.Context(), logger.UsernameKey, claims.Username)
		ctx = logger.WithValue(ctx, logger.RoleKey, string(claims.Role))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, "Insufficient permissions")
	}
}

// GetUsername gets the username from context
func GetUsername(c *gin.Context) string {
	return c.GetString("username")
}

// GetRole gets the caller's role from context
func GetRole(c *gin.Context) model.Role {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(model.Role); ok {
			return r
		}
	}
	return ""
}

// GetAgent gets the agent name bound to the caller's token
func GetAgent(c *gin.Context) string {
	return c.GetString("agent")
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": GetRequestID(c),
	})
}
