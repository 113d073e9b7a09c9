package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/models"
)

const userKey = "session_user"

func parseUser(c *gin.Context, cfg *config.Config) (*models.User, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("missing bearer token")
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("missing user_id claim")
	}

	user := &models.User{ID: int(userID)}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}

	return user, nil
}

// RequireAuth rejects requests without a valid session token.
func RequireAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := parseUser(c, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// OptionalAuth attaches the session user when present but lets anonymous
// requests through (free games are playable without an account).
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, err := parseUser(c, cfg); err == nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// CurrentUser returns the session user or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
