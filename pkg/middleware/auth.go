package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/autoschool-chat/pkg/jwt"
	"github.com/weiawesome/autoschool-chat/pkg/response"
)

const (
	UserIDKey     = "user_id"
	RolesKey      = "roles"
	ClaimsKey     = "claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// IdentityFunc extracts the caller id from validated claims.
type IdentityFunc func(*jwt.Claims) string

// AuthMiddleware validates JWT tokens locally.
type AuthMiddleware struct {
	validator TokenValidator
	identity  IdentityFunc
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator, identity IdentityFunc) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		identity:  identity,
	}
}

// RequireAuth returns a Gin middleware that validates JWT tokens.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader(AuthHeaderKey))
		if !ok {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}

		userID := m.identity(claims)
		if userID == "" {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "token carries no user id")
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// BearerToken strips the bearer prefix from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetRoles extracts roles from Gin context.
func GetRoles(c *gin.Context) []string {
	if roles, exists := c.Get(RolesKey); exists {
		if r, ok := roles.([]string); ok {
			return r
		}
	}
	return nil
}
