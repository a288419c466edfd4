package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ymliu/convo/internal/auth"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/pkg/log"
	"github.com/ymliu/convo/pkg/response"
)

const (
	identityKey   = "identity"
	authHeaderKey = "Authorization"
	bearerPrefix  = "Bearer "
)

// AuthMiddleware validates bearer tokens through the identity gate.
type AuthMiddleware struct {
	gate auth.Authenticator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(gate auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{gate: gate}
}

// RequireAuth returns a Gin middleware that rejects requests without a
// valid bearer token and stores the resolved identity in the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authHeaderKey)
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		credential := strings.TrimPrefix(header, bearerPrefix)
		identity, err := m.gate.Authenticate(c.Request.Context(), credential)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(identityKey, *identity)
		c.Set(log.FieldUserID, identity.UserID)
		c.Set(log.FieldUsername, identity.Username)

		c.Next()
	}
}

// GetIdentity extracts the resolved identity from the Gin context.
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}
