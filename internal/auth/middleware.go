package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolattend/internal/apperr"
)

const principalKey = "principal"

// Principal is the authenticated caller attached to a request.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Resolver loads the account a token was issued for. It returns an apperr.NotFound
// error when the account no longer exists.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Principal, error)
}

// Gate verifies bearer tokens and enforces capabilities.
type Gate struct {
	resolver   Resolver
	signingKey string
	issuer     string
}

func NewGate(resolver Resolver, signingKey, issuer string) *Gate {
	return &Gate{resolver: resolver, signingKey: signingKey, issuer: issuer}
}

// Authenticate enforces bearer JWT tokens signed with HS256 and resolves the caller.
func (g *Gate) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token, authorization denied"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, g.signingKey, g.issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is not valid"})
			return
		}
		p, err := g.resolver.Resolve(c.Request.Context(), claims.Subject)
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is not valid"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Require rejects callers whose role lacks capability need. It must run after Authenticate.
func (g *Gate) Require(need Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token, authorization denied"})
			return
		}
		if !p.Role.Can(need) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
