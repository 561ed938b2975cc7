// README: Firebase ID-token auth middleware and caller accessors.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fooddash/internal/infra"
	"fooddash/internal/types"
)

const (
	ctxKeyUID        = "caller_uid"
	ctxKeyRole       = "caller_role"
	ctxKeyMerchantID = "caller_merchant_id"
)

// Auth verifies the bearer token and stores uid and role claims on the context.
// Tokens without a role claim are treated as clients.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		role := types.RoleClient
		if r, ok := token.Claims["role"].(string); ok && types.Role(r).Valid() && types.Role(r) != types.RoleSystem {
			role = types.Role(r)
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyRole, string(role))
		if m, ok := token.Claims["merchant_id"].(string); ok {
			c.Set(ctxKeyMerchantID, m)
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller holds one of roles.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := types.Role(CallerRole(c))
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}

// Caller is the acting identity for domain calls. The uid is what history records;
// merchant staff also carry their merchant id for party checks.
func Caller(c *gin.Context) types.Actor {
	a := types.Actor{ID: types.ID(CallerUID(c)), Role: types.Role(CallerRole(c))}
	if a.Role == types.RoleMerchant {
		a.Merchant = types.ID(c.GetString(ctxKeyMerchantID))
	}
	return a
}
