// README: Auth middleware; verifies the bearer token and exposes the caller's uid, role and organization.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parcel/internal/infra"
	"parcel/internal/types"
)

const (
	ctxUID  = "caller_uid"
	ctxRole = "caller_role"
	ctxOrg  = "caller_org"
)

// Auth rejects requests without a valid "Bearer <token>" header. The role and
// org_id custom claims are optional; missing ones leave the value empty.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, claimString(token.Claims, "role"))
		c.Set(ctxOrg, claimString(token.Claims, "org_id"))
		c.Next()
	}
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

func CallerOrg(c *gin.Context) string {
	return c.GetString(ctxOrg)
}

// Caller assembles the actor facts for service calls.
func Caller(c *gin.Context) types.Actor {
	return types.Actor{
		UserID: types.ID(CallerUID(c)),
		OrgID:  types.ID(CallerOrg(c)),
		Role:   types.Role(CallerRole(c)),
	}
}
