// README: Firebase auth middleware; extracts caller identity and organization.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lifeline/internal/infra"
)

const (
	ctxKeyUID  = "auth_uid"
	ctxKeyOrg  = "auth_org"
	ctxKeyRole = "auth_role"
)

// Auth verifies the Firebase bearer token and stores the caller's uid,
// organization id, and role on the gin context. Requests without a valid
// token are rejected with 401.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization must be a bearer token"})
			return
		}

		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxKeyUID, token.UID)
		if org, ok := token.Claims["org_id"].(string); ok {
			c.Set(ctxKeyOrg, org)
		}
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxKeyRole, role)
		}
		c.Next()
	}
}

// CallerUID returns the authenticated user's uid, empty when unauthenticated.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

// CallerOrg returns the organization id from the token's custom claims.
// Requesting hospitals and blood banks both carry one.
func CallerOrg(c *gin.Context) string {
	return c.GetString(ctxKeyOrg)
}

// CallerRole returns the role claim ("requester" or "organization").
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}
