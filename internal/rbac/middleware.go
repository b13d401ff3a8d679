package rbac

import (
	"net/http"

	"audit-portal/internal/auth"

	"github.com/gin-gonic/gin"
)

// Require admits callers whose role satisfies allow.
// Rules:
// - admin bypasses all checks
// - unknown roles are always denied
func Require(allow func(role string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		switch {
		case !IsKnown(role):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case IsAdmin(role), allow(role):
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		}
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return Require(func(role string) bool {
		_, ok := set[role]
		return ok
	})
}

// RequireStaff admits the firm's own roles.
func RequireStaff() gin.HandlerFunc { return Require(IsStaff) }

// RequireCollaborator admits balance-owning roles.
func RequireCollaborator() gin.HandlerFunc { return Require(IsCollaborator) }

// RequireAdmin admits administrators only.
func RequireAdmin() gin.HandlerFunc { return Require(func(string) bool { return false }) }
