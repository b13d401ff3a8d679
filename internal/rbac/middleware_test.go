package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"audit-portal/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithRole(role string, mw gin.HandlerFunc) int {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, mw, func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	if code := serveWithRole(RoleAdmin, RequireAnyRole(RoleCompany)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesOtherRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	if code := serveWithRole(RoleAuditor, RequireCollaborator()); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveWithRole(RolePartner, RequireCollaborator()); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_UnknownRoleDenied(t *testing.T) {
	gin.SetMode(gin.TestMode)

	if code := serveWithRole("network_operator", RequireAnyRole("network_operator")); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)

	if code := serveWithRole("", RequireStaff()); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRoleClassification(t *testing.T) {
	if !IsStaff(RoleAuditor) || IsStaff(RoleCompany) {
		t.Fatalf("staff classification wrong")
	}
	if !IsCollaborator(RolePartner) || IsCollaborator(RoleAdmin) {
		t.Fatalf("collaborator classification wrong")
	}
}

func TestRequireAdmin_OnlyAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for role, want := range map[string]int{
		RoleAdmin:   200,
		RoleAuditor: 403,
		RoleCompany: 403,
		RolePartner: 403,
	} {
		if code := serveWithRole(role, RequireAdmin()); code != want {
			t.Fatalf("%s: expected %d, got %d", role, want, code)
		}
	}
}

func TestRequireStaff_AdminAndAuditor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	if code := serveWithRole(RoleAuditor, RequireStaff()); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := serveWithRole(RoleCompany, RequireStaff()); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}
