package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
	RoleCompany = "company"
	RolePartner = "partner"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// IsStaff reports whether the role works consultations on the firm's side.
func IsStaff(role string) bool { return role == RoleAdmin || role == RoleAuditor }

// IsCollaborator reports whether the role owns an hour balance and requests consultations.
func IsCollaborator(role string) bool { return role == RoleCompany || role == RolePartner }

func IsKnown(role string) bool { return IsStaff(role) || IsCollaborator(role) }
