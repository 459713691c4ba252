package models

// Role is what an authenticated actor may do in this service
type Role string

// Role constants
const (
	RoleCollaborator Role = "collaborator"
	RoleReviewer     Role = "reviewer"
	RoleManager      Role = "manager"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleCollaborator, RoleReviewer, RoleManager:
		return true
	}
	return false
}

// Actor is the already-authenticated caller supplied by the identity provider
type Actor struct {
	UID         string
	DisplayName string
	Email       string
	Role        Role
}

// CanReview reports whether the actor may run the review flow
func (a Actor) CanReview() bool {
	return a.Role == RoleReviewer || a.Role == RoleManager
}
