package domain

// Role identifies either a contract party or the admin override. The empty
// role is never valid.
type Role string

const (
	RoleArtist Role = "artist"
	RoleVenue  Role = "venue"
	RoleAdmin  Role = "admin"
)

// Party reports whether r is one of the two contract party roles.
func (r Role) Party() bool {
	return r == RoleArtist || r == RoleVenue
}

// Actor is the already-authenticated acting user, as supplied by the
// identity collaborator. The core treats it as opaque input.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Admin reports whether the actor carries the admin override role.
func (a Actor) Admin() bool {
	return a.Role == RoleAdmin
}
