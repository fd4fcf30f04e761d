package domain

// Identity is the resolved view of a user as seen by the lifecycle engine:
// who they are, where to reach them, and what they may do.
type Identity struct {
	ID           string
	DisplayName  string
	Email        string
	Role         Role
	ManagedTrack string
	Expertise    []string
}

// IsAdmin reports whether the identity holds the administrator role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdministrator }

// Manages reports whether the identity is the track manager of track.
func (i Identity) Manages(track string) bool {
	return i.Role == RoleTrackManager && track != "" && i.ManagedTrack == track
}

// IdentityFromUser converts a stored user to an Identity.
func IdentityFromUser(u User) Identity {
	id := Identity{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
		Expertise:   SplitList(u.Expertise),
	}
	if u.ManagedTrack != nil {
		id.ManagedTrack = *u.ManagedTrack
	}
	return id
}
