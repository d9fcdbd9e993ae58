package domains

import "github.com/google/uuid"

// User is an account known to the platform.
type User struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Email    string    `json:"email" db:"email"`
	GroupID  uuid.UUID `json:"group_id" db:"group_id"`
	Verified bool      `json:"verified" db:"verified"`
}

// Group is a permission group granting access to a set of presets.
type Group struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	IsAdmin        bool        `json:"is_admin" db:"is_admin"`
	PresetsAllowed []uuid.UUID `json:"presets_allowed" db:"presets_allowed"`
}

// AllowsPreset reports whether the group's allow-list contains the preset.
func (g *Group) AllowsPreset(presetID uuid.UUID) bool {
	for _, id := range g.PresetsAllowed {
		if id == presetID {
			return true
		}
	}
	return false
}
