package domains

import (
	"time"

	"github.com/google/uuid"
)

// GameServer represents one hosted game-server instance. Exactly one
// node owns it at a time. Port stays 0 until the node confirms the
// allocation; local state never runs ahead of confirmed remote state.
type GameServer struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	OwnerID      uuid.UUID   `json:"owner_id" db:"owner_id"`
	SubownerIDs  []uuid.UUID `json:"subowner_ids" db:"subowner_ids"`
	PresetID     uuid.UUID   `json:"preset_id" db:"preset_id"`
	NodeID       uuid.UUID   `json:"node_id" db:"node_id"`
	Name         string      `json:"name" db:"name"`
	MOTD         string      `json:"motd" db:"motd"`
	Port         int         `json:"port" db:"port"`
	Online       bool        `json:"online" db:"online"`
	SFTPPassword string      `json:"-" db:"sftp_password"`
	Plugins      []string    `json:"plugins" db:"plugins"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// HasAccess reports whether the principal is the owner or a registered
// sub-owner of the instance.
func (s *GameServer) HasAccess(userID uuid.UUID) bool {
	if s.OwnerID == userID {
		return true
	}
	for _, id := range s.SubownerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsSubowner reports whether the user is a registered sub-owner.
func (s *GameServer) IsSubowner(userID uuid.UUID) bool {
	for _, id := range s.SubownerIDs {
		if id == userID {
			return true
		}
	}
	return false
}
