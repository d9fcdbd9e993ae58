package domains

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus holds the last-known resource snapshot for a node.
// All fields are pointers: a node that has never been polled
// successfully has nil fields, which is a distinct state from a node
// reporting zero free resources.
type NodeStatus struct {
	LastOnline *time.Time `json:"last_online,omitempty" db:"last_online"`
	CPU        *float64   `json:"cpu,omitempty" db:"cpu"`
	TotalMem   *int64     `json:"total_mem,omitempty" db:"total_mem"`
	FreeMem    *int64     `json:"free_mem,omitempty" db:"free_mem"`
	TotalDisk  *int64     `json:"total_disk,omitempty" db:"total_disk"`
	FreeDisk   *int64     `json:"free_disk,omitempty" db:"free_disk"`
}

// Polled reports whether the node has a usable disk snapshot.
func (s NodeStatus) Polled() bool {
	return s.TotalDisk != nil && s.FreeDisk != nil
}

// Node represents a remote execution host in the fleet.
type Node struct {
	ID      uuid.UUID  `json:"id" db:"id"`
	Name    string     `json:"name" db:"name"`
	Host    string     `json:"host" db:"host"`
	Port    int        `json:"port" db:"port"`
	Secret  string     `json:"-" db:"secret"`
	Status  NodeStatus `json:"status" db:"status"`
	Games   []string   `json:"games" db:"games"`
	Plugins []string   `json:"plugins" db:"plugins"`
}

// SupportsGame reports whether the node's inventory advertises the game.
func (n *Node) SupportsGame(game string) bool {
	for _, g := range n.Games {
		if g == game {
			return true
		}
	}
	return false
}
