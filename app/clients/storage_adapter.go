package clients

import (
	"context"

	"fleet-svc/app/domains"

	"github.com/google/uuid"
)

// StorageAdapter defines the interface for storage operations
type StorageAdapter interface {
	// Nodes. Snapshot/inventory fields are written only through
	// UpdateNodeSnapshot; admin CRUD owns identity, address and secret.
	ListNodes(ctx context.Context) ([]domains.Node, error)
	GetNode(ctx context.Context, id uuid.UUID) (*domains.Node, error)
	CreateNode(ctx context.Context, node *domains.Node) error
	UpdateNode(ctx context.Context, node *domains.Node) error
	UpdateNodeSnapshot(ctx context.Context, id uuid.UUID, status domains.NodeStatus, games, plugins []string) error
	DeleteNode(ctx context.Context, id uuid.UUID) error

	// Game servers.
	GetServer(ctx context.Context, id uuid.UUID) (*domains.GameServer, error)
	FindServerByNameOrOwner(ctx context.Context, name string, ownerID uuid.UUID) (*domains.GameServer, error)
	CreateServer(ctx context.Context, server *domains.GameServer) error
	UpdateServerPort(ctx context.Context, id uuid.UUID, port int) error
	UpdateServerPreset(ctx context.Context, id uuid.UUID, presetID uuid.UUID) error
	UpdateServerSubowners(ctx context.Context, id uuid.UUID, subownerIDs []uuid.UUID) error
	DeleteServer(ctx context.Context, id uuid.UUID) error

	// Users and groups.
	GetUser(ctx context.Context, id uuid.UUID) (*domains.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domains.User, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*domains.Group, error)

	// Presets and auxiliary settings records.
	GetPreset(ctx context.Context, id uuid.UUID) (*domains.Preset, error)
	CreateGameSettings(ctx context.Context, settings *domains.GameSettings) error
}
