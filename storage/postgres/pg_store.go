package postgres

import (
	"context"
	"fmt"
	"time"

	"fleet-svc/app/domains"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store represents the Postgres storage implementation
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Postgres store
// The database must already exist - creation should be handled at the infrastructure/deployment level
func NewStore(connString string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

const nodeColumns = `id, name, host, port, secret, status, games, plugins`

func scanNode(row pgx.Row, node *domains.Node) error {
	return row.Scan(
		&node.ID, &node.Name, &node.Host, &node.Port, &node.Secret,
		&node.Status, &node.Games, &node.Plugins,
	)
}

// ListNodes retrieves all nodes
func (s *Store) ListNodes(ctx context.Context) ([]domains.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []domains.Node
	for rows.Next() {
		var node domains.Node
		if err := scanNode(rows, &node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// GetNode retrieves a node by ID
func (s *Store) GetNode(ctx context.Context, id uuid.UUID) (*domains.Node, error) {
	var node domains.Node
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`
	err := scanNode(s.pool.QueryRow(ctx, query, id), &node)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// CreateNode inserts a new node with an empty snapshot
func (s *Store) CreateNode(ctx context.Context, node *domains.Node) error {
	query := `
		INSERT INTO nodes (id, name, host, port, secret, status, games, plugins)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		node.ID, node.Name, node.Host, node.Port, node.Secret, node.Games, node.Plugins)
	return err
}

// UpdateNode updates a node's identity, address and secret. The
// snapshot fields are owned by UpdateNodeSnapshot.
func (s *Store) UpdateNode(ctx context.Context, node *domains.Node) error {
	query := `UPDATE nodes SET name = $1, host = $2, port = $3, secret = $4 WHERE id = $5`
	_, err := s.pool.Exec(ctx, query, node.Name, node.Host, node.Port, node.Secret, node.ID)
	return err
}

// UpdateNodeSnapshot writes a node's resource status and inventory
func (s *Store) UpdateNodeSnapshot(ctx context.Context, id uuid.UUID, status domains.NodeStatus, games, plugins []string) error {
	query := `UPDATE nodes SET status = $1, games = $2, plugins = $3 WHERE id = $4`
	_, err := s.pool.Exec(ctx, query, status, games, plugins, id)
	return err
}

// DeleteNode removes a node. Instances referencing it are not cascaded.
func (s *Store) DeleteNode(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM nodes WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

const serverColumns = `id, owner_id, subowner_ids, preset_id, node_id, name, motd, port, online, sftp_password, plugins, created_at`

func scanServer(row pgx.Row, server *domains.GameServer) error {
	return row.Scan(
		&server.ID, &server.OwnerID, &server.SubownerIDs, &server.PresetID,
		&server.NodeID, &server.Name, &server.MOTD, &server.Port,
		&server.Online, &server.SFTPPassword, &server.Plugins, &server.CreatedAt,
	)
}

// GetServer retrieves a game server by ID
func (s *Store) GetServer(ctx context.Context, id uuid.UUID) (*domains.GameServer, error) {
	var server domains.GameServer
	query := `SELECT ` + serverColumns + ` FROM game_servers WHERE id = $1`
	err := scanServer(s.pool.QueryRow(ctx, query, id), &server)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// FindServerByNameOrOwner retrieves a server whose name or owner
// collides with the given values. A name collision wins if both exist.
func (s *Store) FindServerByNameOrOwner(ctx context.Context, name string, ownerID uuid.UUID) (*domains.GameServer, error) {
	var server domains.GameServer
	query := `
		SELECT ` + serverColumns + `
		FROM game_servers
		WHERE name = $1 OR owner_id = $2
		ORDER BY (name = $1) DESC
		LIMIT 1
	`
	err := scanServer(s.pool.QueryRow(ctx, query, name, ownerID), &server)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// CreateServer inserts a new game server record
func (s *Store) CreateServer(ctx context.Context, server *domains.GameServer) error {
	query := `
		INSERT INTO game_servers
			(id, owner_id, subowner_ids, preset_id, node_id, name, motd, port, online, sftp_password, plugins, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, query,
		server.ID, server.OwnerID, server.SubownerIDs, server.PresetID,
		server.NodeID, server.Name, server.MOTD, server.Port,
		server.Online, server.SFTPPassword, server.Plugins, server.CreatedAt)
	return err
}

// UpdateServerPort sets the node-confirmed port
func (s *Store) UpdateServerPort(ctx context.Context, id uuid.UUID, port int) error {
	query := `UPDATE game_servers SET port = $1 WHERE id = $2`
	_, err := s.pool.Exec(ctx, query, port, id)
	return err
}

// UpdateServerPreset sets the instance's preset reference
func (s *Store) UpdateServerPreset(ctx context.Context, id uuid.UUID, presetID uuid.UUID) error {
	query := `UPDATE game_servers SET preset_id = $1 WHERE id = $2`
	_, err := s.pool.Exec(ctx, query, presetID, id)
	return err
}

// UpdateServerSubowners replaces the instance's sub-owner set
func (s *Store) UpdateServerSubowners(ctx context.Context, id uuid.UUID, subownerIDs []uuid.UUID) error {
	query := `UPDATE game_servers SET subowner_ids = $1 WHERE id = $2`
	_, err := s.pool.Exec(ctx, query, subownerIDs, id)
	return err
}

// DeleteServer removes a game server record
func (s *Store) DeleteServer(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM game_servers WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domains.User, error) {
	var user domains.User
	query := `SELECT id, email, group_id, verified FROM users WHERE id = $1`
	err := s.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.GroupID, &user.Verified)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domains.User, error) {
	var user domains.User
	query := `SELECT id, email, group_id, verified FROM users WHERE email = $1`
	err := s.pool.QueryRow(ctx, query, email).Scan(&user.ID, &user.Email, &user.GroupID, &user.Verified)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetGroup retrieves a permission group by ID
func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (*domains.Group, error) {
	var group domains.Group
	query := `SELECT id, name, is_admin, presets_allowed FROM groups WHERE id = $1`
	err := s.pool.QueryRow(ctx, query, id).Scan(&group.ID, &group.Name, &group.IsAdmin, &group.PresetsAllowed)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetPreset retrieves a preset by ID
func (s *Store) GetPreset(ctx context.Context, id uuid.UUID) (*domains.Preset, error) {
	var preset domains.Preset
	query := `
		SELECT id, name, game, build, max_players, allow_switching_to,
		       preinstalled_plugins, views, fs_rules
		FROM presets WHERE id = $1
	`
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&preset.ID, &preset.Name, &preset.Game, &preset.Build, &preset.MaxPlayers,
		&preset.AllowSwitchingTo, &preset.PreinstalledPlugins, &preset.Views, &preset.FSRules,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &preset, nil
}

// CreateGameSettings inserts the auxiliary settings record for an instance
func (s *Store) CreateGameSettings(ctx context.Context, settings *domains.GameSettings) error {
	query := `
		INSERT INTO game_settings
			(server_id, spawnprotection, allownether, gamemode, difficulty,
			 spawnmonsters, pvp, hardcore, allowflight, resourcepack, whitelist)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		settings.ServerID, settings.SpawnProtection, settings.AllowNether,
		settings.Gamemode, settings.Difficulty, settings.SpawnMonsters,
		settings.PVP, settings.Hardcore, settings.AllowFlight,
		settings.ResourcePack, settings.Whitelist)
	return err
}
