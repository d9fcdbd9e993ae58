package services

import (
	"context"
	"errors"
	"fmt"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/metrics"
	"fleet-svc/app/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAllocationFailed is returned when the remote allocate step of
// provisioning fails and the local record was rolled back.
var ErrAllocationFailed = errors.New("failed to add server to selected node")

// ServerService orchestrates instance provisioning, removal and the
// remote lifecycle operations that mutate instance records.
type ServerService struct {
	storage         clients.StorageAdapter
	dial            clients.NodeDialer
	placement       *PlacementSelector
	captcha         clients.CaptchaVerifier
	captchaRequired bool
	logger          *zap.Logger
}

// NewServerService creates a new server service
func NewServerService(
	storage clients.StorageAdapter,
	dial clients.NodeDialer,
	placement *PlacementSelector,
	captcha clients.CaptchaVerifier,
	captchaRequired bool,
	logger *zap.Logger,
) *ServerService {
	return &ServerService{
		storage:         storage,
		dial:            dial,
		placement:       placement,
		captcha:         captcha,
		captchaRequired: captchaRequired,
		logger:          logger,
	}
}

// CreateServerParams are the inputs for provisioning a new instance.
type CreateServerParams struct {
	OwnerID      uuid.UUID
	PresetID     uuid.UUID
	Name         string
	MOTD         string
	CaptchaProof string
	RemoteIP     string
}

// nodeFailure maps a classified RPC error to a stable user-facing
// reason. Codes outside the map resolve to a generic message.
func nodeFailure(err error, messages map[clients.ErrorCode]string) error {
	if msg, ok := messages[clients.Classify(err)]; ok {
		return domains.ActionFailed(msg)
	}
	return domains.ActionFailed("Unknown error.")
}

// nodeFor resolves the node an instance is assigned to.
func (s *ServerService) nodeFor(ctx context.Context, server *domains.GameServer) (*domains.Node, error) {
	node, err := s.storage.GetNode(ctx, server.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node %s: %w", server.NodeID, err)
	}
	if node == nil {
		return nil, domains.ActionFailed("Node not found.")
	}
	return node, nil
}

// AddServer provisions a new instance: place it, insert the local
// record, allocate on the node, then apply post-allocation extras.
// Nothing is mutated before placement succeeds. A failed allocation
// rolls back the local record; a failed rollback surfaces as a
// DoubleFaultError so the orphaned record is observable.
func (s *ServerService) AddServer(ctx context.Context, params CreateServerParams) (*domains.GameServer, error) {
	if params.CaptchaProof != "" && s.captchaRequired {
		ok, err := s.captcha.Verify(ctx, params.CaptchaProof, params.RemoteIP)
		if err != nil {
			return nil, fmt.Errorf("captcha verification failed: %w", err)
		}
		if !ok {
			return nil, &domains.PermissionError{Reason: "Captcha is incorrect"}
		}
	}

	existing, err := s.storage.FindServerByNameOrOwner(ctx, params.Name, params.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing servers: %w", err)
	}
	if existing != nil {
		if existing.Name == params.Name {
			return nil, &domains.ConflictError{Reason: "Name already assigned"}
		}
		return nil, &domains.ConflictError{Reason: "You already own a server."}
	}

	var (
		owner  *domains.User
		preset *domains.Preset
		nodes  []domains.Node
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		owner, err = s.storage.GetUser(gctx, params.OwnerID)
		return err
	})
	group.Go(func() error {
		var err error
		preset, err = s.storage.GetPreset(gctx, params.PresetID)
		return err
	})
	group.Go(func() error {
		var err error
		nodes, err = s.storage.ListNodes(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load provisioning data: %w", err)
	}
	if owner == nil {
		return nil, domains.ActionFailed("User not found.")
	}
	if preset == nil {
		return nil, domains.ActionFailed("Preset not found.")
	}

	if !owner.Verified {
		return nil, &domains.PermissionError{Reason: "You must first verify your account."}
	}
	permGroup, err := s.storage.GetGroup(ctx, owner.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if permGroup == nil || !permGroup.AllowsPreset(params.PresetID) {
		return nil, &domains.PermissionError{Reason: "You don't have permissions."}
	}

	node, err := s.placement.Choose(preset.Game, nodes)
	if err != nil {
		metrics.Placements.WithLabelValues("no_capacity").Inc()
		return nil, err
	}
	metrics.Placements.WithLabelValues("placed").Inc()

	server := &domains.GameServer{
		ID:           uuid.New(),
		OwnerID:      params.OwnerID,
		SubownerIDs:  []uuid.UUID{},
		PresetID:     params.PresetID,
		NodeID:       node.ID,
		Name:         params.Name,
		MOTD:         params.MOTD,
		Port:         0,
		Online:       false,
		SFTPPassword: utils.GenerateSecret(),
		Plugins:      []string{},
	}
	if err := s.storage.CreateServer(ctx, server); err != nil {
		return nil, fmt.Errorf("failed to insert server record: %w", err)
	}

	template := clients.ServerTemplate{
		ID:      server.ID,
		Game:    preset.Game,
		Port:    -1,
		Build:   preset.Build,
		Players: preset.MaxPlayers,
	}

	api := s.dial(node)
	allocation, err := api.Add(ctx, template, server.SFTPPassword)
	if err != nil {
		metrics.NodeRPCs.WithLabelValues("add", "error").Inc()
		if delErr := s.storage.DeleteServer(ctx, server.ID); delErr != nil {
			return nil, &domains.DoubleFaultError{
				Op:          "allocate server",
				Cause:       err,
				RollbackErr: delErr,
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	metrics.NodeRPCs.WithLabelValues("add", "ok").Inc()

	server.Port = allocation.Port
	if err := s.storage.UpdateServerPort(ctx, server.ID, allocation.Port); err != nil {
		return nil, fmt.Errorf("failed to persist allocated port: %w", err)
	}

	if preset.HasView(domains.ViewSettings) {
		if err := s.storage.CreateGameSettings(ctx, domains.DefaultGameSettings(server.ID)); err != nil {
			return nil, domains.ActionFailed("Failed to save server settings.")
		}
	}

	// Best effort: provisioning has already succeeded, individual
	// plugin install failures are logged and counted, never rolled back.
	for _, plugin := range preset.PreinstalledPlugins {
		if err := api.InstallPlugin(ctx, server.ID, plugin); err != nil {
			metrics.PluginInstallFailures.Inc()
			s.logger.Error("default plugin install failed",
				zap.String("server", server.ID.String()),
				zap.String("plugin", plugin),
				zap.Error(err))
		}
	}

	return server, nil
}

// RemoveServer deprovisions an instance, remote-first: the local
// record is deleted only after the node confirms removal. An orphaned
// local record is preferred over an orphaned remote allocation.
func (s *ServerService) RemoveServer(ctx context.Context, server *domains.GameServer) error {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).Remove(ctx, server.ID); err != nil {
		metrics.NodeRPCs.WithLabelValues("remove", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerLocked: "Server is locked.",
			clients.CodeServerNotOff: "Server is not off.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("remove", "ok").Inc()

	if err := s.storage.DeleteServer(ctx, server.ID); err != nil {
		return fmt.Errorf("failed to delete server record: %w", err)
	}
	return nil
}

// ChangePreset switches an instance to a new preset. The node applies
// the new resource template before the local reference is updated.
func (s *ServerService) ChangePreset(ctx context.Context, server *domains.GameServer, newPresetID uuid.UUID) error {
	var (
		owner     *domains.User
		newPreset *domains.Preset
		current   *domains.Preset
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		owner, err = s.storage.GetUser(gctx, server.OwnerID)
		return err
	})
	group.Go(func() error {
		var err error
		newPreset, err = s.storage.GetPreset(gctx, newPresetID)
		return err
	})
	group.Go(func() error {
		var err error
		current, err = s.storage.GetPreset(gctx, server.PresetID)
		return err
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to load preset data: %w", err)
	}
	if owner == nil || newPreset == nil || current == nil {
		return domains.ActionFailed("Preset not found.")
	}

	if !current.AllowsSwitchTo(newPresetID) {
		return domains.ActionFailed("Preset not allowed.")
	}
	permGroup, err := s.storage.GetGroup(ctx, owner.GroupID)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	if permGroup == nil || !permGroup.AllowsPreset(newPresetID) {
		return &domains.PermissionError{Reason: "You don't have permissions."}
	}
	if newPresetID == server.PresetID {
		return domains.ActionFailed("This is already your preset.")
	}

	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	template := clients.ServerTemplate{
		ID:      server.ID,
		Game:    newPreset.Game,
		Port:    server.Port,
		Build:   newPreset.Build,
		Players: newPreset.MaxPlayers,
	}
	if err := s.dial(node).Edit(ctx, server.ID, template); err != nil {
		metrics.NodeRPCs.WithLabelValues("edit", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerLocked: "Server is locked.",
			clients.CodeServerNotOff: "Server is not off.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("edit", "ok").Inc()

	if err := s.storage.UpdateServerPreset(ctx, server.ID, newPresetID); err != nil {
		return fmt.Errorf("failed to persist preset change: %w", err)
	}
	return nil
}

// InstallPlugin installs a plugin on a running instance's node.
func (s *ServerService) InstallPlugin(ctx context.Context, server *domains.GameServer, plugin string) error {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).InstallPlugin(ctx, server.ID, plugin); err != nil {
		metrics.NodeRPCs.WithLabelValues("installPlugin", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodePluginInstalled:    "Plugin already installed.",
			clients.CodeInvalidPlugin:      "Plugin does not exist.",
			clients.CodePluginNotSupported: "Plugin not supported.",
			clients.CodeServerNotOff:       "Server is not off.",
			clients.CodeServerLocked:       "Server is locked.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("installPlugin", "ok").Inc()
	return nil
}

// RemovePlugin removes a plugin from an instance.
func (s *ServerService) RemovePlugin(ctx context.Context, server *domains.GameServer, plugin string) error {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).RemovePlugin(ctx, server.ID, plugin); err != nil {
		metrics.NodeRPCs.WithLabelValues("removePlugin", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodePluginNotInstalled: "Plugin is not installed.",
			clients.CodeServerNotOff:       "Server is not off.",
			clients.CodeServerLocked:       "Server is locked.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("removePlugin", "ok").Inc()
	return nil
}

// AddSubowner grants another account access to the instance. The owner
// is never a valid sub-owner and duplicates are rejected.
func (s *ServerService) AddSubowner(ctx context.Context, server *domains.GameServer, email string) error {
	target, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if target == nil {
		return domains.ActionFailed("User not found.")
	}
	if server.IsSubowner(target.ID) {
		return &domains.ConflictError{Reason: "User is already a subuser."}
	}
	if server.OwnerID == target.ID {
		return &domains.ConflictError{Reason: "The server owner is not a valid subuser."}
	}

	updated := append(append([]uuid.UUID{}, server.SubownerIDs...), target.ID)
	if err := s.storage.UpdateServerSubowners(ctx, server.ID, updated); err != nil {
		return fmt.Errorf("failed to persist subowners: %w", err)
	}
	server.SubownerIDs = updated
	return nil
}

// RemoveSubowner revokes a sub-owner's access.
func (s *ServerService) RemoveSubowner(ctx context.Context, server *domains.GameServer, userID uuid.UUID) error {
	if !server.IsSubowner(userID) {
		return domains.ActionFailed("User is not a subuser.")
	}

	updated := make([]uuid.UUID, 0, len(server.SubownerIDs))
	for _, id := range server.SubownerIDs {
		if id != userID {
			updated = append(updated, id)
		}
	}
	if err := s.storage.UpdateServerSubowners(ctx, server.ID, updated); err != nil {
		return fmt.Errorf("failed to persist subowners: %w", err)
	}
	server.SubownerIDs = updated
	return nil
}

// Plugins lists the plugins currently installed on the instance.
func (s *ServerService) Plugins(ctx context.Context, server *domains.GameServer) ([]string, error) {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return nil, err
	}

	plugins, err := s.dial(node).ServerPlugins(ctx, server.ID)
	if err != nil {
		metrics.NodeRPCs.WithLabelValues("serverPlugins", "error").Inc()
		return nil, nodeFailure(err, nil)
	}
	metrics.NodeRPCs.WithLabelValues("serverPlugins", "ok").Inc()
	return plugins, nil
}

// ResetPassword sets a fresh SFTP credential on the node.
func (s *ServerService) ResetPassword(ctx context.Context, server *domains.GameServer) (string, error) {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return "", err
	}

	password := utils.GenerateSecret()
	if err := s.dial(node).ResetPassword(ctx, server.ID, password); err != nil {
		metrics.NodeRPCs.WithLabelValues("resetPassword", "error").Inc()
		return "", nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerLocked: "Server is locked.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("resetPassword", "ok").Inc()
	return password, nil
}

// Status fetches the node's live view of the instance.
func (s *ServerService) Status(ctx context.Context, server *domains.GameServer) (interface{}, error) {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return nil, err
	}

	status, err := s.dial(node).ServerStatus(ctx, server.ID)
	if err != nil {
		metrics.NodeRPCs.WithLabelValues("status", "error").Inc()
		return nil, nodeFailure(err, nil)
	}
	metrics.NodeRPCs.WithLabelValues("status", "ok").Inc()
	return status, nil
}
