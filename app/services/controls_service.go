package services

import (
	"context"
	"fmt"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/metrics"
)

// ControlsService issues power and install lifecycle commands against
// an instance's node.
type ControlsService struct {
	storage clients.StorageAdapter
	dial    clients.NodeDialer
}

// NewControlsService creates a new controls service
func NewControlsService(storage clients.StorageAdapter, dial clients.NodeDialer) *ControlsService {
	return &ControlsService{storage: storage, dial: dial}
}

func (s *ControlsService) nodeFor(ctx context.Context, server *domains.GameServer) (*domains.Node, error) {
	node, err := s.storage.GetNode(ctx, server.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node %s: %w", server.NodeID, err)
	}
	if node == nil {
		return nil, domains.ActionFailed("Node not found.")
	}
	return node, nil
}

// SetPower issues a power action (on, off, kill).
func (s *ControlsService) SetPower(ctx context.Context, server *domains.GameServer, action clients.PowerAction) error {
	switch action {
	case clients.PowerOn, clients.PowerOff, clients.PowerKill:
	default:
		return domains.ActionFailed("Invalid power action.")
	}

	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).Power(ctx, server.ID, action); err != nil {
		metrics.NodeRPCs.WithLabelValues("power", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerLocked:     "Server is locked.",
			clients.CodeReinstallInstead: "Reinstall your server.",
			clients.CodeServerNotRunning: "Server not running.",
			clients.CodeServerNotStopped: "Server not stopped.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("power", "ok").Inc()
	return nil
}

// Install runs the instance's first-time install on its node.
func (s *ControlsService) Install(ctx context.Context, server *domains.GameServer) error {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).Install(ctx, server.ID); err != nil {
		metrics.NodeRPCs.WithLabelValues("install", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerLocked:     "Server is locked.",
			clients.CodeReinstallInstead: "Reinstall your server instead.",
			clients.CodeServerNotOff:     "Server is not off.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("install", "ok").Inc()
	return nil
}

// Reinstall wipes and reinstalls the instance.
func (s *ControlsService) Reinstall(ctx context.Context, server *domains.GameServer) error {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).Reinstall(ctx, server.ID); err != nil {
		metrics.NodeRPCs.WithLabelValues("reinstall", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerLocked:   "Server is locked.",
			clients.CodeInstallInstead: "Install your server instead.",
			clients.CodeServerNotOff:   "Server is not off.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("reinstall", "ok").Inc()
	return nil
}

// Execute runs a console command on the instance.
func (s *ControlsService) Execute(ctx context.Context, server *domains.GameServer, command string) error {
	node, err := s.nodeFor(ctx, server)
	if err != nil {
		return err
	}

	if err := s.dial(node).Execute(ctx, server.ID, command); err != nil {
		metrics.NodeRPCs.WithLabelValues("execute", "error").Inc()
		return nodeFailure(err, map[clients.ErrorCode]string{
			clients.CodeServerNotRunning: "Server not running.",
		})
	}
	metrics.NodeRPCs.WithLabelValues("execute", "ok").Inc()
	return nil
}
