package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/metrics"
)

// FilesService proxies filesystem operations to an instance's node,
// enforcing the preset's filesystem rules locally first.
type FilesService struct {
	storage clients.StorageAdapter
	dial    clients.NodeDialer
}

// NewFilesService creates a new files service
func NewFilesService(storage clients.StorageAdapter, dial clients.NodeDialer) *FilesService {
	return &FilesService{storage: storage, dial: dial}
}

// normalizePath cleans a target path: always a leading slash, never a
// trailing one.
func normalizePath(filePath string) string {
	cleaned := path.Clean(filePath)
	if cleaned == "." {
		cleaned = "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if len(cleaned) > 1 && strings.HasSuffix(cleaned, "/") {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}

// violatesRules reports whether the preset forbids touching the path.
func violatesRules(filePath string, preset *domains.Preset) bool {
	normalized := normalizePath(filePath)
	for _, rule := range preset.FSRules {
		if rule.Path == normalized {
			return true
		}
	}
	return false
}

// checkTarget validates the path against the preset's rules and
// resolves the node, shared by every operation below. No RPC is issued
// for a restricted target.
func (s *FilesService) checkTarget(ctx context.Context, server *domains.GameServer, filePath string) (*domains.Node, string, error) {
	preset, err := s.storage.GetPreset(ctx, server.PresetID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load preset: %w", err)
	}
	if preset == nil {
		return nil, "", domains.ActionFailed("Preset not found.")
	}

	normalized := normalizePath(filePath)
	if violatesRules(normalized, preset) {
		return nil, "", domains.ActionFailed("Restricted file target.")
	}

	node, err := s.storage.GetNode(ctx, server.NodeID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load node %s: %w", server.NodeID, err)
	}
	if node == nil {
		return nil, "", domains.ActionFailed("Node not found.")
	}
	return node, normalized, nil
}

var fileMessages = map[clients.ErrorCode]string{
	clients.CodeServerLocked: "Server is locked.",
	clients.CodeFileNotFound: "File not found.",
}

// CheckPath asks the node whether a path may be accessed.
func (s *FilesService) CheckPath(ctx context.Context, server *domains.GameServer, filePath string) (bool, error) {
	node, normalized, err := s.checkTarget(ctx, server, filePath)
	if err != nil {
		return false, err
	}

	allowed, err := s.dial(node).CheckAllowed(ctx, server.ID, normalized)
	if err != nil {
		metrics.NodeRPCs.WithLabelValues("checkAllowed", "error").Inc()
		return false, nodeFailure(err, fileMessages)
	}
	metrics.NodeRPCs.WithLabelValues("checkAllowed", "ok").Inc()
	return allowed, nil
}

// FileContents reads a file from the instance.
func (s *FilesService) FileContents(ctx context.Context, server *domains.GameServer, filePath string) (string, error) {
	node, normalized, err := s.checkTarget(ctx, server, filePath)
	if err != nil {
		return "", err
	}

	contents, err := s.dial(node).FileContents(ctx, server.ID, normalized)
	if err != nil {
		metrics.NodeRPCs.WithLabelValues("fileContents", "error").Inc()
		return "", nodeFailure(err, fileMessages)
	}
	metrics.NodeRPCs.WithLabelValues("fileContents", "ok").Inc()
	return contents, nil
}

// WriteFile writes a file on the instance.
func (s *FilesService) WriteFile(ctx context.Context, server *domains.GameServer, filePath, contents string) error {
	node, normalized, err := s.checkTarget(ctx, server, filePath)
	if err != nil {
		return err
	}

	if err := s.dial(node).WriteFile(ctx, server.ID, normalized, contents); err != nil {
		metrics.NodeRPCs.WithLabelValues("writeFile", "error").Inc()
		return nodeFailure(err, fileMessages)
	}
	metrics.NodeRPCs.WithLabelValues("writeFile", "ok").Inc()
	return nil
}

// RemoveFile deletes a file on the instance.
func (s *FilesService) RemoveFile(ctx context.Context, server *domains.GameServer, filePath string) error {
	node, normalized, err := s.checkTarget(ctx, server, filePath)
	if err != nil {
		return err
	}

	if err := s.dial(node).RemoveFile(ctx, server.ID, normalized); err != nil {
		metrics.NodeRPCs.WithLabelValues("removeFile", "error").Inc()
		return nodeFailure(err, fileMessages)
	}
	metrics.NodeRPCs.WithLabelValues("removeFile", "ok").Inc()
	return nil
}

// RemoveFolder deletes a directory on the instance.
func (s *FilesService) RemoveFolder(ctx context.Context, server *domains.GameServer, filePath string) error {
	node, normalized, err := s.checkTarget(ctx, server, filePath)
	if err != nil {
		return err
	}

	if err := s.dial(node).RemoveFolder(ctx, server.ID, normalized); err != nil {
		metrics.NodeRPCs.WithLabelValues("removeFolder", "error").Inc()
		return nodeFailure(err, fileMessages)
	}
	metrics.NodeRPCs.WithLabelValues("removeFolder", "ok").Inc()
	return nil
}

// ListDir lists a directory on the instance.
func (s *FilesService) ListDir(ctx context.Context, server *domains.GameServer, filePath string) ([]clients.DirEntry, error) {
	node, normalized, err := s.checkTarget(ctx, server, filePath)
	if err != nil {
		return nil, err
	}

	entries, err := s.dial(node).GetDir(ctx, server.ID, normalized)
	if err != nil {
		metrics.NodeRPCs.WithLabelValues("getDir", "error").Inc()
		return nil, nodeFailure(err, fileMessages)
	}
	metrics.NodeRPCs.WithLabelValues("getDir", "ok").Inc()
	return entries, nil
}
