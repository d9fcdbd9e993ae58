package dto

import "fleet-svc/app/domains"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// OKResponse represents a bare success response
type OKResponse struct {
	OK bool `json:"ok"`
}

// CreateServerResponse represents a successful provisioning response
type CreateServerResponse struct {
	Server *domains.GameServer `json:"server"`
}

// ListNodesResponse represents the admin node listing
type ListNodesResponse struct {
	Nodes []domains.Node `json:"nodes"`
}

// NodeResponse represents a single node
type NodeResponse struct {
	Node *domains.Node `json:"node"`
}

// FileContentsResponse represents a file read response
type FileContentsResponse struct {
	Contents string `json:"contents"`
}

// CheckPathResponse represents a path permission response
type CheckPathResponse struct {
	Allowed bool `json:"allowed"`
}

// PasswordResponse carries a freshly generated SFTP credential
type PasswordResponse struct {
	Password string `json:"password"`
}
