package clients

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure reasons a node reports.
type ErrorCode string

const (
	CodeServerLocked       ErrorCode = "SERVER_LOCKED"
	CodeServerNotOff       ErrorCode = "SERVER_NOT_OFF"
	CodeServerNotRunning   ErrorCode = "SERVER_NOT_RUNNING"
	CodeServerNotStopped   ErrorCode = "SERVER_NOT_STOPPED"
	CodeReinstallInstead   ErrorCode = "REINSTALL_INSTEAD"
	CodeInstallInstead     ErrorCode = "INSTALL_INSTEAD"
	CodePluginInstalled    ErrorCode = "PLUGIN_INSTALLED"
	CodeInvalidPlugin      ErrorCode = "INVALID_PLUGIN"
	CodePluginNotSupported ErrorCode = "PLUGIN_NOT_SUPPORTED"
	CodePluginNotInstalled ErrorCode = "PLUGIN_NOT_INSTALLED"
	CodeFileNotFound       ErrorCode = "FILE_NOT_FOUND"
	CodeUnknown            ErrorCode = "UNKNOWN"
)

// RemoteNodeError is any failure communicating with a node or
// interpreting its response. Body is the raw error payload, if any.
type RemoteNodeError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *RemoteNodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("node %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteNodeError) Unwrap() error { return e.Err }

// Classify extracts the node's error code from a failed call. The node
// reports errors as JSON bodies with a "msg" field; anything that does
// not parse to one is CodeUnknown. Callers switch on the result and
// never inspect raw bodies themselves.
func Classify(err error) ErrorCode {
	var remote *RemoteNodeError
	if !errors.As(err, &remote) {
		return CodeUnknown
	}
	if len(remote.Body) == 0 {
		return CodeUnknown
	}

	var payload struct {
		Msg string `json:"msg"`
	}
	if jsonErr := json.Unmarshal(remote.Body, &payload); jsonErr != nil || payload.Msg == "" {
		return CodeUnknown
	}

	switch code := ErrorCode(payload.Msg); code {
	case CodeServerLocked, CodeServerNotOff, CodeServerNotRunning,
		CodeServerNotStopped, CodeReinstallInstead, CodeInstallInstead,
		CodePluginInstalled, CodeInvalidPlugin, CodePluginNotSupported,
		CodePluginNotInstalled, CodeFileNotFound:
		return code
	}
	return CodeUnknown
}
