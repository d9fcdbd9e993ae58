package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleet-svc/app/domains"

	"github.com/google/uuid"
)

// PowerAction is a power lifecycle command for an instance.
type PowerAction string

const (
	PowerOn   PowerAction = "on"
	PowerOff  PowerAction = "off"
	PowerKill PowerAction = "kill"
)

// NodeQuery is a node's self-reported resource snapshot.
type NodeQuery struct {
	CPU       float64 `json:"cpu"`
	TotalMem  int64   `json:"totalmem"`
	FreeMem   int64   `json:"freemem"`
	TotalDisk int64   `json:"totaldisk"`
	FreeDisk  int64   `json:"freedisk"`
}

// ServerTemplate is the resource template sent to a node when an
// instance is allocated or edited, derived from the owning preset.
type ServerTemplate struct {
	ID      uuid.UUID           `json:"id"`
	Game    string              `json:"game"`
	Port    int                 `json:"port"`
	Build   domains.BuildLimits `json:"build"`
	Players int                 `json:"players"`
}

// Allocation is the node's response to a successful server add. The
// port it carries is the authoritative one for the instance.
type Allocation struct {
	Port int `json:"port"`
}

// DirEntry is one entry of a directory listing on a node.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// NodeAPI is the operation surface of one node. Every call is a single
// synchronous request; there are no retries, failures surface
// immediately to the caller.
type NodeAPI interface {
	Query(ctx context.Context) (*NodeQuery, error)
	Games(ctx context.Context) ([]string, error)
	Plugins(ctx context.Context) ([]string, error)

	Add(ctx context.Context, template ServerTemplate, sftpPassword string) (*Allocation, error)
	Remove(ctx context.Context, serverID uuid.UUID) error
	Edit(ctx context.Context, serverID uuid.UUID, template ServerTemplate) error
	Power(ctx context.Context, serverID uuid.UUID, action PowerAction) error
	Install(ctx context.Context, serverID uuid.UUID) error
	Reinstall(ctx context.Context, serverID uuid.UUID) error
	ServerStatus(ctx context.Context, serverID uuid.UUID) (json.RawMessage, error)
	ServerPlugins(ctx context.Context, serverID uuid.UUID) ([]string, error)
	InstallPlugin(ctx context.Context, serverID uuid.UUID, plugin string) error
	RemovePlugin(ctx context.Context, serverID uuid.UUID, plugin string) error
	ResetPassword(ctx context.Context, serverID uuid.UUID, password string) error
	Execute(ctx context.Context, serverID uuid.UUID, command string) error

	CheckAllowed(ctx context.Context, serverID uuid.UUID, path string) (bool, error)
	FileContents(ctx context.Context, serverID uuid.UUID, path string) (string, error)
	WriteFile(ctx context.Context, serverID uuid.UUID, path, contents string) error
	RemoveFile(ctx context.Context, serverID uuid.UUID, path string) error
	RemoveFolder(ctx context.Context, serverID uuid.UUID, path string) error
	GetDir(ctx context.Context, serverID uuid.UUID, path string) ([]DirEntry, error)
}

// NodeDialer builds a NodeAPI for one node. Services hold a dialer so
// tests can substitute fakes.
type NodeDialer func(node *domains.Node) NodeAPI

// NewNodeDialer returns a dialer producing real HTTP clients.
func NewNodeDialer(insecureTLS bool) NodeDialer {
	return func(node *domains.Node) NodeAPI {
		return NewNodeClient(node, insecureTLS)
	}
}

// NodeClient issues authenticated HTTPS requests against one node.
type NodeClient struct {
	node       *domains.Node
	httpClient *http.Client
}

// NewNodeClient creates a client for the given node. Nodes typically
// run with self-signed certificates, so certificate verification is
// configurable.
func NewNodeClient(node *domains.Node, insecureTLS bool) *NodeClient {
	transport := &http.Transport{}
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &NodeClient{
		node: node,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (c *NodeClient) baseURL() string {
	return fmt.Sprintf("https://%s:%d", c.node.Host, c.node.Port)
}

func serverPath(serverID uuid.UUID, parts ...string) string {
	segments := append([]string{"server", serverID.String()}, parts...)
	return "/" + strings.Join(segments, "/")
}

// get performs an authenticated GET and decodes the JSON response.
func (c *NodeClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return &RemoteNodeError{Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Token "+c.node.Secret)
	return c.do(req, path, out)
}

// post performs an authenticated form-encoded POST and decodes the
// JSON response.
func (c *NodeClient) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, strings.NewReader(body))
	if err != nil {
		return &RemoteNodeError{Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Token "+c.node.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, path, out)
}

func (c *NodeClient) do(req *http.Request, path string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteNodeError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteNodeError{Op: path, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteNodeError{Op: path, StatusCode: resp.StatusCode, Body: bodyBytes}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &RemoteNodeError{Op: path, StatusCode: resp.StatusCode, Body: bodyBytes, Err: err}
	}
	return nil
}

// Query fetches the node's resource snapshot.
func (c *NodeClient) Query(ctx context.Context) (*NodeQuery, error) {
	var query NodeQuery
	if err := c.get(ctx, "/node", &query); err != nil {
		return nil, err
	}
	return &query, nil
}

// Games lists the games the node can host.
func (c *NodeClient) Games(ctx context.Context) ([]string, error) {
	var resp struct {
		Games []struct {
			Name string `json:"name"`
		} `json:"games"`
	}
	if err := c.get(ctx, "/game", &resp); err != nil {
		return nil, err
	}
	games := make([]string, len(resp.Games))
	for i, g := range resp.Games {
		games[i] = g.Name
	}
	return games, nil
}

// Plugins lists the plugins available on the node.
func (c *NodeClient) Plugins(ctx context.Context) ([]string, error) {
	var resp struct {
		Plugins []struct {
			Name string `json:"name"`
		} `json:"plugins"`
	}
	if err := c.get(ctx, "/plugin", &resp); err != nil {
		return nil, err
	}
	plugins := make([]string, len(resp.Plugins))
	for i, p := range resp.Plugins {
		plugins[i] = p.Name
	}
	return plugins, nil
}

// Add allocates a new instance on the node. The returned allocation
// carries the port the node bound for it.
func (c *NodeClient) Add(ctx context.Context, template ServerTemplate, sftpPassword string) (*Allocation, error) {
	config, err := json.Marshal(template)
	if err != nil {
		return nil, &RemoteNodeError{Op: "/server/add", Err: err}
	}

	var resp struct {
		Server Allocation `json:"server"`
	}
	form := url.Values{"config": {string(config)}, "password": {sftpPassword}}
	if err := c.post(ctx, "/server/add", form, &resp); err != nil {
		return nil, err
	}
	return &resp.Server, nil
}

// Remove deletes the instance from the node.
func (c *NodeClient) Remove(ctx context.Context, serverID uuid.UUID) error {
	return c.get(ctx, serverPath(serverID, "remove"), nil)
}

// Edit applies a new resource template to the instance.
func (c *NodeClient) Edit(ctx context.Context, serverID uuid.UUID, template ServerTemplate) error {
	config, err := json.Marshal(template)
	if err != nil {
		return &RemoteNodeError{Op: serverPath(serverID, "edit"), Err: err}
	}
	return c.post(ctx, serverPath(serverID, "edit"), url.Values{"config": {string(config)}}, nil)
}

// Power issues a power action against the instance.
func (c *NodeClient) Power(ctx context.Context, serverID uuid.UUID, action PowerAction) error {
	return c.get(ctx, serverPath(serverID, "power", string(action)), nil)
}

// Install runs the instance's first-time install.
func (c *NodeClient) Install(ctx context.Context, serverID uuid.UUID) error {
	return c.get(ctx, serverPath(serverID, "install"), nil)
}

// Reinstall wipes and reinstalls the instance.
func (c *NodeClient) Reinstall(ctx context.Context, serverID uuid.UUID) error {
	return c.get(ctx, serverPath(serverID, "reinstall"), nil)
}

// ServerStatus fetches the node's live view of the instance.
func (c *NodeClient) ServerStatus(ctx context.Context, serverID uuid.UUID) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, serverPath(serverID), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ServerPlugins lists the plugins installed on the instance.
func (c *NodeClient) ServerPlugins(ctx context.Context, serverID uuid.UUID) ([]string, error) {
	var resp struct {
		Plugins []struct {
			Name string `json:"name"`
		} `json:"plugins"`
	}
	if err := c.get(ctx, serverPath(serverID, "plugins"), &resp); err != nil {
		return nil, err
	}
	plugins := make([]string, len(resp.Plugins))
	for i, p := range resp.Plugins {
		plugins[i] = p.Name
	}
	return plugins, nil
}

// InstallPlugin installs a plugin on the instance.
func (c *NodeClient) InstallPlugin(ctx context.Context, serverID uuid.UUID, plugin string) error {
	return c.post(ctx, serverPath(serverID, "installPlugin"), url.Values{"plugin": {plugin}}, nil)
}

// RemovePlugin removes a plugin from the instance.
func (c *NodeClient) RemovePlugin(ctx context.Context, serverID uuid.UUID, plugin string) error {
	return c.post(ctx, serverPath(serverID, "removePlugin"), url.Values{"plugin": {plugin}}, nil)
}

// ResetPassword sets a new SFTP password for the instance.
func (c *NodeClient) ResetPassword(ctx context.Context, serverID uuid.UUID, password string) error {
	return c.post(ctx, serverPath(serverID, "resetPassword"), url.Values{"password": {password}}, nil)
}

// Execute runs a console command on the instance.
func (c *NodeClient) Execute(ctx context.Context, serverID uuid.UUID, command string) error {
	return c.post(ctx, serverPath(serverID, "execute"), url.Values{"command": {command}}, nil)
}

// CheckAllowed asks the node whether a path may be accessed.
func (c *NodeClient) CheckAllowed(ctx context.Context, serverID uuid.UUID, path string) (bool, error) {
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.post(ctx, serverPath(serverID, "checkAllowed"), url.Values{"path": {path}}, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// FileContents reads a file from the instance.
func (c *NodeClient) FileContents(ctx context.Context, serverID uuid.UUID, path string) (string, error) {
	var resp struct {
		Contents string `json:"contents"`
	}
	if err := c.post(ctx, serverPath(serverID, "fileContents"), url.Values{"path": {path}}, &resp); err != nil {
		return "", err
	}
	return resp.Contents, nil
}

// WriteFile writes a file on the instance.
func (c *NodeClient) WriteFile(ctx context.Context, serverID uuid.UUID, path, contents string) error {
	form := url.Values{"path": {path}, "contents": {contents}}
	return c.post(ctx, serverPath(serverID, "writeFile"), form, nil)
}

// RemoveFile deletes a file on the instance.
func (c *NodeClient) RemoveFile(ctx context.Context, serverID uuid.UUID, path string) error {
	return c.post(ctx, serverPath(serverID, "removeFile"), url.Values{"path": {path}}, nil)
}

// RemoveFolder deletes a directory on the instance.
func (c *NodeClient) RemoveFolder(ctx context.Context, serverID uuid.UUID, path string) error {
	return c.post(ctx, serverPath(serverID, "removeFolder"), url.Values{"path": {path}}, nil)
}

// GetDir lists a directory on the instance.
func (c *NodeClient) GetDir(ctx context.Context, serverID uuid.UUID, path string) ([]DirEntry, error) {
	var resp struct {
		Contents []DirEntry `json:"contents"`
	}
	if err := c.post(ctx, serverPath(serverID, "getDir"), url.Values{"path": {path}}, &resp); err != nil {
		return nil, err
	}
	return resp.Contents, nil
}
