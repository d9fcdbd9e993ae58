// Package services tests use in-memory fakes for the storage adapter
// and the node API so every scenario runs without a database or a
// reachable node.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"

	"github.com/google/uuid"
)

func i64(v int64) *int64 { return &v }
func f64(v float64) *float64 { return &v }

// polledStatus builds a snapshot as the monitor would write it.
func polledStatus(totalDisk, freeDisk int64) domains.NodeStatus {
	now := time.Now()
	return domains.NodeStatus{
		LastOnline: &now,
		CPU:        f64(0.5),
		TotalMem:   i64(16 << 30),
		FreeMem:    i64(8 << 30),
		TotalDisk:  i64(totalDisk),
		FreeDisk:   i64(freeDisk),
	}
}

// nodeError fabricates the error a node client returns for a JSON
// error body carrying the given code.
func nodeError(code clients.ErrorCode) error {
	body, _ := json.Marshal(map[string]string{"msg": string(code)})
	return &clients.RemoteNodeError{Op: "/test", StatusCode: 500, Body: body}
}

type snapshotWrite struct {
	status  domains.NodeStatus
	games   []string
	plugins []string
}

// fakeStore is an in-memory StorageAdapter.
type fakeStore struct {
	mu sync.Mutex

	nodes    map[uuid.UUID]*domains.Node
	servers  map[uuid.UUID]*domains.GameServer
	users    map[uuid.UUID]*domains.User
	groups   map[uuid.UUID]*domains.Group
	presets  map[uuid.UUID]*domains.Preset
	settings map[uuid.UUID]*domains.GameSettings

	snapshots map[uuid.UUID]snapshotWrite

	listNodesErr    error
	createServerErr error
	deleteServerErr error

	getNodeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:     make(map[uuid.UUID]*domains.Node),
		servers:   make(map[uuid.UUID]*domains.GameServer),
		users:     make(map[uuid.UUID]*domains.User),
		groups:    make(map[uuid.UUID]*domains.Group),
		presets:   make(map[uuid.UUID]*domains.Preset),
		settings:  make(map[uuid.UUID]*domains.GameSettings),
		snapshots: make(map[uuid.UUID]snapshotWrite),
	}
}

func (f *fakeStore) ListNodes(ctx context.Context) ([]domains.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listNodesErr != nil {
		return nil, f.listNodesErr
	}
	nodes := make([]domains.Node, 0, len(f.nodes))
	for _, node := range f.nodes {
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

func (f *fakeStore) GetNode(ctx context.Context, id uuid.UUID) (*domains.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getNodeCalls++
	node, ok := f.nodes[id]
	if !ok {
		return nil, nil
	}
	copied := *node
	return &copied, nil
}

func (f *fakeStore) CreateNode(ctx context.Context, node *domains.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *node
	f.nodes[node.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateNode(ctx context.Context, node *domains.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.nodes[node.ID]
	if !ok {
		return fmt.Errorf("node %s not found", node.ID)
	}
	existing.Name = node.Name
	existing.Host = node.Host
	existing.Port = node.Port
	existing.Secret = node.Secret
	return nil
}

func (f *fakeStore) UpdateNodeSnapshot(ctx context.Context, id uuid.UUID, status domains.NodeStatus, games, plugins []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, ok := f.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	node.Status = status
	node.Games = games
	node.Plugins = plugins
	f.snapshots[id] = snapshotWrite{status: status, games: games, plugins: plugins}
	return nil
}

func (f *fakeStore) DeleteNode(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
	return nil
}

func (f *fakeStore) GetServer(ctx context.Context, id uuid.UUID) (*domains.GameServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	server, ok := f.servers[id]
	if !ok {
		return nil, nil
	}
	copied := *server
	return &copied, nil
}

func (f *fakeStore) FindServerByNameOrOwner(ctx context.Context, name string, ownerID uuid.UUID) (*domains.GameServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ownerMatch *domains.GameServer
	for _, server := range f.servers {
		if server.Name == name {
			copied := *server
			return &copied, nil
		}
		if server.OwnerID == ownerID {
			ownerMatch = server
		}
	}
	if ownerMatch != nil {
		copied := *ownerMatch
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) CreateServer(ctx context.Context, server *domains.GameServer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createServerErr != nil {
		return f.createServerErr
	}
	copied := *server
	f.servers[server.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateServerPort(ctx context.Context, id uuid.UUID, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	server, ok := f.servers[id]
	if !ok {
		return fmt.Errorf("server %s not found", id)
	}
	server.Port = port
	return nil
}

func (f *fakeStore) UpdateServerPreset(ctx context.Context, id uuid.UUID, presetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	server, ok := f.servers[id]
	if !ok {
		return fmt.Errorf("server %s not found", id)
	}
	server.PresetID = presetID
	return nil
}

func (f *fakeStore) UpdateServerSubowners(ctx context.Context, id uuid.UUID, subownerIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	server, ok := f.servers[id]
	if !ok {
		return fmt.Errorf("server %s not found", id)
	}
	server.SubownerIDs = subownerIDs
	return nil
}

func (f *fakeStore) DeleteServer(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteServerErr != nil {
		return f.deleteServerErr
	}
	delete(f.servers, id)
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*domains.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*domains.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetGroup(ctx context.Context, id uuid.UUID) (*domains.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.groups[id]
	if !ok {
		return nil, nil
	}
	copied := *group
	return &copied, nil
}

func (f *fakeStore) GetPreset(ctx context.Context, id uuid.UUID) (*domains.Preset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	preset, ok := f.presets[id]
	if !ok {
		return nil, nil
	}
	copied := *preset
	return &copied, nil
}

func (f *fakeStore) CreateGameSettings(ctx context.Context, settings *domains.GameSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *settings
	f.settings[settings.ServerID] = &copied
	return nil
}

func (f *fakeStore) serverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.servers)
}

// fakeNodeAPI is a scriptable NodeAPI. Unset results default to zero
// values; every call is recorded by name.
type fakeNodeAPI struct {
	mu    sync.Mutex
	calls []string

	queryResult *clients.NodeQuery
	queryErr    error
	games       []string
	gamesErr    error
	plugins     []string
	pluginsErr  error

	addResult   *clients.Allocation
	addErr      error
	addTemplate clients.ServerTemplate
	addPassword string

	removeErr    error
	editErr      error
	editTemplate clients.ServerTemplate
	powerErr     error
	powerAction  clients.PowerAction
	installErr   error
	reinstallErr error
	executeErr   error
	lastCommand  string

	statusResult  json.RawMessage
	statusErr     error
	serverPlugins []string

	installPluginErr map[string]error
	installed        []string
	removePluginErr  error
	resetPasswordErr error
	lastPassword     string

	checkAllowedResult bool
	checkAllowedErr    error
	fileContents       string
	fileContentsErr    error
	writeFileErr       error
	removeFileErr      error
	removeFolderErr    error
	dirEntries         []clients.DirEntry
	getDirErr          error
	lastPath           string
}

func (f *fakeNodeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeNodeAPI) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call == name {
			count++
		}
	}
	return count
}

func (f *fakeNodeAPI) Query(ctx context.Context) (*clients.NodeQuery, error) {
	f.record("query")
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryResult != nil {
		return f.queryResult, nil
	}
	return &clients.NodeQuery{}, nil
}

func (f *fakeNodeAPI) Games(ctx context.Context) ([]string, error) {
	f.record("games")
	return f.games, f.gamesErr
}

func (f *fakeNodeAPI) Plugins(ctx context.Context) ([]string, error) {
	f.record("plugins")
	return f.plugins, f.pluginsErr
}

func (f *fakeNodeAPI) Add(ctx context.Context, template clients.ServerTemplate, sftpPassword string) (*clients.Allocation, error) {
	f.record("add")
	f.mu.Lock()
	f.addTemplate = template
	f.addPassword = sftpPassword
	f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	if f.addResult != nil {
		return f.addResult, nil
	}
	return &clients.Allocation{Port: 25565}, nil
}

func (f *fakeNodeAPI) Remove(ctx context.Context, serverID uuid.UUID) error {
	f.record("remove")
	return f.removeErr
}

func (f *fakeNodeAPI) Edit(ctx context.Context, serverID uuid.UUID, template clients.ServerTemplate) error {
	f.record("edit")
	f.mu.Lock()
	f.editTemplate = template
	f.mu.Unlock()
	return f.editErr
}

func (f *fakeNodeAPI) Power(ctx context.Context, serverID uuid.UUID, action clients.PowerAction) error {
	f.record("power")
	f.mu.Lock()
	f.powerAction = action
	f.mu.Unlock()
	return f.powerErr
}

func (f *fakeNodeAPI) Install(ctx context.Context, serverID uuid.UUID) error {
	f.record("install")
	return f.installErr
}

func (f *fakeNodeAPI) Reinstall(ctx context.Context, serverID uuid.UUID) error {
	f.record("reinstall")
	return f.reinstallErr
}

func (f *fakeNodeAPI) ServerStatus(ctx context.Context, serverID uuid.UUID) (json.RawMessage, error) {
	f.record("serverStatus")
	return f.statusResult, f.statusErr
}

func (f *fakeNodeAPI) ServerPlugins(ctx context.Context, serverID uuid.UUID) ([]string, error) {
	f.record("serverPlugins")
	return f.serverPlugins, nil
}

func (f *fakeNodeAPI) InstallPlugin(ctx context.Context, serverID uuid.UUID, plugin string) error {
	f.record("installPlugin")
	if err, ok := f.installPluginErr[plugin]; ok {
		return err
	}
	f.mu.Lock()
	f.installed = append(f.installed, plugin)
	f.mu.Unlock()
	return nil
}

func (f *fakeNodeAPI) RemovePlugin(ctx context.Context, serverID uuid.UUID, plugin string) error {
	f.record("removePlugin")
	return f.removePluginErr
}

func (f *fakeNodeAPI) ResetPassword(ctx context.Context, serverID uuid.UUID, password string) error {
	f.record("resetPassword")
	f.mu.Lock()
	f.lastPassword = password
	f.mu.Unlock()
	return f.resetPasswordErr
}

func (f *fakeNodeAPI) Execute(ctx context.Context, serverID uuid.UUID, command string) error {
	f.record("execute")
	f.mu.Lock()
	f.lastCommand = command
	f.mu.Unlock()
	return f.executeErr
}

func (f *fakeNodeAPI) CheckAllowed(ctx context.Context, serverID uuid.UUID, path string) (bool, error) {
	f.record("checkAllowed")
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return f.checkAllowedResult, f.checkAllowedErr
}

func (f *fakeNodeAPI) FileContents(ctx context.Context, serverID uuid.UUID, path string) (string, error) {
	f.record("fileContents")
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return f.fileContents, f.fileContentsErr
}

func (f *fakeNodeAPI) WriteFile(ctx context.Context, serverID uuid.UUID, path, contents string) error {
	f.record("writeFile")
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return f.writeFileErr
}

func (f *fakeNodeAPI) RemoveFile(ctx context.Context, serverID uuid.UUID, path string) error {
	f.record("removeFile")
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return f.removeFileErr
}

func (f *fakeNodeAPI) RemoveFolder(ctx context.Context, serverID uuid.UUID, path string) error {
	f.record("removeFolder")
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return f.removeFolderErr
}

func (f *fakeNodeAPI) GetDir(ctx context.Context, serverID uuid.UUID, path string) ([]clients.DirEntry, error) {
	f.record("getDir")
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()
	return f.dirEntries, f.getDirErr
}

// fakeFleet maps node IDs to fake APIs and hands out a NodeDialer.
type fakeFleet struct {
	mu    sync.Mutex
	apis  map[uuid.UUID]*fakeNodeAPI
	dials []uuid.UUID
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{apis: make(map[uuid.UUID]*fakeNodeAPI)}
}

func (f *fakeFleet) api(nodeID uuid.UUID) *fakeNodeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	api, ok := f.apis[nodeID]
	if !ok {
		api = &fakeNodeAPI{}
		f.apis[nodeID] = api
	}
	return api
}

func (f *fakeFleet) dialer() clients.NodeDialer {
	return func(node *domains.Node) clients.NodeAPI {
		f.mu.Lock()
		f.dials = append(f.dials, node.ID)
		f.mu.Unlock()
		return f.api(node.ID)
	}
}

func (f *fakeFleet) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}
