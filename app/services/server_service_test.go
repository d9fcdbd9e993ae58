package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// provisioningFixture wires a verified owner, a permitted preset and a
// node with capacity, everything AddServer needs to succeed.
type provisioningFixture struct {
	store   *fakeStore
	fleet   *fakeFleet
	service *ServerService
	owner   *domains.User
	preset  *domains.Preset
	node    *domains.Node
}

func newProvisioningFixture(t *testing.T) *provisioningFixture {
	t.Helper()
	store := newFakeStore()
	fleet := newFakeFleet()

	group := &domains.Group{ID: uuid.New(), Name: "players"}
	preset := &domains.Preset{
		ID:         uuid.New(),
		Name:       "vanilla",
		Game:       "minecraft",
		Build:      domains.BuildLimits{IO: 500, CPU: 100, Mem: 2048},
		MaxPlayers: 20,
	}
	group.PresetsAllowed = []uuid.UUID{preset.ID}

	owner := &domains.User{ID: uuid.New(), Email: "owner@example.com", GroupID: group.ID, Verified: true}
	node := &domains.Node{
		ID:     uuid.New(),
		Name:   "node-1",
		Host:   "node1.example.com",
		Port:   8080,
		Games:  []string{"minecraft"},
		Status: polledStatus(1000, 800),
	}

	store.groups[group.ID] = group
	store.presets[preset.ID] = preset
	store.users[owner.ID] = owner
	store.nodes[node.ID] = node

	placement := NewPlacementSelector(0.9, rand.New(rand.NewSource(1)))
	service := NewServerService(store, fleet.dialer(), placement, nil, false, zap.NewNop())

	return &provisioningFixture{
		store:   store,
		fleet:   fleet,
		service: service,
		owner:   owner,
		preset:  preset,
		node:    node,
	}
}

func (f *provisioningFixture) params(name string) CreateServerParams {
	return CreateServerParams{
		OwnerID:  f.owner.ID,
		PresetID: f.preset.ID,
		Name:     name,
		MOTD:     "welcome",
	}
}

// TestAddServerSuccess verifies the happy provisioning path: the local
// record exists, the node confirmed the allocation and the port the
// node chose is the one persisted.
func TestAddServerSuccess(t *testing.T) {
	f := newProvisioningFixture(t)
	api := f.fleet.api(f.node.ID)
	api.addResult = &clients.Allocation{Port: 30123}

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)
	require.NotNil(t, server)

	assert.Equal(t, f.node.ID, server.NodeID)
	assert.Equal(t, 30123, server.Port)
	assert.NotEmpty(t, server.SFTPPassword)

	stored, err := f.store.GetServer(context.Background(), server.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 30123, stored.Port)

	// The template sent to the node asks it to pick the port.
	assert.Equal(t, -1, api.addTemplate.Port)
	assert.Equal(t, "minecraft", api.addTemplate.Game)
	assert.Equal(t, server.SFTPPassword, api.addPassword)
}

// TestAddServerRollsBackOnAllocationFailure verifies the compensation
// path: when the node rejects the allocation, the local record is
// removed and no partial state remains.
func TestAddServerRollsBackOnAllocationFailure(t *testing.T) {
	f := newProvisioningFixture(t)
	f.fleet.api(f.node.ID).addErr = errors.New("disk full")

	_, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 0, f.store.serverCount(), "rollback must remove the inserted record")
}

// TestAddServerDoubleFault verifies that a failed rollback surfaces as
// a DoubleFaultError carrying both the allocation failure and the
// rollback failure.
func TestAddServerDoubleFault(t *testing.T) {
	f := newProvisioningFixture(t)
	allocErr := errors.New("disk full")
	rollbackErr := errors.New("db down")
	f.fleet.api(f.node.ID).addErr = allocErr
	f.store.deleteServerErr = rollbackErr

	_, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.Error(t, err)

	var doubleFault *domains.DoubleFaultError
	require.ErrorAs(t, err, &doubleFault)
	assert.Equal(t, allocErr, doubleFault.Cause)
	assert.Equal(t, rollbackErr, doubleFault.RollbackErr)
}

// TestAddServerNameConflict verifies that a taken name is rejected
// before any remote call.
func TestAddServerNameConflict(t *testing.T) {
	f := newProvisioningFixture(t)
	existing := &domains.GameServer{ID: uuid.New(), OwnerID: uuid.New(), Name: "taken"}
	f.store.servers[existing.ID] = existing

	_, err := f.service.AddServer(context.Background(), f.params("taken"))
	var conflict *domains.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Name already assigned", conflict.Reason)
	assert.Equal(t, 0, f.fleet.dialCount())
}

// TestAddServerOneInstancePerOwner verifies that an owner with an
// existing instance cannot provision a second one.
func TestAddServerOneInstancePerOwner(t *testing.T) {
	f := newProvisioningFixture(t)
	existing := &domains.GameServer{ID: uuid.New(), OwnerID: f.owner.ID, Name: "first"}
	f.store.servers[existing.ID] = existing

	_, err := f.service.AddServer(context.Background(), f.params("second"))
	var conflict *domains.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "You already own a server.", conflict.Reason)
}

// TestAddServerRequiresVerifiedAccount verifies the verification gate.
func TestAddServerRequiresVerifiedAccount(t *testing.T) {
	f := newProvisioningFixture(t)
	f.store.users[f.owner.ID].Verified = false

	_, err := f.service.AddServer(context.Background(), f.params("myserver"))
	var perm *domains.PermissionError
	require.ErrorAs(t, err, &perm)
}

// TestAddServerRequiresGroupPermission verifies that the owner's group
// must allow the preset.
func TestAddServerRequiresGroupPermission(t *testing.T) {
	f := newProvisioningFixture(t)
	f.store.groups[f.owner.GroupID].PresetsAllowed = nil

	_, err := f.service.AddServer(context.Background(), f.params("myserver"))
	var perm *domains.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, 0, f.store.serverCount(), "nothing may be created before all checks pass")
}

// TestAddServerNoCapacity verifies that saturation propagates as
// ErrNoCapacity with no record created.
func TestAddServerNoCapacity(t *testing.T) {
	f := newProvisioningFixture(t)
	f.store.nodes[f.node.ID].Status = polledStatus(1000, 10)

	_, err := f.service.AddServer(context.Background(), f.params("myserver"))
	assert.ErrorIs(t, err, domains.ErrNoCapacity)
	assert.Equal(t, 0, f.store.serverCount())
}

// TestAddServerCreatesSettingsRecord verifies that a preset enabling
// the settings view gets a defaults record during provisioning.
func TestAddServerCreatesSettingsRecord(t *testing.T) {
	f := newProvisioningFixture(t)
	f.store.presets[f.preset.ID].Views = []string{domains.ViewSettings}

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	settings, ok := f.store.settings[server.ID]
	require.True(t, ok, "settings record should exist")
	assert.Equal(t, 16, settings.SpawnProtection)
	assert.True(t, settings.AllowNether)
	assert.Equal(t, 1, settings.Difficulty)
}

// TestAddServerPluginFailureIsBestEffort verifies that a failing
// preinstalled plugin does not fail or roll back provisioning, and the
// remaining plugins are still attempted.
func TestAddServerPluginFailureIsBestEffort(t *testing.T) {
	f := newProvisioningFixture(t)
	f.store.presets[f.preset.ID].PreinstalledPlugins = []string{"broken", "essentials"}

	api := f.fleet.api(f.node.ID)
	api.installPluginErr = map[string]error{"broken": nodeError(clients.CodeInvalidPlugin)}

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)
	require.NotNil(t, server)

	assert.Equal(t, 2, api.callCount("installPlugin"))
	assert.Equal(t, []string{"essentials"}, api.installed)
	assert.Equal(t, 1, f.store.serverCount())
}

// TestRemoveServerRemoteFirst verifies that the local record survives
// when the node refuses removal.
func TestRemoveServerRemoteFirst(t *testing.T) {
	f := newProvisioningFixture(t)
	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	api := f.fleet.api(f.node.ID)
	api.removeErr = nodeError(clients.CodeServerNotOff)

	err = f.service.RemoveServer(context.Background(), server)
	var failed *domains.ActionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "Server is not off.", failed.Reason)
	assert.Equal(t, 1, f.store.serverCount(), "record must remain until the node confirms removal")

	// Once the node cooperates, the record goes too.
	api.removeErr = nil
	require.NoError(t, f.service.RemoveServer(context.Background(), server))
	assert.Equal(t, 0, f.store.serverCount())
}

// TestRemoveServerLocked verifies the locked-instance message mapping.
func TestRemoveServerLocked(t *testing.T) {
	f := newProvisioningFixture(t)
	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	f.fleet.api(f.node.ID).removeErr = nodeError(clients.CodeServerLocked)

	err = f.service.RemoveServer(context.Background(), server)
	var failed *domains.ActionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "Server is locked.", failed.Reason)
}

// TestChangePreset verifies the full preset switch: allow-list check,
// group permission, remote edit, then the local reference update.
func TestChangePreset(t *testing.T) {
	f := newProvisioningFixture(t)

	target := &domains.Preset{
		ID:         uuid.New(),
		Name:       "modded",
		Game:       "minecraft",
		Build:      domains.BuildLimits{IO: 500, CPU: 200, Mem: 4096},
		MaxPlayers: 40,
	}
	f.store.presets[target.ID] = target
	f.store.presets[f.preset.ID].AllowSwitchingTo = []uuid.UUID{target.ID}
	f.store.groups[f.owner.GroupID].PresetsAllowed = []uuid.UUID{f.preset.ID, target.ID}

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	require.NoError(t, f.service.ChangePreset(context.Background(), server, target.ID))

	stored, err := f.store.GetServer(context.Background(), server.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, stored.PresetID)

	// The node received the new preset's template on the existing port.
	api := f.fleet.api(f.node.ID)
	assert.Equal(t, 1, api.callCount("edit"))
	assert.Equal(t, 4096, api.editTemplate.Build.Mem)
	assert.Equal(t, server.Port, api.editTemplate.Port)
}

// TestChangePresetNotAllowed verifies that a preset outside the current
// preset's switch list is rejected before any remote call.
func TestChangePresetNotAllowed(t *testing.T) {
	f := newProvisioningFixture(t)
	target := &domains.Preset{ID: uuid.New(), Name: "modded", Game: "minecraft"}
	f.store.presets[target.ID] = target

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)
	dialsBefore := f.fleet.dialCount()

	err = f.service.ChangePreset(context.Background(), server, target.ID)
	var failed *domains.ActionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "Preset not allowed.", failed.Reason)
	assert.Equal(t, dialsBefore, f.fleet.dialCount())
}

// TestChangePresetSamePreset verifies switching to the current preset
// is rejected.
func TestChangePresetSamePreset(t *testing.T) {
	f := newProvisioningFixture(t)
	f.store.presets[f.preset.ID].AllowSwitchingTo = []uuid.UUID{f.preset.ID}

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	err = f.service.ChangePreset(context.Background(), server, f.preset.ID)
	var failed *domains.ActionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "This is already your preset.", failed.Reason)
}

// TestAddSubowner verifies granting and the rejection of duplicates and
// of the owner.
func TestAddSubowner(t *testing.T) {
	f := newProvisioningFixture(t)
	friend := &domains.User{ID: uuid.New(), Email: "friend@example.com", GroupID: f.owner.GroupID, Verified: true}
	f.store.users[friend.ID] = friend

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	require.NoError(t, f.service.AddSubowner(context.Background(), server, friend.Email))
	assert.True(t, server.IsSubowner(friend.ID))

	// Duplicate.
	err = f.service.AddSubowner(context.Background(), server, friend.Email)
	var conflict *domains.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "User is already a subuser.", conflict.Reason)

	// The owner is never a valid sub-owner.
	err = f.service.AddSubowner(context.Background(), server, f.owner.Email)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "The server owner is not a valid subuser.", conflict.Reason)
}

// TestRemoveSubowner verifies revocation and the unknown-user case.
func TestRemoveSubowner(t *testing.T) {
	f := newProvisioningFixture(t)
	friend := &domains.User{ID: uuid.New(), Email: "friend@example.com", GroupID: f.owner.GroupID, Verified: true}
	f.store.users[friend.ID] = friend

	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)
	require.NoError(t, f.service.AddSubowner(context.Background(), server, friend.Email))

	require.NoError(t, f.service.RemoveSubowner(context.Background(), server, friend.ID))
	assert.False(t, server.IsSubowner(friend.ID))

	err = f.service.RemoveSubowner(context.Background(), server, friend.ID)
	var failed *domains.ActionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "User is not a subuser.", failed.Reason)
}

// TestResetPassword verifies a fresh credential is generated and sent
// to the node.
func TestResetPassword(t *testing.T) {
	f := newProvisioningFixture(t)
	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	password, err := f.service.ResetPassword(context.Background(), server)
	require.NoError(t, err)
	assert.NotEmpty(t, password)
	assert.NotEqual(t, server.SFTPPassword, password)
	assert.Equal(t, password, f.fleet.api(f.node.ID).lastPassword)
}

// TestInstallPluginMessages verifies the plugin error code mappings.
func TestInstallPluginMessages(t *testing.T) {
	cases := []struct {
		code    clients.ErrorCode
		message string
	}{
		{clients.CodePluginInstalled, "Plugin already installed."},
		{clients.CodeInvalidPlugin, "Plugin does not exist."},
		{clients.CodePluginNotSupported, "Plugin not supported."},
		{clients.CodeServerNotOff, "Server is not off."},
		{clients.CodeUnknown, "Unknown error."},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			f := newProvisioningFixture(t)
			server, err := f.service.AddServer(context.Background(), f.params("myserver"))
			require.NoError(t, err)

			f.fleet.api(f.node.ID).installPluginErr = map[string]error{"worldedit": nodeError(tc.code)}

			err = f.service.InstallPlugin(context.Background(), server, "worldedit")
			var failed *domains.ActionFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, tc.message, failed.Reason)
		})
	}
}

// TestListPlugins verifies the node's installed-plugin list passes
// through.
func TestListPlugins(t *testing.T) {
	f := newProvisioningFixture(t)
	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	f.fleet.api(f.node.ID).serverPlugins = []string{"essentials", "worldedit"}

	plugins, err := f.service.Plugins(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, []string{"essentials", "worldedit"}, plugins)
}

// TestServerOperationsWithMissingNode verifies operations against an
// instance whose node record is gone fail cleanly.
func TestServerOperationsWithMissingNode(t *testing.T) {
	f := newProvisioningFixture(t)
	server, err := f.service.AddServer(context.Background(), f.params("myserver"))
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteNode(context.Background(), f.node.ID))

	err = f.service.RemoveServer(context.Background(), server)
	var failed *domains.ActionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "Node not found.", failed.Reason)
}
