package domains

import "github.com/google/uuid"

// BuildLimits holds the resource limits a preset grants an instance.
type BuildLimits struct {
	IO  int `json:"io" db:"io"`
	CPU int `json:"cpu" db:"cpu"`
	Mem int `json:"mem" db:"mem"`
}

// FSRule marks a path an instance under this preset may never touch.
type FSRule struct {
	Path string `json:"path" db:"path"`
}

// Preset is a named resource/feature template assignable to instances.
type Preset struct {
	ID                  uuid.UUID   `json:"id" db:"id"`
	Name                string      `json:"name" db:"name"`
	Game                string      `json:"game" db:"game"`
	Build               BuildLimits `json:"build" db:"build"`
	MaxPlayers          int         `json:"max_players" db:"max_players"`
	AllowSwitchingTo    []uuid.UUID `json:"allow_switching_to" db:"allow_switching_to"`
	PreinstalledPlugins []string    `json:"preinstalled_plugins" db:"preinstalled_plugins"`
	Views               []string    `json:"views" db:"views"`
	FSRules             []FSRule    `json:"fs_rules" db:"fs_rules"`
}

// ViewSettings is the feature view that triggers creation of a
// game-settings record during provisioning.
const ViewSettings = "settings_viewer"

// HasView reports whether the preset enables the named feature view.
func (p *Preset) HasView(view string) bool {
	for _, v := range p.Views {
		if v == view {
			return true
		}
	}
	return false
}

// AllowsSwitchTo reports whether instances may switch to the preset.
func (p *Preset) AllowsSwitchTo(presetID uuid.UUID) bool {
	for _, id := range p.AllowSwitchingTo {
		if id == presetID {
			return true
		}
	}
	return false
}

// GameSettings is the auxiliary per-instance settings record created
// when the preset enables the settings view.
type GameSettings struct {
	ServerID        uuid.UUID `json:"server_id" db:"server_id"`
	SpawnProtection int       `json:"spawnprotection" db:"spawnprotection"`
	AllowNether     bool      `json:"allownether" db:"allownether"`
	Gamemode        int       `json:"gamemode" db:"gamemode"`
	Difficulty      int       `json:"difficulty" db:"difficulty"`
	SpawnMonsters   bool      `json:"spawnmonsters" db:"spawnmonsters"`
	PVP             bool      `json:"pvp" db:"pvp"`
	Hardcore        bool      `json:"hardcore" db:"hardcore"`
	AllowFlight     bool      `json:"allowflight" db:"allowflight"`
	ResourcePack    string    `json:"resourcepack" db:"resourcepack"`
	Whitelist       bool      `json:"whitelist" db:"whitelist"`
}

// DefaultGameSettings returns the settings record created for a new
// instance.
func DefaultGameSettings(serverID uuid.UUID) *GameSettings {
	return &GameSettings{
		ServerID:        serverID,
		SpawnProtection: 16,
		AllowNether:     true,
		Gamemode:        0,
		Difficulty:      1,
		SpawnMonsters:   true,
		PVP:             true,
		Hardcore:        false,
		AllowFlight:     false,
		ResourcePack:    "",
		Whitelist:       false,
	}
}
