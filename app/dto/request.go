package dto

// CreateServerRequest represents a server provisioning request
type CreateServerRequest struct {
	Name    string `json:"name" validate:"required,min=3,max=32"`
	Preset  string `json:"preset" validate:"required,uuid"`
	MOTD    string `json:"motd" validate:"max=64"`
	Captcha string `json:"captcha,omitempty"`
}

// ChangePresetRequest represents a preset switch request
type ChangePresetRequest struct {
	Preset string `json:"preset" validate:"required,uuid"`
}

// ExecuteCommandRequest represents a console command request
type ExecuteCommandRequest struct {
	Command string `json:"command" validate:"required"`
}

// PluginRequest represents a plugin install request
type PluginRequest struct {
	Plugin string `json:"plugin" validate:"required"`
}

// AddSubownerRequest represents a sub-owner grant request
type AddSubownerRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// FilePathRequest represents a filesystem operation targeting a path
type FilePathRequest struct {
	Path string `json:"path" validate:"required"`
}

// WriteFileRequest represents a file write request
type WriteFileRequest struct {
	Path     string `json:"path" validate:"required"`
	Contents string `json:"contents"`
}

// NodeRequest represents admin node create/update
type NodeRequest struct {
	Name   string `json:"name" validate:"required"`
	Host   string `json:"host" validate:"required"`
	Port   int    `json:"port" validate:"required,min=1,max=65535"`
	Secret string `json:"secret" validate:"required"`
}
