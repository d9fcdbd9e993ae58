package handlers

import (
	"net/http"

	"fleet-svc/app/clients"
	"fleet-svc/app/dto"
	"fleet-svc/app/services"
	"fleet-svc/app/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServerHandler handles game-server instance endpoints
type ServerHandler struct {
	servers  *services.ServerService
	controls *services.ControlsService
	files    *services.FilesService
}

// NewServerHandler creates a new server handler
func NewServerHandler(
	servers *services.ServerService,
	controls *services.ControlsService,
	files *services.FilesService,
) *ServerHandler {
	return &ServerHandler{
		servers:  servers,
		controls: controls,
		files:    files,
	}
}

// Create handles server provisioning
func (h *ServerHandler) Create(c *gin.Context) {
	var req dto.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	presetID, err := uuid.Parse(req.Preset)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid preset id", nil)
		return
	}

	server, err := h.servers.AddServer(c.Request.Context(), services.CreateServerParams{
		OwnerID:      authedUser(c),
		PresetID:     presetID,
		Name:         req.Name,
		MOTD:         req.MOTD,
		CaptchaProof: req.Captcha,
		RemoteIP:     c.ClientIP(),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, dto.CreateServerResponse{Server: server})
}

// Status handles fetching the node's live view of the instance
func (h *ServerHandler) Status(c *gin.Context) {
	status, err := h.servers.Status(c.Request.Context(), currentServer(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, status)
}

// Delete handles deprovisioning; only the owner may remove an instance
func (h *ServerHandler) Delete(c *gin.Context) {
	server := currentServer(c)
	if server.OwnerID != authedUser(c) {
		respondError(c, http.StatusForbidden, "only the owner may remove a server", nil)
		return
	}
	if err := h.servers.RemoveServer(c.Request.Context(), server); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// ChangePreset handles switching the instance to a new preset
func (h *ServerHandler) ChangePreset(c *gin.Context) {
	server := currentServer(c)
	if server.OwnerID != authedUser(c) {
		respondError(c, http.StatusForbidden, "only the owner may change the preset", nil)
		return
	}

	var req dto.ChangePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}
	presetID, err := uuid.Parse(req.Preset)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid preset id", nil)
		return
	}

	if err := h.servers.ChangePreset(c.Request.Context(), server, presetID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// Power handles power actions (on, off, kill)
func (h *ServerHandler) Power(c *gin.Context) {
	action := clients.PowerAction(c.Param("action"))
	if err := h.controls.SetPower(c.Request.Context(), currentServer(c), action); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// Install handles first-time install
func (h *ServerHandler) Install(c *gin.Context) {
	if err := h.controls.Install(c.Request.Context(), currentServer(c)); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// Reinstall handles wiping and reinstalling
func (h *ServerHandler) Reinstall(c *gin.Context) {
	if err := h.controls.Reinstall(c.Request.Context(), currentServer(c)); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// Execute handles running a console command
func (h *ServerHandler) Execute(c *gin.Context) {
	var req dto.ExecuteCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}
	if err := h.controls.Execute(c.Request.Context(), currentServer(c), req.Command); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// ListPlugins handles listing the plugins installed on the instance
func (h *ServerHandler) ListPlugins(c *gin.Context) {
	plugins, err := h.servers.Plugins(c.Request.Context(), currentServer(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"plugins": plugins})
}

// InstallPlugin handles installing a plugin
func (h *ServerHandler) InstallPlugin(c *gin.Context) {
	var req dto.PluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}
	if err := h.servers.InstallPlugin(c.Request.Context(), currentServer(c), req.Plugin); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// RemovePlugin handles removing a plugin
func (h *ServerHandler) RemovePlugin(c *gin.Context) {
	plugin := c.Param("plugin")
	if plugin == "" {
		respondError(c, http.StatusBadRequest, "missing plugin", nil)
		return
	}
	if err := h.servers.RemovePlugin(c.Request.Context(), currentServer(c), plugin); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// AddSubowner handles granting access to another account
func (h *ServerHandler) AddSubowner(c *gin.Context) {
	server := currentServer(c)
	if server.OwnerID != authedUser(c) {
		respondError(c, http.StatusForbidden, "only the owner may manage subusers", nil)
		return
	}

	var req dto.AddSubownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}
	if err := h.servers.AddSubowner(c.Request.Context(), server, req.Email); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// RemoveSubowner handles revoking a sub-owner's access
func (h *ServerHandler) RemoveSubowner(c *gin.Context) {
	server := currentServer(c)
	if server.OwnerID != authedUser(c) {
		respondError(c, http.StatusForbidden, "only the owner may manage subusers", nil)
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id", nil)
		return
	}
	if err := h.servers.RemoveSubowner(c.Request.Context(), server, userID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// ResetPassword handles generating a fresh SFTP credential
func (h *ServerHandler) ResetPassword(c *gin.Context) {
	server := currentServer(c)
	if server.OwnerID != authedUser(c) {
		respondError(c, http.StatusForbidden, "only the owner may reset the password", nil)
		return
	}
	password, err := h.servers.ResetPassword(c.Request.Context(), server)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.PasswordResponse{Password: password})
}

// CheckPath handles asking whether a path may be accessed
func (h *ServerHandler) CheckPath(c *gin.Context) {
	var req dto.FilePathRequest
	if err := bindPathRequest(c, &req); err != nil {
		return
	}
	allowed, err := h.files.CheckPath(c.Request.Context(), currentServer(c), req.Path)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.CheckPathResponse{Allowed: allowed})
}

// FileContents handles reading a file
func (h *ServerHandler) FileContents(c *gin.Context) {
	var req dto.FilePathRequest
	if err := bindPathRequest(c, &req); err != nil {
		return
	}
	contents, err := h.files.FileContents(c.Request.Context(), currentServer(c), req.Path)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.FileContentsResponse{Contents: contents})
}

// WriteFile handles writing a file
func (h *ServerHandler) WriteFile(c *gin.Context) {
	var req dto.WriteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}
	if err := h.files.WriteFile(c.Request.Context(), currentServer(c), req.Path, req.Contents); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// RemoveFile handles deleting a file
func (h *ServerHandler) RemoveFile(c *gin.Context) {
	var req dto.FilePathRequest
	if err := bindPathRequest(c, &req); err != nil {
		return
	}
	if err := h.files.RemoveFile(c.Request.Context(), currentServer(c), req.Path); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// RemoveFolder handles deleting a directory
func (h *ServerHandler) RemoveFolder(c *gin.Context) {
	var req dto.FilePathRequest
	if err := bindPathRequest(c, &req); err != nil {
		return
	}
	if err := h.files.RemoveFolder(c.Request.Context(), currentServer(c), req.Path); err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// ListDir handles listing a directory
func (h *ServerHandler) ListDir(c *gin.Context) {
	var req dto.FilePathRequest
	if err := bindPathRequest(c, &req); err != nil {
		return
	}
	entries, err := h.files.ListDir(c.Request.Context(), currentServer(c), req.Path)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"contents": entries})
}

func bindPathRequest(c *gin.Context, req *dto.FilePathRequest) error {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return err
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return err
	}
	return nil
}
