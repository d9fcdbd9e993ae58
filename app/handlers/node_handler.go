package handlers

import (
	"net/http"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/dto"
	"fleet-svc/app/services"
	"fleet-svc/app/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NodeHandler handles admin node endpoints
type NodeHandler struct {
	storage clients.StorageAdapter
	monitor *services.NodeMonitor
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(storage clients.StorageAdapter, monitor *services.NodeMonitor) *NodeHandler {
	return &NodeHandler{storage: storage, monitor: monitor}
}

// Create handles node registration by an admin
func (h *NodeHandler) Create(c *gin.Context) {
	var req dto.NodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	node := &domains.Node{
		ID:      uuid.New(),
		Name:    req.Name,
		Host:    req.Host,
		Port:    req.Port,
		Secret:  req.Secret,
		Games:   []string{},
		Plugins: []string{},
	}
	if err := h.storage.CreateNode(c.Request.Context(), node); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to create node", nil)
		return
	}
	respondJSON(c, http.StatusCreated, dto.NodeResponse{Node: node})
}

// List handles listing all nodes
func (h *NodeHandler) List(c *gin.Context) {
	nodes, err := h.storage.ListNodes(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list nodes", nil)
		return
	}
	respondJSON(c, http.StatusOK, dto.ListNodesResponse{Nodes: nodes})
}

// Get handles fetching a single node
func (h *NodeHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "node not found", nil)
		return
	}
	node, err := h.storage.GetNode(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load node", nil)
		return
	}
	if node == nil {
		respondError(c, http.StatusNotFound, "node not found", nil)
		return
	}
	respondJSON(c, http.StatusOK, dto.NodeResponse{Node: node})
}

// Update handles editing a node's identity, address or secret
func (h *NodeHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "node not found", nil)
		return
	}

	var req dto.NodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	node, err := h.storage.GetNode(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load node", nil)
		return
	}
	if node == nil {
		respondError(c, http.StatusNotFound, "node not found", nil)
		return
	}

	node.Name = req.Name
	node.Host = req.Host
	node.Port = req.Port
	node.Secret = req.Secret
	if err := h.storage.UpdateNode(c.Request.Context(), node); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update node", nil)
		return
	}
	respondJSON(c, http.StatusOK, dto.NodeResponse{Node: node})
}

// Delete handles removing a node. Instances already assigned to it are
// left referencing it; they are not cascaded.
func (h *NodeHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "node not found", nil)
		return
	}
	if err := h.storage.DeleteNode(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to delete node", nil)
		return
	}
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}

// Refresh forces one monitor tick outside the schedule
func (h *NodeHandler) Refresh(c *gin.Context) {
	h.monitor.Check(c.Request.Context())
	respondJSON(c, http.StatusOK, dto.OKResponse{OK: true})
}
