package handlers

import (
	"errors"
	"net/http"
	"strings"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/dto"
	"fleet-svc/app/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxUserID = "userID"
	ctxServer = "server"
)

// respondJSON sends a JSON response
func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// respondError sends an error response
func respondError(c *gin.Context, status int, message string, details map[string]string) {
	c.JSON(status, dto.ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// respondDomainError maps workflow errors to stable user-facing
// responses. Transport detail never reaches the client.
func respondDomainError(c *gin.Context, err error) {
	var (
		conflict    *domains.ConflictError
		permission  *domains.PermissionError
		action      *domains.ActionFailedError
		doubleFault *domains.DoubleFaultError
	)
	switch {
	case errors.As(err, &conflict):
		respondError(c, http.StatusConflict, conflict.Reason, nil)
	case errors.As(err, &permission):
		respondError(c, http.StatusForbidden, permission.Reason, nil)
	case errors.As(err, &action):
		respondError(c, http.StatusBadRequest, action.Reason, nil)
	case errors.As(err, &doubleFault):
		respondError(c, http.StatusInternalServerError, "Server allocation failed and cleanup also failed; contact support.", nil)
	case errors.Is(err, domains.ErrNoCapacity):
		respondError(c, http.StatusServiceUnavailable, "No available nodes for game.", nil)
	case errors.Is(err, services.ErrAllocationFailed):
		respondError(c, http.StatusBadGateway, "Failed to add server to selected node.", nil)
	default:
		respondError(c, http.StatusInternalServerError, "internal error", nil)
	}
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// AuthRequired validates the bearer token and stores the principal.
func AuthRequired(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, http.StatusUnauthorized, "missing token", nil)
			c.Abort()
			return
		}
		userID, err := jwtService.ValidateToken(token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// AdminRequired allows only principals whose group is an admin group.
func AdminRequired(storage clients.StorageAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := storage.GetUser(c.Request.Context(), authedUser(c))
		if err != nil || user == nil {
			respondError(c, http.StatusForbidden, "forbidden", nil)
			c.Abort()
			return
		}
		group, err := storage.GetGroup(c.Request.Context(), user.GroupID)
		if err != nil || group == nil || !group.IsAdmin {
			respondError(c, http.StatusForbidden, "forbidden", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ServerAccess loads the instance from the :id parameter and requires
// the principal to be its owner or a sub-owner. A missing instance and
// a denied one respond identically.
func ServerAccess(storage clients.StorageAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			respondError(c, http.StatusNotFound, "server not found", nil)
			c.Abort()
			return
		}
		server, err := storage.GetServer(c.Request.Context(), serverID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to load server", nil)
			c.Abort()
			return
		}
		if server == nil || !server.HasAccess(authedUser(c)) {
			respondError(c, http.StatusNotFound, "server not found", nil)
			c.Abort()
			return
		}
		c.Set(ctxServer, server)
		c.Next()
	}
}

// authedUser returns the authenticated principal's id.
func authedUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// currentServer returns the instance loaded by ServerAccess.
func currentServer(c *gin.Context) *domains.GameServer {
	if v, ok := c.Get(ctxServer); ok {
		if server, ok := v.(*domains.GameServer); ok {
			return server
		}
	}
	return nil
}
