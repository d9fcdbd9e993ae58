package handlers

import (
	"context"
	"errors"
	"net/http"

	"fleet-svc/app/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConsoleHandler handles console relay sessions
type ConsoleHandler struct {
	jwtService *services.JWTService
	relay      *services.ConsoleRelay
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(jwtService *services.JWTService, relay *services.ConsoleRelay, logger *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{
		jwtService: jwtService,
		relay:      relay,
		logger:     logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: services.HandshakeTimeout,
			// The panel frontend runs on its own origin; auth is the
			// bearer token, not the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Console handles one relay session for the life of the connection.
// Every check runs before the upgrade and before any node address or
// secret is dereferenced: a rejected handshake never causes an
// outbound connection.
func (h *ConsoleHandler) Console(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c)
	}
	userID, err := h.jwtService.ValidateToken(token)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "invalid token", nil)
		return
	}

	serverParam := c.Query("server")
	if serverParam == "" {
		respondError(c, http.StatusBadRequest, "missing server", nil)
		return
	}
	serverID, err := uuid.Parse(serverParam)
	if err != nil {
		respondError(c, http.StatusNotFound, "server not found", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), services.HandshakeTimeout)
	defer cancel()

	server, err := h.relay.Authorize(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, services.ErrRelayUnauthorized) {
			respondError(c, http.StatusNotFound, "server not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to open session", nil)
		return
	}

	client, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	upstream, err := h.relay.Connect(ctx, server)
	if err != nil {
		h.logger.Error("failed to reach node console",
			zap.String("server", server.ID.String()),
			zap.Error(err))
		client.Close()
		return
	}

	session := services.NewConsoleSession(client, upstream, h.logger)
	session.Run()
}
