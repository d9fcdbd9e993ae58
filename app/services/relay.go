package services

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandshakeTimeout bounds the relay's auth and upstream dial window.
const HandshakeTimeout = 15 * time.Second

// ErrRelayUnauthorized is returned whether the instance is missing or
// the principal lacks access, so a failed authorization reveals nothing
// about the instance's existence.
var ErrRelayUnauthorized = errors.New("not authorized for console session")

// relayChannels is the fixed set of upstream events the relay forwards.
var relayChannels = map[string]struct{}{
	"console":       {},
	"block":         {},
	"installed":     {},
	"announcement":  {},
	"statusUpdate":  {},
	"initialStatus": {},
}

// UpstreamDialer opens the real-time connection to a node's console
// endpoint for one instance.
type UpstreamDialer func(ctx context.Context, node *domains.Node, serverID uuid.UUID) (*websocket.Conn, error)

// NewUpstreamDialer returns a dialer for real node console endpoints,
// authenticating with the node's shared secret.
func NewUpstreamDialer(insecureTLS bool) UpstreamDialer {
	return func(ctx context.Context, node *domains.Node, serverID uuid.UUID) (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
		if insecureTLS {
			dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}

		endpoint := url.URL{
			Scheme: "wss",
			Host:   fmt.Sprintf("%s:%d", node.Host, node.Port),
			Path:   "/server/" + serverID.String(),
		}
		header := http.Header{"Authorization": {"Token " + node.Secret}}

		conn, resp, err := dialer.DialContext(ctx, endpoint.String(), header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("console dial to node failed with status %d: %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("console dial to node failed: %w", err)
		}
		return conn, nil
	}
}

// ConsoleRelay authorizes console sessions and opens their upstream
// connections. One session per client connection, scoped to exactly
// one instance.
type ConsoleRelay struct {
	storage clients.StorageAdapter
	dial    UpstreamDialer
	logger  *zap.Logger
}

// NewConsoleRelay creates a new console relay
func NewConsoleRelay(storage clients.StorageAdapter, dial UpstreamDialer, logger *zap.Logger) *ConsoleRelay {
	return &ConsoleRelay{storage: storage, dial: dial, logger: logger}
}

// Authorize resolves the instance and checks that the principal is its
// owner or a registered sub-owner. It never touches the owning node;
// the node address and secret are dereferenced only after this passes.
func (r *ConsoleRelay) Authorize(ctx context.Context, serverID, userID uuid.UUID) (*domains.GameServer, error) {
	server, err := r.storage.GetServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to load server: %w", err)
	}
	if server == nil || !server.HasAccess(userID) {
		return nil, ErrRelayUnauthorized
	}
	return server, nil
}

// Connect opens the upstream connection for an authorized session.
func (r *ConsoleRelay) Connect(ctx context.Context, server *domains.GameServer) (*websocket.Conn, error) {
	node, err := r.storage.GetNode(ctx, server.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node: %w", err)
	}
	if node == nil {
		return nil, fmt.Errorf("node %s not found for server %s", server.NodeID, server.ID)
	}
	return r.dial(ctx, node, server.ID)
}

// ConsoleSession binds a client connection and a node connection for
// the life of one session. Either side closing tears down the other;
// no session half survives.
type ConsoleSession struct {
	client   *websocket.Conn
	upstream *websocket.Conn
	logger   *zap.Logger

	closeOnce sync.Once
}

// NewConsoleSession pairs the two connections.
func NewConsoleSession(client, upstream *websocket.Conn, logger *zap.Logger) *ConsoleSession {
	return &ConsoleSession{client: client, upstream: upstream, logger: logger}
}

// Run forwards upstream messages to the client until either side
// disconnects, then closes both halves. It blocks for the session's
// lifetime. There is no reconnection: a session is single-shot.
func (s *ConsoleSession) Run() {
	metrics.ConsoleSessions.Inc()
	defer metrics.ConsoleSessions.Dec()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// The client sends nothing the relay acts on; reading only
		// detects its disconnect.
		for {
			if _, _, err := s.client.ReadMessage(); err != nil {
				break
			}
		}
		s.teardown()
	}()

	for {
		_, message, err := s.upstream.ReadMessage()
		if err != nil {
			break
		}
		if !forwardable(message) {
			continue
		}
		if err := s.client.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
	s.teardown()

	wg.Wait()
}

func (s *ConsoleSession) teardown() {
	s.closeOnce.Do(func() {
		s.upstream.Close()
		s.client.Close()
	})
}

// forwardable reports whether the message's event channel is in the
// relay's fixed set. The message itself is re-emitted verbatim.
func forwardable(message []byte) bool {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return false
	}
	_, ok := relayChannels[envelope.Event]
	return ok
}
