// Package gateway authenticates WebSocket connections, binds each one to an
// identity for its lifetime, places it into its baseline rooms and routes
// inbound frames to the signaling relay and storefront subscriptions.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/auth"
	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/registry"
	"github.com/mossy-p/storefront-realtime/internal/signaling"
	"github.com/mossy-p/storefront-realtime/internal/store"
)

// IdentityResolver looks up the principal record for a verified subject.
type IdentityResolver interface {
	Identity(ctx context.Context, id string) (models.Identity, error)
}

// Snapshotter produces the initial_data payload for a storefront join.
type Snapshotter interface {
	Snapshot(ctx context.Context, code string) (map[string]any, error)
}

type handlerFunc func(c *Client, in models.Inbound)

// Gateway upgrades connections, runs the handshake and owns the inbound
// handler table. Adding a message type means adding a table entry here; a
// frame whose type has no entry is rejected back to the caller.
type Gateway struct {
	verifier   *auth.Verifier
	identities IdentityResolver
	registry   *registry.Registry
	relay      *signaling.Relay
	snapshots  Snapshotter
	upgrader   websocket.Upgrader
	handlers   map[models.MessageType]handlerFunc
	logger     zerolog.Logger
}

func New(
	verifier *auth.Verifier,
	identities IdentityResolver,
	reg *registry.Registry,
	relay *signaling.Relay,
	snapshots Snapshotter,
	logger zerolog.Logger,
) *Gateway {
	g := &Gateway{
		verifier:   verifier,
		identities: identities,
		registry:   reg,
		relay:      relay,
		snapshots:  snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by middleware.
				return true
			},
		},
		logger: logger.With().Str("component", "gateway").Logger(),
	}

	g.handlers = map[models.MessageType]handlerFunc{
		models.MessageJoinRoom:          g.handleJoinRoom,
		models.MessageLeaveRoom:         g.handleLeaveRoom,
		models.MessageOffer:             g.handleSignal(models.EventOffer),
		models.MessageAnswer:            g.handleSignal(models.EventAnswer),
		models.MessageIceCandidate:      g.handleSignal(models.EventIceCandidate),
		models.MessageToggleAudio:       g.handleToggleAudio,
		models.MessageToggleVideo:       g.handleToggleVideo,
		models.MessageEndCall:           g.handleEndCall,
		models.MessageWatchStorefront:   g.handleWatchStorefront,
		models.MessageUnwatchStorefront: g.handleUnwatchStorefront,
	}
	return g
}

// Handle is the /ws endpoint. The credential is checked and the identity
// resolved before the upgrade; a rejected handshake never joins a room and
// the reason goes only to the caller.
func (g *Gateway) Handle(c *gin.Context) {
	identity, err := g.handshake(c.Request)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrNoCredential) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := &Client{
		id:       uuid.New().String(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
	client.logger = g.logger.With().Str("conn", client.id).Str("identity", identity.ID).Logger()

	g.registry.Register(client)
	g.joinBaselineRooms(c.Request.Context(), client)

	client.logger.Info().Str("role", string(identity.Role)).Msg("connection established")

	go client.writePump()
	go client.readPump(g)
}

// handshake extracts the bearer credential, verifies it and resolves the
// identity it names.
func (g *Gateway) handshake(r *http.Request) (models.Identity, error) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return models.Identity{}, auth.ErrInvalidCredential
			}
			credential = parts[1]
		}
	}

	subject, err := g.verifier.Verify(credential)
	if err != nil {
		return models.Identity{}, err
	}

	identity, err := g.identities.Identity(r.Context(), subject)
	if errors.Is(err, store.ErrNotFound) {
		return models.Identity{}, auth.ErrIdentityNotFound
	}
	if err != nil {
		g.logger.Error().Err(err).Str("subject", subject).Msg("identity lookup failed")
		return models.Identity{}, auth.ErrIdentityNotFound
	}
	return identity, nil
}

// joinBaselineRooms places a fresh connection into the rooms its identity
// implies: its identity room, role room, the admin or client broadcast room,
// the assigned-admin grouping for clients, and its own storefront.
func (g *Gateway) joinBaselineRooms(ctx context.Context, client *Client) {
	identity := client.identity
	g.registry.Join(registry.IdentityRoom(identity.ID), client.id)
	g.registry.Join(registry.RoleRoom(identity.Role), client.id)

	if identity.Role.IsAdmin() {
		g.registry.Join(registry.RoomAdmins, client.id)
	}
	if identity.Role == models.RoleClient {
		g.registry.Join(registry.RoomClients, client.id)
		if identity.AssignedAdminID != "" {
			g.registry.Join(registry.AdminRoom(identity.AssignedAdminID), client.id)
		}
	}
	if identity.StorefrontCode != "" {
		g.subscribeStorefront(ctx, client, identity.StorefrontCode)
	}
}

// subscribeStorefront joins the storefront room and replays the full catalog
// snapshot to this connection only, so a late joiner sees current state
// without waiting for the next feed event or poll tick.
func (g *Gateway) subscribeStorefront(ctx context.Context, client *Client, code string) {
	g.registry.Join(registry.StorefrontRoom(code), client.id)

	snapshot, err := g.snapshots.Snapshot(ctx, code)
	if err != nil {
		client.logger.Warn().Err(err).Str("storefront", code).Msg("initial snapshot failed")
		return
	}
	g.registry.Send(client.id, models.Event{
		Name:      models.EventInitialData,
		Data:      snapshot,
		Timestamp: time.Now(),
	})
}

// route parses one inbound frame and dispatches it through the handler
// table. Handler bodies are recover-isolated so one failure cannot break
// sibling handlers or kill the pump.
func (g *Gateway) route(client *Client, data []byte) {
	var in models.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		client.logger.Warn().Err(err).Msg("discarding unparseable frame")
		return
	}

	handler, ok := g.handlers[in.Type]
	if !ok {
		client.logger.Warn().Str("type", string(in.Type)).Msg("unknown message type")
		g.sendError(client, "unknown message type: "+string(in.Type))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			client.logger.Error().Interface("panic", rec).Str("type", string(in.Type)).
				Msg("recovered from handler panic")
		}
	}()
	handler(client, in)
}

// teardown runs on every disconnect path. Room and call cleanup completes
// synchronously before the pump returns, so no event processed afterwards
// can still address this connection.
func (g *Gateway) teardown(client *Client) {
	g.relay.Disconnect(client.id)
	g.registry.Unregister(client.id)
	close(client.send)
	_ = client.conn.Close()
	client.logger.Info().Msg("connection closed")
}

func (g *Gateway) handleJoinRoom(c *Client, in models.Inbound) {
	displayName := in.DisplayName
	if displayName == "" {
		displayName = c.identity.DisplayName
	}
	g.relay.Join(c.id, c.identity, in.RoomID, displayName, in.CallType)
}

func (g *Gateway) handleLeaveRoom(c *Client, _ models.Inbound) {
	g.relay.Leave(c.id)
}

func (g *Gateway) handleSignal(event string) handlerFunc {
	return func(c *Client, in models.Inbound) {
		g.relay.Forward(c.id, event, in.To, in.RoomID, in.Payload)
	}
}

func (g *Gateway) handleToggleAudio(c *Client, in models.Inbound) {
	if in.Enabled == nil {
		g.sendError(c, "enabled is required")
		return
	}
	g.relay.ToggleAudio(c.id, *in.Enabled)
}

func (g *Gateway) handleToggleVideo(c *Client, in models.Inbound) {
	if in.Enabled == nil {
		g.sendError(c, "enabled is required")
		return
	}
	g.relay.ToggleVideo(c.id, *in.Enabled)
}

func (g *Gateway) handleEndCall(c *Client, _ models.Inbound) {
	g.relay.EndCall(c.id)
}

func (g *Gateway) handleWatchStorefront(c *Client, in models.Inbound) {
	if in.Code == "" {
		g.sendError(c, "code is required")
		return
	}
	g.subscribeStorefront(context.Background(), c, in.Code)
}

func (g *Gateway) handleUnwatchStorefront(c *Client, in models.Inbound) {
	if in.Code == "" {
		g.sendError(c, "code is required")
		return
	}
	g.registry.Leave(registry.StorefrontRoom(in.Code), c.id)
}

func (g *Gateway) sendError(c *Client, message string) {
	g.registry.Send(c.id, models.Event{
		Name:      models.EventError,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now(),
	})
}
