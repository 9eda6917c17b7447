// Package registry holds the in-process map of named multicast rooms and
// their member connections. Membership is ephemeral: it is rebuilt when a
// connection reconnects and torn down in full when it goes away.
package registry

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/models"
)

// Member is one live connection as the registry sees it. Enqueue must not
// block; it reports false when the member's send buffer is full.
type Member interface {
	ConnID() string
	Identity() models.Identity
	Enqueue(data []byte) bool
}

// Registry is the single source of truth for room membership. All methods
// are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Member              // connID → member
	rooms   map[string]map[string]Member   // room → connID → member
	joined  map[string]map[string]struct{} // connID → room set
	logger  zerolog.Logger
}

func New(logger zerolog.Logger) *Registry {
	return &Registry{
		members: make(map[string]Member),
		rooms:   make(map[string]map[string]Member),
		joined:  make(map[string]map[string]struct{}),
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Register makes a connection addressable before it has joined any room.
func (r *Registry) Register(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ConnID()] = m
	r.joined[m.ConnID()] = make(map[string]struct{})
}

// Unregister removes the connection from every room it joined and drops it
// from the registry. It must complete before any further event for that
// connection id is processed; callers invoke it synchronously on teardown.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Snapshot the room set before mutating it mid-scan.
	names := make([]string, 0, len(r.joined[connID]))
	for name := range r.joined[connID] {
		names = append(names, name)
	}
	for _, name := range names {
		r.leaveLocked(name, connID)
	}
	delete(r.joined, connID)
	delete(r.members, connID)
}

// Join adds a registered connection to the named room. Unknown connections
// are ignored: a disconnect may have raced the join.
func (r *Registry) Join(room string, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	if !ok {
		return
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]Member)
	}
	r.rooms[room][connID] = m
	r.joined[connID][room] = struct{}{}
}

func (r *Registry) Leave(room string, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, connID)
	if set, ok := r.joined[connID]; ok {
		delete(set, room)
	}
}

func (r *Registry) leaveLocked(room string, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Rooms returns the rooms a connection currently belongs to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.joined[connID]))
	for name := range r.joined[connID] {
		names = append(names, name)
	}
	return names
}

// Members returns the current membership of a room.
func (r *Registry) Members(room string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.rooms[room]))
	for _, m := range r.rooms[room] {
		out = append(out, m)
	}
	return out
}

// Broadcast delivers an event to every current member of the room,
// at-most-once and fire-and-forget. A full member buffer drops the frame for
// that member only.
func (r *Registry) Broadcast(room string, event models.Event) {
	r.BroadcastExcept(room, "", event)
}

// BroadcastExcept is Broadcast minus one connection, used for events whose
// originator already knows ("user-joined", media toggles).
func (r *Registry) BroadcastExcept(room string, excludeConnID string, event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event.Name).Msg("failed to marshal event")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID, m := range r.rooms[room] {
		if connID == excludeConnID {
			continue
		}
		if !m.Enqueue(data) {
			r.logger.Warn().Str("conn", connID).Str("room", room).Msg("send buffer full, frame dropped")
		}
	}
}

// Send delivers an event to a single connection. Unknown ids are a silent
// no-op: the target may have disconnected a moment ago.
func (r *Registry) Send(connID string, event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event.Name).Msg("failed to marshal event")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[connID]
	if !ok {
		return
	}
	if !m.Enqueue(data) {
		r.logger.Warn().Str("conn", connID).Msg("send buffer full, frame dropped")
	}
}
