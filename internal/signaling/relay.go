// Package signaling manages call rooms and relays session-negotiation
// payloads between specific connections. Payloads are opaque: the relay
// forwards bytes, it never interprets them.
package signaling

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/registry"
)

// Participant is one connection's entry in a call-room roster.
type Participant struct {
	ConnID       string          `json:"connectionId"`
	Identity     models.Identity `json:"identity"`
	DisplayName  string          `json:"displayName,omitempty"`
	AudioEnabled bool            `json:"audioEnabled"`
	VideoEnabled bool            `json:"videoEnabled"`
	JoinedAt     time.Time       `json:"joinedAt"`
}

// RoomInfo is the payload of a joined-room confirmation: the roster the
// caller sees, excluding the caller itself.
type RoomInfo struct {
	RoomID       string        `json:"roomId"`
	CallType     string        `json:"callType"`
	Participants []Participant `json:"participants"`
}

type togglePayload struct {
	ConnID   string          `json:"connectionId"`
	Identity models.Identity `json:"identity"`
	Enabled  bool            `json:"enabled"`
}

type callRoom struct {
	id           string
	callType     string
	createdAt    time.Time
	participants []*Participant
}

func (r *callRoom) find(connID string) *Participant {
	for _, p := range r.participants {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *callRoom) remove(connID string) {
	for i, p := range r.participants {
		if p.ConnID == connID {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return
		}
	}
}

// Relay owns all call-room state. A connection belongs to at most one call
// room at a time: joining a second room performs a full leave of the first.
type Relay struct {
	mu       sync.Mutex
	registry *registry.Registry
	rooms    map[string]*callRoom
	byConn   map[string]string // connID → call-room id
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRelay(reg *registry.Registry, logger zerolog.Logger) *Relay {
	return &Relay{
		registry: reg,
		rooms:    make(map[string]*callRoom),
		byConn:   make(map[string]string),
		logger:   logger.With().Str("component", "signaling").Logger(),
		now:      time.Now,
	}
}

// Join puts the caller into the call room, creating it lazily. The caller
// gets a joined-room confirmation with the current roster; everyone already
// in the room gets user-joined.
func (r *Relay) Join(connID string, identity models.Identity, roomID, displayName, callType string) {
	if roomID == "" || identity.ID == "" {
		r.sendError(connID, "roomId and identity are required to join a call")
		return
	}

	r.mu.Lock()
	// Single call room per connection: a second join implicitly leaves the
	// first room, so no stale roster entry is left behind.
	if prev, ok := r.byConn[connID]; ok && prev != roomID {
		r.leaveLocked(connID, prev, true)
	}

	room, exists := r.rooms[roomID]
	if !exists {
		room = &callRoom{
			id:        roomID,
			callType:  callType,
			createdAt: r.now(),
		}
		r.rooms[roomID] = room
		r.logger.Info().Str("room", roomID).Str("callType", callType).Msg("call room created")
	}

	// Re-joining the same room replaces the existing record.
	room.remove(connID)
	participant := &Participant{
		ConnID:       connID,
		Identity:     identity,
		DisplayName:  displayName,
		AudioEnabled: true,
		VideoEnabled: callType == "video",
		JoinedAt:     r.now(),
	}
	room.participants = append(room.participants, participant)
	r.byConn[connID] = roomID

	roster := make([]Participant, 0, len(room.participants)-1)
	for _, p := range room.participants {
		if p.ConnID != connID {
			roster = append(roster, *p)
		}
	}
	callType = room.callType
	joined := *participant
	r.mu.Unlock()

	r.registry.Join(registry.CallRoom(roomID), connID)
	r.send(connID, models.EventJoinedRoom, RoomInfo{
		RoomID:       roomID,
		CallType:     callType,
		Participants: roster,
	})
	r.broadcastExcept(roomID, connID, models.EventUserJoined, joined)
}

// Leave removes the caller from its current call room, if any.
func (r *Relay) Leave(connID string) {
	r.mu.Lock()
	roomID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.leaveLocked(connID, roomID, true)
	r.mu.Unlock()
}

// leaveLocked removes the participant record and destroys the room when the
// roster empties. notify=false suppresses the user-left broadcast when
// end-call has already announced the departure.
func (r *Relay) leaveLocked(connID, roomID string, notify bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		delete(r.byConn, connID)
		return
	}
	p := room.find(connID)
	room.remove(connID)
	delete(r.byConn, connID)

	if len(room.participants) == 0 {
		delete(r.rooms, roomID)
		r.logger.Info().Str("room", roomID).Msg("call room destroyed")
	}

	r.registry.Leave(registry.CallRoom(roomID), connID)
	if notify && p != nil {
		r.broadcastExcept(roomID, connID, models.EventUserLeft, Participant{
			ConnID:   p.ConnID,
			Identity: p.Identity,
		})
	}
}

// Forward relays an offer, answer or ice-candidate to the target connection.
// From is always the sender's true connection id; a disconnected target is a
// silent no-op.
func (r *Relay) Forward(connID string, event string, to string, roomID string, payload []byte) {
	if to == "" {
		return
	}
	r.send(to, event, models.Signal{
		From:    connID,
		To:      to,
		RoomID:  roomID,
		Payload: payload,
	})
}

// ToggleAudio flips the caller's own audio flag and tells the rest of the
// room. A caller outside any room is a no-op, not an error.
func (r *Relay) ToggleAudio(connID string, enabled bool) {
	r.toggle(connID, enabled, models.EventAudioToggled, func(p *Participant) {
		p.AudioEnabled = enabled
	})
}

func (r *Relay) ToggleVideo(connID string, enabled bool) {
	r.toggle(connID, enabled, models.EventVideoToggled, func(p *Participant) {
		p.VideoEnabled = enabled
	})
}

func (r *Relay) toggle(connID string, enabled bool, event string, apply func(*Participant)) {
	r.mu.Lock()
	roomID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	room := r.rooms[roomID]
	p := room.find(connID)
	if p == nil {
		r.mu.Unlock()
		return
	}
	apply(p)
	identity := p.Identity
	r.mu.Unlock()

	r.broadcastExcept(roomID, connID, event, togglePayload{
		ConnID:   connID,
		Identity: identity,
		Enabled:  enabled,
	})
}

// EndCall announces call-ended to the room, then leaves like Leave does.
func (r *Relay) EndCall(connID string) {
	r.mu.Lock()
	roomID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	var identity models.Identity
	if room := r.rooms[roomID]; room != nil {
		if p := room.find(connID); p != nil {
			identity = p.Identity
		}
	}
	r.mu.Unlock()

	r.broadcastExcept(roomID, connID, models.EventCallEnded, Participant{
		ConnID:   connID,
		Identity: identity,
	})

	r.mu.Lock()
	if current, ok := r.byConn[connID]; ok && current == roomID {
		r.leaveLocked(connID, roomID, false)
	}
	r.mu.Unlock()
}

// Disconnect runs the same cleanup as Leave on every teardown path.
func (r *Relay) Disconnect(connID string) {
	r.Leave(connID)
}

// InRoom reports the caller's current call room, for tests and diagnostics.
func (r *Relay) InRoom(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.byConn[connID]
	return roomID, ok
}

// Roster returns a copy of a room's participant list; nil when absent.
func (r *Relay) Roster(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Participant, 0, len(room.participants))
	for _, p := range room.participants {
		out = append(out, *p)
	}
	return out
}

func (r *Relay) send(connID string, name string, data any) {
	r.registry.Send(connID, models.Event{Name: name, Data: data, Timestamp: r.now()})
}

func (r *Relay) broadcastExcept(roomID, connID string, name string, data any) {
	r.registry.BroadcastExcept(registry.CallRoom(roomID), connID, models.Event{
		Name:      name,
		Data:      data,
		Timestamp: r.now(),
	})
}

func (r *Relay) sendError(connID string, message string) {
	r.send(connID, models.EventError, map[string]string{"message": message})
}
