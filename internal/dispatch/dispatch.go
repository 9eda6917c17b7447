// Package dispatch exposes the named-intent notification primitives domain
// collaborators call after committing a mutation. It is the only push
// surface they use; nothing here persists or replays events.
package dispatch

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/registry"
)

type Dispatcher struct {
	registry *registry.Registry
	logger   zerolog.Logger
	now      func() time.Time
}

func New(reg *registry.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		logger:   logger.With().Str("component", "dispatch").Logger(),
		now:      time.Now,
	}
}

// NotifyIdentity pushes an event to every connection bound to the identity.
func (d *Dispatcher) NotifyIdentity(id string, name string, data any) {
	d.emit(registry.IdentityRoom(id), name, data)
}

// NotifyRole pushes an event to every connection whose identity has the role.
func (d *Dispatcher) NotifyRole(role models.Role, name string, data any) {
	d.emit(registry.RoleRoom(role), name, data)
}

// NotifyAdmins pushes an event to the admin broadcast room (admin and
// super_admin roles).
func (d *Dispatcher) NotifyAdmins(name string, data any) {
	d.emit(registry.RoomAdmins, name, data)
}

// NotifyClients pushes an event to the client broadcast room.
func (d *Dispatcher) NotifyClients(name string, data any) {
	d.emit(registry.RoomClients, name, data)
}

// NotifyStorefront pushes an event to every connection watching the
// storefront identified by code.
func (d *Dispatcher) NotifyStorefront(code string, name string, data any) {
	d.emit(registry.StorefrontRoom(code), name, data)
}

func (d *Dispatcher) emit(room string, name string, data any) {
	d.logger.Debug().Str("room", room).Str("event", name).Msg("dispatching event")
	d.registry.Broadcast(room, models.Event{
		Name:      name,
		Data:      data,
		Timestamp: d.now(),
	})
}
