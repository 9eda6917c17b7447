// Package store defines the two generic persistence primitives the realtime
// layer consumes — a full-collection projection read and an optional change
// feed — plus identity lookup for the handshake. It has no business-rule
// knowledge; the owning services manage the schema.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mossy-p/storefront-realtime/internal/models"
)

// ErrNotFound is returned when an identity or owner cannot be resolved.
var ErrNotFound = errors.New("store: not found")

// Projection is the lightweight per-entity view the sync engine works from:
// id, owner, mutable summary fields and a freshness marker. Doc carries the
// full document for sync events and snapshots.
type Projection struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Doc       json.RawMessage `json:"doc,omitempty"`
}

// Entity returns the payload pushed to consumers: the full document when the
// store provides one, otherwise the projection itself.
func (p Projection) Entity() any {
	if len(p.Doc) > 0 {
		return p.Doc
	}
	return p
}

// Change is one mutation observed on a tracked collection.
type Change struct {
	Collection string          `json:"collection"`
	Type       models.SyncType `json:"type"`
	Entity     Projection      `json:"entity"`
}

// Store is the boundary to durable storage. Watch is optional: a store that
// cannot push changes returns ErrWatchUnsupported and the polling strategy
// is used instead.
type Store interface {
	// Identity resolves the principal record for an authenticated subject.
	Identity(ctx context.Context, id string) (models.Identity, error)
	// FindAll returns the projection of every entity in the collection.
	FindAll(ctx context.Context, collection string) ([]Projection, error)
	// StorefrontCode resolves the storefront code of an owning identity.
	StorefrontCode(ctx context.Context, ownerID string) (string, error)
	// Watch streams mutations for the named collections until ctx ends.
	Watch(ctx context.Context, collections []string) (<-chan Change, error)
}

// ErrWatchUnsupported marks a store without a push change feed.
var ErrWatchUnsupported = errors.New("store: change feed not supported")
