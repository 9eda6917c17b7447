package store

import (
	"context"
	"sync"

	"github.com/mossy-p/storefront-realtime/internal/models"
)

// Memory is an in-process Store used by tests and local development. Its
// Publish method stands in for another service committing a mutation.
type Memory struct {
	mu         sync.RWMutex
	identities map[string]models.Identity
	catalog    map[string]map[string]Projection // collection → id → projection
	feed       chan Change
}

func NewMemory() *Memory {
	return &Memory{
		identities: make(map[string]models.Identity),
		catalog:    make(map[string]map[string]Projection),
		feed:       make(chan Change, 64),
	}
}

func (s *Memory) PutIdentity(identity models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.ID] = identity
}

func (s *Memory) PutEntity(collection string, p Projection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog[collection] == nil {
		s.catalog[collection] = make(map[string]Projection)
	}
	s.catalog[collection][p.ID] = p
}

func (s *Memory) DeleteEntity(collection string, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.catalog[collection], id)
}

// Publish pushes a change onto the feed, as the owning service would after a
// commit.
func (s *Memory) Publish(change Change) {
	s.feed <- change
}

func (s *Memory) Identity(_ context.Context, id string) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return models.Identity{}, ErrNotFound
	}
	return identity, nil
}

func (s *Memory) StorefrontCode(_ context.Context, ownerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[ownerID]
	if !ok || identity.StorefrontCode == "" {
		return "", ErrNotFound
	}
	return identity.StorefrontCode, nil
}

func (s *Memory) FindAll(_ context.Context, collection string) ([]Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Projection, 0, len(s.catalog[collection]))
	for _, p := range s.catalog[collection] {
		out = append(out, p)
	}
	return out, nil
}

func (s *Memory) Watch(ctx context.Context, _ []string) (<-chan Change, error) {
	out := make(chan Change, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-s.feed:
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
