package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/storefront-realtime/config"
	"github.com/mossy-p/storefront-realtime/internal/dispatch"
	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/registry"
	"github.com/mossy-p/storefront-realtime/internal/store"
)

type fakeMember struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (m *fakeMember) ConnID() string            { return m.id }
func (m *fakeMember) Identity() models.Identity { return models.Identity{ID: "user-" + m.id} }

func (m *fakeMember) Enqueue(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
	return true
}

func (m *fakeMember) events(t *testing.T) []models.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0, len(m.frames))
	for _, frame := range m.frames {
		var ev models.Event
		require.NoError(t, json.Unmarshal(frame, &ev))
		out = append(out, ev)
	}
	return out
}

func (m *fakeMember) named(t *testing.T, name string) []models.Event {
	t.Helper()
	var out []models.Event
	for _, ev := range m.events(t) {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store    *store.Memory
	registry *registry.Registry
	dispatch *dispatch.Dispatcher
	watcher  *fakeMember
}

// newFixture wires a memory store with one storefront owner and one
// connection watching storefront ABC123.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	st.PutIdentity(models.Identity{ID: "owner-1", Role: models.RoleAdmin, StorefrontCode: "ABC123"})

	reg := registry.New(zerolog.Nop())
	watcher := &fakeMember{id: "watcher"}
	reg.Register(watcher)
	reg.Join(registry.StorefrontRoom("ABC123"), "watcher")

	return &fixture{
		store:    st,
		registry: reg,
		dispatch: dispatch.New(reg, zerolog.Nop()),
		watcher:  watcher,
	}
}

func (f *fixture) poller(collections ...string) *pollSource {
	em := &emitter{store: f.store, dispatch: f.dispatch, logger: zerolog.Nop()}
	return newPollSource(f.store, em, collections, time.Second, zerolog.Nop())
}

func projection(id, owner string, seen time.Time) store.Projection {
	return store.Projection{ID: id, OwnerID: owner, Name: "thing-" + id, UpdatedAt: seen}
}

func entityID(t *testing.T, data map[string]any, key string) string {
	t.Helper()
	entity, ok := data[key].(map[string]any)
	require.True(t, ok, "event must carry the entity under %q", key)
	id, _ := entity["id"].(string)
	return id
}

func TestPollFirstSightingEmitsOneUpdate(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))

	p := f.poller("products")
	p.tick(context.Background())

	events := f.watcher.named(t, models.EventProductSync)
	require.Len(t, events, 1)
	data := events[0].Data.(map[string]any)
	assert.Equal(t, string(models.SyncUpdate), data["type"])
	assert.Equal(t, "p1", entityID(t, data, "product"))
	assert.True(t, t1.Equal(p.marks["products"]["p1"].seen), "watermark advanced to the fetched marker")
}

func TestPollUnchangedEntityEmitsNothing(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))

	p := f.poller("products")
	p.tick(context.Background())
	p.tick(context.Background())

	assert.Len(t, f.watcher.named(t, models.EventProductSync), 1,
		"second tick over unchanged state emits nothing")
}

func TestPollNewerMarkerEmitsUpdate(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))

	p := f.poller("products")
	p.tick(context.Background())

	f.store.PutEntity("products", projection("p1", "owner-1", t1.Add(time.Minute)))
	p.tick(context.Background())

	assert.Len(t, f.watcher.named(t, models.EventProductSync), 2)
}

func TestPollDetectsDeletionScopedToStorefront(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))

	p := f.poller("products")
	p.tick(context.Background())
	require.Len(t, f.watcher.named(t, models.EventProductSync), 1)

	f.store.DeleteEntity("products", "p1")
	p.tick(context.Background())

	events := f.watcher.named(t, models.EventProductSync)
	require.Len(t, events, 2)
	data := events[1].Data.(map[string]any)
	assert.Equal(t, string(models.SyncDelete), data["type"])
	assert.Equal(t, "p1", entityID(t, data, "product"))

	_, tracked := p.marks["products"]["p1"]
	assert.False(t, tracked, "watermark purged on deletion")
}

func TestPollOrphanedEntityIsDroppedOnce(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "no-such-owner", t1))

	p := f.poller("products")
	p.tick(context.Background())
	p.tick(context.Background())

	assert.Empty(t, f.watcher.named(t, models.EventProductSync))
	// The watermark still advances so the orphan is not re-resolved forever.
	assert.True(t, t1.Equal(p.marks["products"]["p1"].seen))
}

type failingStore struct {
	*store.Memory
	fail bool
}

func (s *failingStore) FindAll(ctx context.Context, collection string) ([]store.Projection, error) {
	if s.fail {
		return nil, errors.New("storage unavailable")
	}
	return s.Memory.FindAll(ctx, collection)
}

func TestPollTickErrorIsRetriedNextTick(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))

	failing := &failingStore{Memory: f.store, fail: true}
	em := &emitter{store: failing, dispatch: f.dispatch, logger: zerolog.Nop()}
	p := newPollSource(failing, em, []string{"products"}, time.Second, zerolog.Nop())

	p.tick(context.Background())
	assert.Empty(t, f.watcher.named(t, models.EventProductSync), "failed tick emits nothing")

	failing.fail = false
	p.tick(context.Background())
	assert.Len(t, f.watcher.named(t, models.EventProductSync), 1, "next tick recovers")
}

func TestPollTracksMultipleCollections(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))
	f.store.PutEntity("services", projection("s1", "owner-1", t1))
	f.store.PutEntity("locations", projection("l1", "owner-1", t1))
	f.store.PutEntity("teams", projection("t1", "owner-1", t1))

	p := f.poller("products", "services", "locations", "teams")
	p.tick(context.Background())

	assert.Len(t, f.watcher.named(t, models.EventProductSync), 1)
	assert.Len(t, f.watcher.named(t, models.EventServiceSync), 1)
	assert.Len(t, f.watcher.named(t, models.EventLocationSync), 1)
	assert.Len(t, f.watcher.named(t, models.EventTeamSync), 1)
}

func TestFeedStrategyEmitsStorefrontScopedEvents(t *testing.T) {
	f := newFixture(t)
	cfg := config.SyncConfig{Mode: "feed", PollInterval: time.Second, Collections: []string{"products"}}
	engine, err := NewEngine(cfg, f.store, f.dispatch, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	f.store.Publish(store.Change{
		Collection: "products",
		Type:       models.SyncInsert,
		Entity:     projection("p1", "owner-1", time.Now()),
	})

	require.Eventually(t, func() bool {
		return len(f.watcher.named(t, models.EventProductSync)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	data := f.watcher.named(t, models.EventProductSync)[0].Data.(map[string]any)
	assert.Equal(t, string(models.SyncInsert), data["type"])
	assert.Equal(t, "p1", entityID(t, data, "product"))
}

func TestFeedDropsChangeForUnresolvableOwner(t *testing.T) {
	f := newFixture(t)
	cfg := config.SyncConfig{Mode: "feed", PollInterval: time.Second, Collections: []string{"products"}}
	engine, err := NewEngine(cfg, f.store, f.dispatch, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	f.store.Publish(store.Change{
		Collection: "products",
		Type:       models.SyncUpdate,
		Entity:     projection("p-orphan", "no-such-owner", time.Now()),
	})
	f.store.Publish(store.Change{
		Collection: "products",
		Type:       models.SyncUpdate,
		Entity:     projection("p1", "owner-1", time.Now()),
	})

	// The sibling event after the orphan still arrives: drops are isolated.
	require.Eventually(t, func() bool {
		return len(f.watcher.named(t, models.EventProductSync)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	data := f.watcher.named(t, models.EventProductSync)[0].Data.(map[string]any)
	assert.Equal(t, "p1", entityID(t, data, "product"))
}

func TestSnapshotIsFilteredByStorefront(t *testing.T) {
	f := newFixture(t)
	f.store.PutIdentity(models.Identity{ID: "owner-2", Role: models.RoleAdmin, StorefrontCode: "ZZZ999"})
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.store.PutEntity("products", projection("p1", "owner-1", t1))
	f.store.PutEntity("products", projection("p2", "owner-2", t1))
	f.store.PutEntity("services", projection("s1", "owner-1", t1))

	cfg := config.SyncConfig{Mode: "poll", PollInterval: time.Second, Collections: []string{"products", "services"}}
	engine, err := NewEngine(cfg, f.store, f.dispatch, zerolog.Nop())
	require.NoError(t, err)

	snapshot, err := engine.Snapshot(context.Background(), "ABC123")
	require.NoError(t, err)

	inner, ok := snapshot["snapshot"].(map[string]any)
	require.True(t, ok)
	products, ok := inner["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 1, "the other storefront's product is excluded")
	p := products[0].(store.Projection)
	assert.Equal(t, "p1", p.ID)

	services, ok := inner["services"].([]any)
	require.True(t, ok)
	assert.Len(t, services, 1)
}

func TestEngineRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	cfg := config.SyncConfig{Mode: "gossip", PollInterval: time.Second}
	_, err := NewEngine(cfg, f.store, f.dispatch, zerolog.Nop())
	assert.Error(t, err)
}
