package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/store"
)

// watermark is the last-seen freshness marker for one tracked entity, plus
// the storefront code resolved when it was observed. Keeping the code here
// lets the deletion path stay storefront-scoped even though the entity (and
// its owner link) is already gone from storage.
type watermark struct {
	seen time.Time
	code string
}

// pollSource diffs the whole catalog against a watermark map on a fixed
// interval. Insert and update are not distinguished: both surface as an
// update event. Ids that vanish between ticks surface as deletes.
type pollSource struct {
	store       store.Store
	emitter     *emitter
	collections []string
	interval    time.Duration
	logger      zerolog.Logger

	marks  map[string]map[string]watermark // collection → entityId → watermark
	cancel context.CancelFunc
	done   chan struct{}
}

func newPollSource(st store.Store, em *emitter, collections []string, interval time.Duration, logger zerolog.Logger) *pollSource {
	return &pollSource{
		store:       st,
		emitter:     em,
		collections: collections,
		interval:    interval,
		logger:      logger.With().Str("strategy", "poll").Logger(),
		marks:       make(map[string]map[string]watermark),
		done:        make(chan struct{}),
	}
}

func (s *pollSource) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return nil
}

func (s *pollSource) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *pollSource) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick is fault-isolated: a storage error or panic ends this tick only and
// the next interval retries from the surviving watermark state.
func (s *pollSource) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("recovered from poll tick panic")
		}
	}()

	for _, collection := range s.collections {
		s.diffCollection(ctx, collection)
	}
}

func (s *pollSource) diffCollection(ctx context.Context, collection string) {
	entities, err := s.store.FindAll(ctx, collection)
	if err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).
			Msg("poll fetch failed, retrying next tick")
		return
	}

	marks := s.marks[collection]
	if marks == nil {
		marks = make(map[string]watermark)
		s.marks[collection] = marks
	}

	fetched := make(map[string]struct{}, len(entities))
	for _, p := range entities {
		fetched[p.ID] = struct{}{}

		mark, known := marks[p.ID]
		if known && !mark.seen.Before(p.UpdatedAt) {
			continue
		}

		code, err := s.store.StorefrontCode(ctx, p.OwnerID)
		if err != nil {
			// Orphaned entity: advance the watermark so it is not
			// re-resolved every tick, emit nothing.
			s.logger.Warn().Str("collection", collection).Str("id", p.ID).
				Str("owner", p.OwnerID).Msg("dropping change for unresolvable owner")
			marks[p.ID] = watermark{seen: p.UpdatedAt}
			continue
		}
		marks[p.ID] = watermark{seen: p.UpdatedAt, code: code}
		s.emitter.emitScoped(collection, models.SyncUpdate, p, code)
	}

	// Snapshot the tracked key set before deleting mid-scan.
	var gone []string
	for id := range marks {
		if _, ok := fetched[id]; !ok {
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		mark := marks[id]
		delete(marks, id)
		if mark.code == "" {
			s.logger.Warn().Str("collection", collection).Str("id", id).
				Msg("dropping delete for entity with unresolved storefront")
			continue
		}
		s.emitter.emitScoped(collection, models.SyncDelete, store.Projection{ID: id}, mark.code)
	}
}
