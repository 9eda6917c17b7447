package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/store"
)

// feedSource consumes the store's push change feed. A broken subscription is
// re-established after a short pause; it never crashes the process.
type feedSource struct {
	store       store.Store
	emitter     *emitter
	collections []string
	logger      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

const resubscribeDelay = 2 * time.Second

func newFeedSource(st store.Store, em *emitter, collections []string, logger zerolog.Logger) *feedSource {
	return &feedSource{
		store:       st,
		emitter:     em,
		collections: collections,
		logger:      logger.With().Str("strategy", "feed").Logger(),
		done:        make(chan struct{}),
	}
}

func (s *feedSource) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	// Fail fast when the store has no feed at all; transient subscribe
	// errors after this point are retried in the run loop.
	ch, err := s.store.Watch(ctx, s.collections)
	if err != nil {
		s.cancel()
		return err
	}

	go s.run(ctx, ch)
	return nil
}

func (s *feedSource) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *feedSource) run(ctx context.Context, ch <-chan store.Change) {
	defer close(s.done)
	for {
		s.consume(ctx, ch)
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn().Msg("change feed closed, resubscribing")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}

		var err error
		ch, err = s.store.Watch(ctx, s.collections)
		if err != nil {
			s.logger.Error().Err(err).Msg("resubscribe failed, will retry")
			ch = nil
		}
	}
}

func (s *feedSource) consume(ctx context.Context, ch <-chan store.Change) {
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, change)
		}
	}
}

// handle is fault-isolated per event so one bad document cannot stop the
// feed for its siblings.
func (s *feedSource) handle(ctx context.Context, change store.Change) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Str("collection", change.Collection).
				Msg("recovered from change handler panic")
		}
	}()
	s.emitter.resolveAndEmit(ctx, change.Collection, change.Type, change.Entity)
}
