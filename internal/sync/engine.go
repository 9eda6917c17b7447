// Package sync reconciles durable-storage mutations on catalog collections
// into storefront-room push events. Two interchangeable strategies sit
// behind the ChangeSource contract: a push change feed and a polling diff.
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/config"
	"github.com/mossy-p/storefront-realtime/internal/dispatch"
	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/store"
)

// ChangeSource turns storage mutations into storefront events until Stop.
type ChangeSource interface {
	Start(ctx context.Context) error
	Stop()
}

type collectionSpec struct {
	event     string
	entityKey string
}

var collectionSpecs = map[string]collectionSpec{
	"products":  {models.EventProductSync, "product"},
	"services":  {models.EventServiceSync, "service"},
	"locations": {models.EventLocationSync, "location"},
	"teams":     {models.EventTeamSync, "team"},
}

func specFor(collection string) collectionSpec {
	if spec, ok := collectionSpecs[collection]; ok {
		return spec
	}
	return collectionSpec{event: collection + "_sync", entityKey: "entity"}
}

// Engine owns strategy selection, owner→storefront resolution and the
// initial_data snapshot replayed to late joiners.
type Engine struct {
	store   store.Store
	emitter *emitter
	source  ChangeSource
	cfg     config.SyncConfig
	logger  zerolog.Logger
}

func NewEngine(cfg config.SyncConfig, st store.Store, d *dispatch.Dispatcher, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		store: st,
		emitter: &emitter{
			store:    st,
			dispatch: d,
			logger:   logger.With().Str("component", "sync").Logger(),
		},
		cfg:    cfg,
		logger: logger.With().Str("component", "sync").Logger(),
	}

	switch cfg.Mode {
	case "feed":
		e.source = newFeedSource(st, e.emitter, cfg.Collections, e.logger)
	case "poll":
		e.source = newPollSource(st, e.emitter, cfg.Collections, cfg.PollInterval, e.logger)
	default:
		return nil, fmt.Errorf("unknown sync mode %q", cfg.Mode)
	}
	return e, nil
}

func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info().Str("mode", e.cfg.Mode).Msg("change sync starting")
	return e.source.Start(ctx)
}

func (e *Engine) Stop() {
	e.source.Stop()
}

// Snapshot builds the full catalog for one storefront, replayed to a newly
// joined connection so it never waits for the next tick or feed event.
func (e *Engine) Snapshot(ctx context.Context, code string) (map[string]any, error) {
	snapshot := make(map[string]any, len(e.cfg.Collections))
	codeByOwner := make(map[string]string)

	for _, collection := range e.cfg.Collections {
		entities, err := e.store.FindAll(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", collection, err)
		}
		docs := make([]any, 0, len(entities))
		for _, p := range entities {
			owner, ok := codeByOwner[p.OwnerID]
			if !ok {
				owner, err = e.store.StorefrontCode(ctx, p.OwnerID)
				if err != nil {
					owner = ""
				}
				codeByOwner[p.OwnerID] = owner
			}
			if owner == code {
				docs = append(docs, p.Entity())
			}
		}
		snapshot[collection] = docs
	}
	return map[string]any{"snapshot": snapshot}, nil
}

// emitter resolves the owning storefront of a changed entity and pushes the
// sync event. Shared by both strategies so their events are identical.
type emitter struct {
	store    store.Store
	dispatch *dispatch.Dispatcher
	logger   zerolog.Logger
}

// resolveAndEmit looks up the storefront code of the entity's owner and
// emits there. An unresolvable owner is dropped and logged, never fatal.
func (em *emitter) resolveAndEmit(ctx context.Context, collection string, typ models.SyncType, p store.Projection) {
	code, err := em.store.StorefrontCode(ctx, p.OwnerID)
	if err != nil {
		em.logger.Warn().Str("collection", collection).Str("id", p.ID).
			Str("owner", p.OwnerID).Msg("dropping change for unresolvable owner")
		return
	}
	em.emitScoped(collection, typ, p, code)
}

// emitScoped pushes the sync event to the storefront room identified by code.
func (em *emitter) emitScoped(collection string, typ models.SyncType, p store.Projection, code string) {
	spec := specFor(collection)
	em.dispatch.NotifyStorefront(code, spec.event, map[string]any{
		"type":         typ,
		spec.entityKey: p.Entity(),
	})
}
