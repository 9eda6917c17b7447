package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/config"
	"github.com/mossy-p/storefront-realtime/internal/models"
)

// Key layout shared with the services that own the data:
//
//	identity:<id>          JSON identity record
//	catalog:<collection>   hash, field <entityId> → JSON document
//	changes:<collection>   pub/sub channel carrying JSON Change messages
const (
	identityKeyPrefix = "identity:"
	catalogKeyPrefix  = "catalog:"
	changesKeyPrefix  = "changes:"
)

// Redis reads projections from catalog hashes and exposes the mutation
// pub/sub channels as a change feed.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedis(cfg config.RedisConfig, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{
		client: client,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) Identity(ctx context.Context, id string) (models.Identity, error) {
	data, err := s.client.Get(ctx, identityKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return models.Identity{}, ErrNotFound
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("fetch identity %s: %w", id, err)
	}
	var identity models.Identity
	if err := json.Unmarshal([]byte(data), &identity); err != nil {
		return models.Identity{}, fmt.Errorf("parse identity %s: %w", id, err)
	}
	return identity, nil
}

func (s *Redis) StorefrontCode(ctx context.Context, ownerID string) (string, error) {
	identity, err := s.Identity(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if identity.StorefrontCode == "" {
		return "", ErrNotFound
	}
	return identity.StorefrontCode, nil
}

func (s *Redis) FindAll(ctx context.Context, collection string) ([]Projection, error) {
	fields, err := s.client.HGetAll(ctx, catalogKeyPrefix+collection).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch collection %s: %w", collection, err)
	}
	out := make([]Projection, 0, len(fields))
	for id, doc := range fields {
		var p Projection
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			s.logger.Warn().Err(err).Str("collection", collection).Str("id", id).
				Msg("skipping unparseable catalog document")
			continue
		}
		p.Doc = json.RawMessage(doc)
		out = append(out, p)
	}
	return out, nil
}

// Watch subscribes to the per-collection mutation channels. The returned
// channel closes when ctx is cancelled or the subscription dies; the caller
// owns reconnection.
func (s *Redis) Watch(ctx context.Context, collections []string) (<-chan Change, error) {
	channels := make([]string, 0, len(collections))
	for _, c := range collections {
		channels = append(channels, changesKeyPrefix+c)
	}
	sub := s.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe change feed: %w", err)
	}

	out := make(chan Change, 64)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.logger.Warn().Err(err).Str("channel", msg.Channel).
						Msg("dropping unparseable change message")
					continue
				}
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
