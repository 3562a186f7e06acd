package conference

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
)

const keyPrefix = "hearing:conference:"

// SnapshotSource yields the raw conference body that the cache stores.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, conferenceID string) ([]byte, error)
}

// CachedStore serves conferences from Redis and falls back to the source on
// a miss or a cache failure. Each Get returns a freshly built aggregate.
type CachedStore struct {
	client *redis.Client
	source SnapshotSource
	ttl    time.Duration
}

func NewCachedStore(client *redis.Client, source SnapshotSource, ttl time.Duration) *CachedStore {
	return &CachedStore{client: client, source: source, ttl: ttl}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func (s *CachedStore) GetConference(ctx context.Context, conferenceID string) (*domain.Conference, error) {
	key := keyPrefix + conferenceID
	body, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		conf, derr := decodeConference(body)
		if derr == nil {
			return conf, nil
		}
		log.Warn().Err(derr).Str("module", "adapters.conference").Str("conference", conferenceID).Msg("dropping undecodable snapshot")
		_ = s.client.Del(ctx, key).Err()
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("module", "adapters.conference").Str("conference", conferenceID).Msg("cache read failed")
	}

	body, err = s.source.FetchSnapshot(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	conf, err := decodeConference(body)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, key, body, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.conference").Str("conference", conferenceID).Msg("cache write failed")
	}
	return conf, nil
}

// Invalidate drops the snapshot so the next Get reloads it.
func (s *CachedStore) Invalidate(ctx context.Context, conferenceID string) error {
	return s.client.Del(ctx, keyPrefix+conferenceID).Err()
}

func (s *CachedStore) Shutdown() error {
	return s.client.Close()
}
