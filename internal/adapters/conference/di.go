package conference

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/dkeye/Hearing/internal/config"
	"github.com/dkeye/Hearing/internal/core"
)

const redisInitTimeout = 5 * time.Second

// RegisterDI provides the core.ConferenceStore, cached in Redis when
// cache.redis_url is set.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (core.ConferenceStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		fetcher := NewHTTPFetcher(cfg.ConferenceAPI.BaseURL, cfg.ConferenceAPI.Token, cfg.ConferenceAPI.Timeout)
		if cfg.Cache.RedisURL == "" {
			return fetcher, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), redisInitTimeout)
		defer cancel()
		client, err := NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "adapters.conference").Dur("ttl", cfg.Cache.TTL).Msg("conference cache enabled")
		return NewCachedStore(client, fetcher, cfg.Cache.TTL), nil
	})
}
