package commands

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finmind/banksync-service/internal/config"
	"github.com/finmind/banksync-service/internal/store"
	"github.com/finmind/banksync-service/pkg/connector"
	"github.com/finmind/banksync-service/pkg/connector/mock"
	"github.com/finmind/banksync-service/pkg/connector/setuaa"
)

const redisPingTimeout = 5 * time.Second

// newRegistry builds the provider registry. Setu is always listed; it reports a
// configuration error on use when its credentials are missing.
func newRegistry(cfg config.Config) *connector.Registry {
	registry := connector.NewRegistry()
	registry.Register(mock.ProviderName, func() connector.Connector {
		return mock.New()
	})
	setuCfg := setuaa.Config{
		BaseURL:      cfg.SetuBaseURL,
		ClientID:     cfg.SetuClientID,
		ClientSecret: cfg.SetuClientSecret,
		RedirectURL:  cfg.SetuRedirectURL,
	}
	registry.Register(setuaa.ProviderName, func() connector.Connector {
		return setuaa.New(setuCfg)
	})
	return registry
}

// openStore returns the configured store and a close function.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Println("level=warn component=bootstrap msg=\"using in-memory store; data is lost on restart\"")
		return store.NewMemoryStore(), func() {}, nil
	case config.StoreDriverPostgres, "":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", config.StoreDriverPostgres)
		}
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Println("level=info component=bootstrap msg=\"database connected\"")
		return store.NewPostgresRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// connectRedis returns nil when REDIS_URL is unset or unreachable. Callers fall back to
// in-process locking and skip rate limiting and caching.
func connectRedis(cfg config.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process locks, rate limiting and cache disabled\" env=REDIS_URL")
		return nil
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-process locks\" err=%v", err)
		return nil
	}

	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-process locks\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}
