package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/redis/go-redis/v9"
)

// Backends bundles the configured stores. Cache is nil when caching is disabled; Redis is set
// whenever a redis host is configured so callers can reuse it for locking.
type Backends struct {
	Collections CollectionStore
	Cache       CacheStore
	Redis       *redis.Client
	Postgres    *Postgres
}

// Open builds the backends selected in cfg. Unreachable databases are logged rather than
// returned: the store keeps reporting ErrPersistenceUnavailable and callers degrade.
func Open(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (*Backends, error) {
	if logger == nil {
		logger = log.Default()
	}
	b := &Backends{}
	mem := NewMemory()

	needPostgres := cfg.Backend == "postgres" || cfg.CacheBackend == "postgres"
	if needPostgres {
		pctx, cancel := context.WithTimeout(ctx, dialTimeout(cfg.Postgres.Timeout))
		pg, err := NewPostgres(pctx, cfg.Postgres.DSN())
		cancel()
		if pg == nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err != nil {
			logger.Printf("postgres not reachable yet: %v", err)
		}
		b.Postgres = pg
	}
	if cfg.Redis.Enabled() {
		rctx, cancel := context.WithTimeout(ctx, dialTimeout(cfg.Redis.Timeout))
		client, err := RedisConn(rctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		cancel()
		if err != nil {
			logger.Printf("redis not reachable yet: %v", err)
		}
		b.Redis = client
	}

	switch cfg.Backend {
	case "postgres":
		b.Collections = b.Postgres
	case "file":
		fs, err := NewFile(cfg.File.DataDir)
		if err != nil {
			return nil, err
		}
		b.Collections = fs
	case "memory":
		b.Collections = mem
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	switch cfg.CacheBackend {
	case "postgres":
		b.Cache = b.Postgres
	case "redis":
		if b.Redis == nil {
			return nil, fmt.Errorf("cache backend redis requires storage.redis.host")
		}
		b.Cache = NewRedisCache(b.Redis)
	case "memory":
		b.Cache = mem
	case "none":
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	return b, nil
}

// Close releases pooled connections.
func (b *Backends) Close() {
	if b.Postgres != nil {
		_ = b.Postgres.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}

func dialTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
