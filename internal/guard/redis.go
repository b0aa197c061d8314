package guard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
)

const keyPrefix = "fraclaims:inflight:"

// Both scripts act only while the key still holds the caller's token, so an
// expired lease taken over by another instance is never touched.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisGuard is an in-flight guard shared by every instance using the same Redis.
// A slot is a lease: it is renewed while the run is alive and expires on its own
// if the holder dies.
type RedisGuard struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisClient connects to Redis and verifies the connection with a PING.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// NewRedisGuard creates a guard holding leases of the given TTL.
func NewRedisGuard(rdb redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

// Acquire takes the lease for documentID with SET NX.
func (g *RedisGuard) Acquire(ctx context.Context, documentID string) (func(), error) {
	key := keyPrefix + documentID
	token := uuid.New().String()

	ok, err := g.rdb.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("guard.Acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrAlreadyInFlight)
	}

	stop := make(chan struct{})
	go g.renew(key, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, g.rdb, []string{key}, token).Err(); err != nil {
				log.Printf("guard.Release: document %s: %v", documentID, err)
			}
		})
	}, nil
}

func (g *RedisGuard) renew(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			renewed, err := renewScript.Run(ctx, g.rdb, []string{key}, token, g.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				log.Printf("guard.renew: %s: %v", key, err)
				continue
			}
			if renewed == 0 {
				log.Printf("guard.renew: %s: lease lost", key)
				return
			}
		}
	}
}
