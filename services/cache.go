package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glacierguard-api/config"
	"glacierguard-api/logger"

	"github.com/redis/go-redis/v9"
)

const (
	// DetectionListKey prefixes the cached full detection list. The list is
	// stored under DetectionListKey:<generation> and every write bumps
	// DetectionListGenKey, so a snapshot read before a write is never
	// served after it.
	DetectionListKey    = "detections:all"
	DetectionListGenKey = "detections:all:gen"
	DetectionListTTL    = 30 * time.Second

	// LiveChannel carries every newly created detection as JSON.
	LiveChannel = "glacierguard:detections"
)

var ErrCacheMiss = errors.New("cache miss")

// CacheService is a thin JSON layer over Redis. A service without a client
// is valid: reads miss and writes are dropped.
type CacheService struct {
	client *redis.Client
}

// NewCacheService connects to Redis when cfg names a host, retrying the
// initial ping. On failure it still returns a usable no-op service along
// with the error so callers can run degraded.
func NewCacheService(ctx context.Context, cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled() {
		return &CacheService{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	const attempts = 5
	log := logger.Named("cache")
	var lastErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client}, nil
		}
		log.Warn().Err(lastErr).Int("attempt", i+1).Int("of", attempts).Msg("redis ping failed")

		select {
		case <-ctx.Done():
			client.Close()
			return &CacheService{}, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	client.Close()
	return &CacheService{}, fmt.Errorf("redis ping failed after %d attempts: %w", attempts, lastErr)
}

// NewCacheServiceWithClient wraps an existing client.
func NewCacheServiceWithClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) Available() bool {
	return s.client != nil
}

// Get decodes the value at key into dest, or returns ErrCacheMiss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	if s.client == nil {
		return ErrCacheMiss
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// ListKey returns the key of the current list generation. Take it before
// reading the database so a concurrent write moves readers to a new key.
func (s *CacheService) ListKey(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", ErrCacheMiss
	}
	gen, err := s.client.Get(ctx, DetectionListGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%d", DetectionListKey, gen), nil
}

// InvalidateList starts a new list generation. Call it after the write
// has committed.
func (s *CacheService) InvalidateList(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, DetectionListGenKey).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when no client is configured.
func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
