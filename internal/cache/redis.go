// Package cache publishes seed commitments and crash results to Redis, where
// anyone can look them up.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/config"
	"fairplay/internal/fair"
	"fairplay/internal/game"
)

const (
	KEY_PREFIX       = "fairplay:"
	COMMITMENT_TTL   = 90 * 24 * time.Hour
	CRASH_HISTORY    = KEY_PREFIX + "crash:history"
	HISTORY_CAPACITY = game.HISTORY_LENGTH
)

type Service struct {
	client  *redis.Client
	history int64
}

func New(ctx context.Context, cfg config.RedisConfig) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.URL, err)
	}

	log.Info().Str("component", "cache").Str("addr", cfg.URL).Msg("redis connected")
	return &Service{client: client, history: HISTORY_CAPACITY}, nil
}

func (s *Service) Client() *redis.Client {
	return s.client
}

func (s *Service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if _, err := s.client.Ping(ctx).Result(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "Redis is healthy"

	poolStats := s.client.PoolStats()
	stats["hits"] = strconv.FormatUint(uint64(poolStats.Hits), 10)
	stats["misses"] = strconv.FormatUint(uint64(poolStats.Misses), 10)
	stats["timeouts"] = strconv.FormatUint(uint64(poolStats.Timeouts), 10)
	stats["total_conns"] = strconv.FormatUint(uint64(poolStats.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(poolStats.IdleConns), 10)
	stats["stale_conns"] = strconv.FormatUint(uint64(poolStats.StaleConns), 10)
	return stats
}

func (s *Service) Close() error {
	log.Info().Str("component", "cache").Msg("disconnecting from redis")
	return s.client.Close()
}

func commitmentKey(hash string) string {
	return KEY_PREFIX + "commitment:" + hash
}

// PublishCommitment stores a commitment under its hash. Publishing the same
// hash again, as a rotation does when it reveals the seed, replaces it.
func (s *Service) PublishCommitment(ctx context.Context, c fair.Commitment) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal commitment: %w", err)
	}
	return s.client.Set(ctx, commitmentKey(c.ServerSeedHash), raw, COMMITMENT_TTL).Err()
}

func (s *Service) Commitment(ctx context.Context, hash string) (fair.Commitment, error) {
	raw, err := s.client.Get(ctx, commitmentKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fair.Commitment{}, apperr.NotFound("cache.commitment", "no commitment %s", hash)
	}
	if err != nil {
		return fair.Commitment{}, err
	}
	var c fair.Commitment
	if err := json.Unmarshal(raw, &c); err != nil {
		return fair.Commitment{}, fmt.Errorf("decode commitment %s: %w", hash, err)
	}
	return c, nil
}

// PushCrashResult prepends a result to the capped history list.
func (s *Service) PushCrashResult(ctx context.Context, r game.CrashResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal crash result: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, CRASH_HISTORY, raw)
	pipe.LTrim(ctx, CRASH_HISTORY, 0, s.history-1)
	_, err = pipe.Exec(ctx)
	return err
}

// CrashHistory returns up to n results, newest first.
func (s *Service) CrashHistory(ctx context.Context, n int) ([]game.CrashResult, error) {
	if n <= 0 || int64(n) > s.history {
		n = int(s.history)
	}
	items, err := s.client.LRange(ctx, CRASH_HISTORY, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]game.CrashResult, 0, len(items))
	for _, item := range items {
		var r game.CrashResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			log.Warn().Err(err).Str("component", "cache").Msg("skipping undecodable crash result")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
