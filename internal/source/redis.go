package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"go.uber.org/zap"
)

// RedisSource loads a snapshot from a Redis key and reloads it whenever a
// message arrives on the update channel.
type RedisSource struct {
	client  *redis.Client
	key     string
	channel string
	target  Reloader
	logger  *zap.Logger
}

// NewRedisSource creates a source for cfg. Start connects.
func NewRedisSource(cfg config.RedisConfig, target Reloader, logger *zap.Logger) *RedisSource {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisSourceFromClient(client, cfg.SnapshotKey, cfg.UpdateChannel, target, logger)
}

// NewRedisSourceFromClient wraps an existing client.
func NewRedisSourceFromClient(client *redis.Client, key, channel string, target Reloader, logger *zap.Logger) *RedisSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSource{
		client:  client,
		key:     key,
		channel: channel,
		target:  target,
		logger:  logger.With(zap.String("component", "redis_source")),
	}
}

// Start loads the current snapshot and subscribes to updates. The
// subscription ends when ctx is done.
func (s *RedisSource) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.Info("Starting snapshot watcher",
		zap.String("key", s.key),
		zap.String("channel", s.channel))

	if _, err := s.Reload(ctx); err != nil {
		s.logger.Warn("Initial snapshot load failed", zap.Error(err))
	}

	if s.channel == "" {
		return nil
	}

	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.logger.Info("Received snapshot update signal", zap.String("payload", msg.Payload))
				if _, err := s.Reload(ctx); err != nil {
					s.logger.Warn("Snapshot reload failed, keeping current state", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Reload fetches the snapshot and hands it to the target. It reports
// false without error when the key does not exist.
func (s *RedisSource) Reload(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Info("No snapshot found in Redis, keeping current state", zap.String("key", s.key))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	return true, s.apply(val)
}

func (s *RedisSource) apply(raw []byte) error {
	snap, err := ParseSnapshot(raw)
	if err != nil {
		return err
	}
	s.target.Reload(snap)
	return nil
}

// Publish stores snap under the key and signals every subscriber.
func (s *RedisSource) Publish(ctx context.Context, snap pipeline.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, s.key).Err(); err != nil {
			return fmt.Errorf("failed to publish snapshot update: %w", err)
		}
	}
	s.logger.Info("Snapshot published",
		zap.String("key", s.key),
		zap.Int("aliases", len(snap.Aliases)),
		zap.Int("rules", len(snap.Rules)))
	return nil
}

// Close closes the Redis client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
