package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

// RedisFrameSource читает сообщения ленты из Redis list (LPUSH производителем, BRPOP здесь).
type RedisFrameSource struct {
	client      *redis.Client
	key         string
	feedContext string
	log         zerolog.Logger
	stamper     stamper
}

// NewRedisFrameSource создаёт источник; ключ списка — key:<context>.
func NewRedisFrameSource(client *redis.Client, key, feedContext string, logger zerolog.Logger) *RedisFrameSource {
	return &RedisFrameSource{
		client:      client,
		key:         ListKey(key, feedContext),
		feedContext: feedContext,
		log:         logger.With().Str("component", "redis_queue").Str("context", feedContext).Logger(),
		stamper:     stamper{source: "redis"},
	}
}

// ListKey возвращает имя списка для контекста.
func ListKey(prefix, feedContext string) string {
	return prefix + ":" + feedContext
}

// Push публикует «сырое» сообщение в список контекста.
func (q *RedisFrameSource) Push(ctx context.Context, payload []byte) error {
	start := time.Now()
	err := q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push frame: %w", err)
	}
	return nil
}

// Run блокирующе читает сообщения до отмены ctx.
func (q *RedisFrameSource) Run(ctx context.Context, handle domain.FrameHandler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: redis brpop: %v", domain.ErrNetwork, err)
		}
		if len(res) != 2 {
			return errors.New("redis queue: unexpected response")
		}
		frame, err := q.stamper.decode([]byte(res[1]))
		if err != nil {
			metrics.IncFramesDropped(q.feedContext, "redis")
			q.log.Warn().Err(err).Msg("redis: некорректное сообщение пропущено")
			continue
		}
		if handle != nil {
			handle(frame)
		}
	}
}

var _ domain.FrameSource = (*RedisFrameSource)(nil)
