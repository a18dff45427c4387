package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

const exchangeKind = "topic"

// RoutingKey возвращает ключ маршрутизации сообщений контекста.
func RoutingKey(feedContext string) string {
	return "feed." + feedContext
}

// RabbitFrameSource читает сообщения ленты из RabbitMQ (topic exchange, ключ feed.<context>).
type RabbitFrameSource struct {
	url         string
	exchange    string
	queue       string
	feedContext string
	log         zerolog.Logger
	stamper     stamper
}

// NewRabbitFrameSource создаёт источник. Пустое имя очереди — временная эксклюзивная очередь.
func NewRabbitFrameSource(amqpURL, exchange, queue, feedContext string, logger zerolog.Logger) (*RabbitFrameSource, error) {
	if strings.TrimSpace(amqpURL) == "" {
		return nil, errors.New("amqp url is empty")
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("exchange name is empty")
	}
	if _, err := amqp.ParseURI(amqpURL); err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}
	return &RabbitFrameSource{
		url:         amqpURL,
		exchange:    exchange,
		queue:       queue,
		feedContext: feedContext,
		log:         logger.With().Str("component", "rabbitmq").Str("context", feedContext).Logger(),
		stamper:     stamper{source: "rabbitmq"},
	}, nil
}

// Run подключается, привязывает очередь и читает сообщения до отмены ctx.
// Соединение и канал закрываются на любом пути выхода.
func (r *RabbitFrameSource) Run(ctx context.Context, handle domain.FrameHandler) error {
	start := time.Now()
	conn, err := amqp.Dial(r.url)
	metrics.ObserveNetworkRequest("rabbitmq", "dial", r.exchange, start, err)
	if err != nil {
		return fmt.Errorf("%w: rabbitmq dial: %v", domain.ErrNetwork, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: rabbitmq channel: %v", domain.ErrNetwork, err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(r.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	durable := r.queue != ""
	q, err := ch.QueueDeclare(r.queue, durable, !durable, !durable, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, RoutingKey(r.feedContext), r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, !durable, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	r.log.Info().Str("queue", q.Name).Msg("rabbitmq: подписка открыта")

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ctx.Err() != nil {
				return nil
			}
			if ok && amqpErr != nil {
				return fmt.Errorf("%w: rabbitmq connection closed: %v", domain.ErrNetwork, amqpErr)
			}
			return fmt.Errorf("%w: rabbitmq connection closed", domain.ErrNetwork)
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: rabbitmq deliveries closed", domain.ErrNetwork)
			}
			frame, err := r.stamper.decode(d.Body)
			if err != nil {
				_ = d.Nack(false, false)
				metrics.IncFramesDropped(r.feedContext, "rabbitmq")
				r.log.Warn().Err(err).Msg("rabbitmq: некорректное сообщение пропущено")
				continue
			}
			_ = d.Ack(false)
			if handle != nil {
				handle(frame)
			}
		}
	}
}

var _ domain.FrameSource = (*RabbitFrameSource)(nil)
