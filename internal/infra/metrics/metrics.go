package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_frames_received_total",
		Help: "Сообщения real-time транспорта по контексту и типу",
	}, []string{"context", "type"})
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_frames_dropped_total",
		Help: "Отброшенные некорректные сообщения и записи",
	}, []string{"context", "source"})
	FeedSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_items",
		Help: "Текущий размер ленты",
	}, []string{"context"})
	TransportStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_transport_status",
		Help: "Состояние подписки: 0 idle, 1 connecting, 2 open, 3 closed",
	}, []string{"context"})
	ActionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_action_failures_total",
		Help: "Ошибки пользовательских действий",
	}, []string{"action", "kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FramesReceived,
		FramesDropped,
		FeedSize,
		TransportStatus,
		ActionFailures,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncFramesReceived учитывает полученное сообщение транспорта.
func IncFramesReceived(feedContext, frameType string) {
	if frameType == "" {
		frameType = "unknown"
	}
	FramesReceived.WithLabelValues(feedContext, frameType).Inc()
}

// IncFramesDropped учитывает отброшенное сообщение или запись.
func IncFramesDropped(feedContext, source string) {
	FramesDropped.WithLabelValues(feedContext, source).Inc()
}

// SetFeedSize обновляет размер ленты.
func SetFeedSize(feedContext string, n int) {
	FeedSize.WithLabelValues(feedContext).Set(float64(n))
}

// SetTransportStatus обновляет состояние подписки.
func SetTransportStatus(feedContext string, status int32) {
	TransportStatus.WithLabelValues(feedContext).Set(float64(status))
}

// IncActionFailure учитывает ошибку пользовательского действия.
func IncActionFailure(action, kind string) {
	ActionFailures.WithLabelValues(action, kind).Inc()
}
