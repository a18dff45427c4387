package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"masjid-feed/internal/adapters/masjidapi"
	"masjid-feed/internal/adapters/repo"
	"masjid-feed/internal/adapters/wsclient"
	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/cache"
	"masjid-feed/internal/infra/config"
	"masjid-feed/internal/infra/db"
	httpinfra "masjid-feed/internal/infra/http"
	applog "masjid-feed/internal/infra/log"
	"masjid-feed/internal/infra/metrics"
	"masjid-feed/internal/infra/queue"
	"masjid-feed/internal/usecase/calendar"
	"masjid-feed/internal/usecase/feed"
	"masjid-feed/internal/usecase/moderation"
	"masjid-feed/internal/usecase/reference"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := calendar.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("feed-gateway: неизвестная таймзона")
	}
	firstWeekday, err := calendar.ParseWeekday(cfg.Feed.FirstWeekday)
	if err != nil {
		logger.Fatal().Err(err).Msg("feed-gateway: неверный CALENDAR_FIRST_WEEKDAY")
	}

	api, err := masjidapi.New(cfg.API.BaseURL, masjidapi.WithToken(cfg.API.Token), masjidapi.WithTimeout(cfg.API.Timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("feed-gateway: неверный API_BASE_URL")
	}

	var mirror *repo.Postgres
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("feed-gateway: нет подключения к БД")
		}
		defer pool.Close()
		mirror = openMirror(ctx, pool, logger)
	}

	var redisClient *redis.Client
	var refCache domain.Cache
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		refCache = cache.NewRedis(redisClient, "masjid-feed:")
	}

	normalizer := feed.Normalizer{Location: loc}
	sessions := make([]*feed.Session, 0, len(cfg.Feed.Contexts))
	for _, name := range cfg.Feed.Contexts {
		sources, err := buildSources(cfg, name, api, redisClient, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("context", name).Msg("feed-gateway: не удалось настроить источники")
		}
		opts := []feed.SessionOption{feed.WithSources(sources...)}
		if mirror != nil {
			opts = append(opts, feed.WithMirror(mirror))
		}
		n := normalizer
		if name == string(domain.KindMarketplace) {
			n.DefaultKind = domain.KindMarketplace
		}
		session := feed.NewSession(name, api, n, logger, opts...)
		if err := session.Start(ctx); err != nil {
			logger.Fatal().Err(err).Str("context", name).Msg("feed-gateway: сессия не запущена")
		}
		sessions = append(sessions, session)
	}

	gw := newGateway(sessions,
		moderation.NewService(api, logger),
		reference.NewService(api, refCache, cfg.Reference.TTL, logger),
		logger,
	)
	gw.loc = loc
	gw.firstWeekday = firstWeekday
	gw.writeToken = cfg.Gateway.Token
	if mirror != nil {
		gw.archive = mirror
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	gw.routes(server.Router)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("feed-gateway: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("feed-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("feed-gateway: ошибка остановки сервера")
	}
	for _, s := range sessions {
		s.Close()
	}
}

func openMirror(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) *repo.Postgres {
	mirror := repo.NewPostgres(pool)
	if err := mirror.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("feed-gateway: схема зеркала не создана")
	}
	return mirror
}

// buildSources собирает производителей сообщений для контекста: транспорт, опрос и очереди.
func buildSources(cfg config.AppConfig, name string, api domain.FeedAPI, redisClient *redis.Client, logger zerolog.Logger) ([]domain.FrameSource, error) {
	var sources []domain.FrameSource
	if cfg.Feed.WSEndpoint != "" {
		header := http.Header{}
		if cfg.API.Token != "" {
			header.Set("Authorization", "Bearer "+cfg.API.Token)
		}
		sources = append(sources, wsclient.New(cfg.Feed.WSEndpoint, name, logger, wsclient.WithHeader(header)))
	}
	if cfg.Feed.PollInterval > 0 {
		sources = append(sources, feed.NewPoller(api, name, cfg.Feed.PollInterval, logger))
	}
	if redisClient != nil && cfg.Queues.RedisFrameKey != "" {
		sources = append(sources, queue.NewRedisFrameSource(redisClient, cfg.Queues.RedisFrameKey, name, logger))
	}
	if cfg.Queues.RabbitURL != "" {
		src, err := queue.NewRabbitFrameSource(cfg.Queues.RabbitURL, cfg.Queues.RabbitExchange, queueName(cfg.Queues.RabbitQueue, name), name, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// queueName добавляет контекст к имени постоянной очереди; пустое имя оставляет очередь временной.
func queueName(base, feedContext string) string {
	if base == "" {
		return ""
	}
	return base + "." + feedContext
}
