package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
)

// ErrSessionStarted возвращается при повторном Start.
var ErrSessionStarted = errors.New("feed: session already started")

// Session — время жизни одного view (страница масджида, кабинет, marketplace):
// хранилище, диспетчер и источники сообщений.
type Session struct {
	name    string
	api     domain.FeedAPI
	mirror  domain.FeedMirror
	sources []domain.FrameSource
	store   *Store
	disp    *Dispatcher
	writer  *MirrorWriter
	log     zerolog.Logger

	mu      sync.Mutex
	lastErr error
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SessionOption настраивает сессию.
type SessionOption func(*Session)

// WithSources добавляет источники сообщений (транспорт, опрос, очереди).
func WithSources(sources ...domain.FrameSource) SessionOption {
	return func(s *Session) {
		for _, src := range sources {
			if src != nil {
				s.sources = append(s.sources, src)
			}
		}
	}
}

// WithMirror включает запись ленты в зеркало и тёплый старт из него при недоступном bulk fetch.
func WithMirror(mirror domain.FeedMirror) SessionOption {
	return func(s *Session) {
		s.mirror = mirror
	}
}

// NewSession создаёт сессию для контекста подписки.
func NewSession(name string, api domain.FeedAPI, normalizer Normalizer, logger zerolog.Logger, opts ...SessionOption) *Session {
	store := NewStore(name, normalizer, logger)
	s := &Session{
		name:  name,
		api:   api,
		store: store,
		disp:  NewDispatcher(store, logger),
		log:   logger.With().Str("component", "feed_session").Str("context", name).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mirror != nil {
		s.writer = NewMirrorWriter(name, s.mirror, logger)
	}
	return s
}

// Name возвращает контекст подписки.
func (s *Session) Name() string { return s.name }

// Store возвращает хранилище ленты.
func (s *Session) Store() *Store { return s.store }

// Dispatcher возвращает диспетчер сообщений.
func (s *Session) Dispatcher() *Dispatcher { return s.disp }

// Start выполняет bulk fetch и только после него запускает источники.
// Ошибка загрузки не останавливает сессию: она сохраняется в LastError.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	mirrored := s.loadMirror(runCtx)
	if err := s.Refresh(runCtx); err != nil && mirrored != nil {
		s.store.ReplaceAll(mirrored)
		s.log.Info().Int("items", len(mirrored)).Msg("feed: лента поднята из зеркала")
	}
	if s.writer != nil {
		s.writer.Observe(s.store.Items())
		s.store.Subscribe(s.writer.Observe)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.writer.Run(runCtx)
		}()
	}

	for _, src := range s.sources {
		s.wg.Add(1)
		go func(src domain.FrameSource) {
			defer s.wg.Done()
			if err := src.Run(runCtx, s.disp.Handle); err != nil && runCtx.Err() == nil {
				s.setErr(err)
				s.log.Error().Err(err).Msg("feed: источник сообщений остановился")
			}
		}(src)
	}
	return nil
}

// Refresh повторяет bulk fetch и заменяет коллекцию.
func (s *Session) Refresh(ctx context.Context) error {
	records, err := s.api.FetchFeed(ctx, s.name)
	if err != nil {
		err = &domain.ActionError{Action: domain.ActionFetch, Err: err}
		s.setErr(err)
		s.log.Warn().Err(err).Msg("feed: bulk fetch не удался")
		return err
	}
	n := s.store.ReplaceAllRaw(records)
	s.log.Info().Int("items", n).Msg("feed: лента загружена")
	s.setErr(nil)
	return nil
}

// Close останавливает источники, дожидается их и закрывает хранилище.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.store.Close()
}

// LastError возвращает последнюю ошибку загрузки или источника.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// TransportStatus возвращает состояние первого источника, который его сообщает.
func (s *Session) TransportStatus() domain.ConnStatus {
	for _, src := range s.sources {
		if st, ok := src.(interface{ Status() domain.ConnStatus }); ok {
			return st.Status()
		}
	}
	return domain.StatusIdle
}

func (s *Session) loadMirror(ctx context.Context) []domain.FeedItem {
	if s.mirror == nil {
		return nil
	}
	items, err := s.mirror.ListFeedItems(ctx, s.name)
	if err != nil {
		s.log.Warn().Err(err).Msg("feed: зеркало недоступно")
		return nil
	}
	s.writer.Prime(items)
	return items
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
