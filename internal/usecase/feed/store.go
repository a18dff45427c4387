package feed

import (
	"sync"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

// Subscriber получает снимок коллекции после каждой мутации.
// Снимки приходят в порядке мутаций; подписчик не должен мутировать тот же Store.
type Subscriber func(items []domain.FeedItem)

// Store хранит упорядоченную ленту одного view.
type Store struct {
	name       string
	log        zerolog.Logger
	normalizer Normalizer

	// order держится от мутации до конца рассылки снимка
	order sync.Mutex

	mu      sync.Mutex
	items   []domain.FeedItem
	closed  bool
	localID int64

	subMu  sync.Mutex
	subs   map[int]Subscriber
	nextID int
}

// NewStore создаёт пустое хранилище ленты для контекста подписки.
func NewStore(name string, normalizer Normalizer, logger zerolog.Logger) *Store {
	return &Store{
		name:       name,
		log:        logger.With().Str("component", "feed_store").Str("context", name).Logger(),
		normalizer: normalizer,
		subs:       make(map[int]Subscriber),
	}
}

// Name возвращает контекст подписки.
func (s *Store) Name() string { return s.name }

// ReplaceAll полностью заменяет коллекцию (после bulk fetch).
func (s *Store) ReplaceAll(items []domain.FeedItem) {
	next := Dedupe(items)
	s.mutate(func(current []domain.FeedItem) ([]domain.FeedItem, bool) {
		return next, true
	})
}

// ReplaceAllRaw нормализует ответ bulk fetch и заменяет коллекцию.
// Записи, не прошедшие предусловие, отбрасываются.
func (s *Store) ReplaceAllRaw(raws []map[string]any) int {
	items := make([]domain.FeedItem, 0, len(raws))
	for _, raw := range raws {
		if !Acceptable(raw) {
			s.drop("bulk")
			continue
		}
		items = append(items, s.normalizer.Normalize(raw))
	}
	s.ReplaceAll(items)
	return len(items)
}

// Normalize нормализует запись настройками этого хранилища.
func (s *Store) Normalize(raw map[string]any) domain.FeedItem {
	return s.normalizer.Normalize(raw)
}

// ApplyIncoming нормализует и вливает одно real-time сообщение.
// Некорректные сообщения логируются и отбрасываются.
func (s *Store) ApplyIncoming(raw map[string]any) bool {
	if !Acceptable(raw) {
		s.drop("frame")
		return false
	}
	return s.Apply(s.Normalize(raw))
}

// Apply вливает уже нормализованную запись.
func (s *Store) Apply(item domain.FeedItem) bool {
	return s.mutate(func(current []domain.FeedItem) ([]domain.FeedItem, bool) {
		next := Merge(current, item)
		return next, !sameSlice(current, next)
	})
}

// InsertLocal добавляет оптимистично созданную запись с временным отрицательным id.
func (s *Store) InsertLocal(item domain.FeedItem) domain.FeedItem {
	s.mu.Lock()
	s.localID--
	item.ID = s.localID
	s.mu.Unlock()
	s.Apply(item)
	return item
}

// PatchCounts точечно обновляет счётчики записи.
func (s *Store) PatchCounts(id int64, patch domain.CountsPatch) bool {
	return s.update(id, func(item *domain.FeedItem) bool {
		changed := false
		if patch.LikeCount != nil {
			if n := clampCount(*patch.LikeCount); n != item.LikeCount {
				item.LikeCount = n
				changed = true
			}
		}
		if patch.CommentCount != nil {
			if n := clampCount(*patch.CommentCount); n != item.CommentCount {
				item.CommentCount = n
				changed = true
			}
		}
		return changed
	})
}

// PatchStatus точечно обновляет статус модерации.
func (s *Store) PatchStatus(id int64, status string) bool {
	return s.update(id, func(item *domain.FeedItem) bool {
		if item.Status == status {
			return false
		}
		item.Status = status
		return true
	})
}

// Remove удаляет запись и возвращает её.
func (s *Store) Remove(id int64) (domain.FeedItem, bool) {
	var removed domain.FeedItem
	var found bool
	s.mutate(func(current []domain.FeedItem) ([]domain.FeedItem, bool) {
		for idx, item := range current {
			if item.ID != id {
				continue
			}
			removed, found = item, true
			next := make([]domain.FeedItem, 0, len(current)-1)
			next = append(next, current[:idx]...)
			next = append(next, current[idx+1:]...)
			return next, true
		}
		return current, false
	})
	return removed, found
}

// Get возвращает запись по id.
func (s *Store) Get(id int64) (domain.FeedItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return domain.FeedItem{}, false
}

// Items возвращает копию текущей коллекции.
func (s *Store) Items() []domain.FeedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FeedItem(nil), s.items...)
}

// Len возвращает размер коллекции.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subscribe регистрирует подписчика. Возвращает функцию отписки.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Close отключает хранилище: последующие мутации игнорируются.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.subMu.Lock()
	s.subs = make(map[int]Subscriber)
	s.subMu.Unlock()
}

// Closed сообщает, что view уже размонтирован.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) update(id int64, fn func(item *domain.FeedItem) bool) bool {
	return s.mutate(func(current []domain.FeedItem) ([]domain.FeedItem, bool) {
		for idx := range current {
			if current[idx].ID != id {
				continue
			}
			patched := current[idx]
			if !fn(&patched) {
				return current, false
			}
			next := append([]domain.FeedItem(nil), current...)
			next[idx] = patched
			return next, true
		}
		return current, false
	})
}

func (s *Store) mutate(fn func(current []domain.FeedItem) ([]domain.FeedItem, bool)) bool {
	s.order.Lock()
	defer s.order.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug().Msg("feed: мутация после закрытия проигнорирована")
		return false
	}
	next, changed := fn(s.items)
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.items = next
	snapshot := append([]domain.FeedItem(nil), next...)
	s.mu.Unlock()

	metrics.SetFeedSize(s.name, len(snapshot))
	s.notify(snapshot)
	return true
}

func (s *Store) notify(snapshot []domain.FeedItem) {
	s.subMu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *Store) drop(source string) {
	metrics.IncFramesDropped(s.name, source)
	s.log.Warn().Str("source", source).Msg("feed: запись без id и title отброшена")
}

func sameSlice(a, b []domain.FeedItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
