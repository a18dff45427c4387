package feed

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
)

const (
	mirrorFlushTimeout = 5 * time.Second
	mirrorRetryDelay   = time.Second
)

// MirrorWriter переносит изменения ленты в domain.FeedMirror.
// Подписчик только запоминает последний снимок; запись в зеркало идёт в Run,
// поэтому медленная база не тормозит источники сообщений.
type MirrorWriter struct {
	name   string
	mirror domain.FeedMirror
	log    zerolog.Logger

	mu      sync.Mutex
	pending []domain.FeedItem
	dirty   bool
	wake    chan struct{}

	retryDelay time.Duration
	written    map[int64]domain.FeedItem
}

// NewMirrorWriter создаёт писателя зеркала для контекста.
func NewMirrorWriter(name string, mirror domain.FeedMirror, logger zerolog.Logger) *MirrorWriter {
	return &MirrorWriter{
		name:       name,
		mirror:     mirror,
		log:        logger.With().Str("component", "feed_mirror").Str("context", name).Logger(),
		wake:       make(chan struct{}, 1),
		retryDelay: mirrorRetryDelay,
		written:    make(map[int64]domain.FeedItem),
	}
}

// Prime запоминает то, что уже лежит в зеркале, чтобы удалить исчезнувшие записи при первой записи.
func (w *MirrorWriter) Prime(items []domain.FeedItem) {
	for _, item := range items {
		w.written[item.ID] = item
	}
}

// Observe — Subscriber для Store.
func (w *MirrorWriter) Observe(items []domain.FeedItem) {
	w.mu.Lock()
	w.pending = items
	w.dirty = true
	w.mu.Unlock()
	w.signal()
}

func (w *MirrorWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run пишет снимки до отмены ctx, после отмены сбрасывает последний.
func (w *MirrorWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorFlushTimeout)
			w.Flush(flushCtx)
			cancel()
			return
		case <-w.wake:
			w.Flush(ctx)
		}
	}
}

// Flush записывает разницу между последним снимком и уже записанным состоянием.
func (w *MirrorWriter) Flush(ctx context.Context) {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	snapshot := w.pending
	w.dirty = false
	w.mu.Unlock()

	upserts, deletes := w.diff(snapshot)
	if len(upserts) > 0 {
		if err := w.mirror.UpsertFeedItems(ctx, w.name, upserts); err != nil {
			w.retryLater(snapshot)
			w.log.Warn().Err(err).Msg("feed: запись в зеркало не удалась")
			return
		}
		for _, item := range upserts {
			w.written[item.ID] = item
		}
	}
	if len(deletes) > 0 {
		if err := w.mirror.DeleteFeedItems(ctx, w.name, deletes); err != nil {
			w.retryLater(snapshot)
			w.log.Warn().Err(err).Msg("feed: удаление из зеркала не удалось")
			return
		}
		for _, id := range deletes {
			delete(w.written, id)
		}
	}
}

// retryLater возвращает снимок в очередь, если новее не пришло, и будит Run через retryDelay.
func (w *MirrorWriter) retryLater(snapshot []domain.FeedItem) {
	w.mu.Lock()
	if !w.dirty {
		w.pending = snapshot
		w.dirty = true
	}
	w.mu.Unlock()
	time.AfterFunc(w.retryDelay, w.signal)
}

func (w *MirrorWriter) diff(snapshot []domain.FeedItem) ([]domain.FeedItem, []int64) {
	var upserts []domain.FeedItem
	seen := make(map[int64]struct{}, len(snapshot))
	for _, item := range snapshot {
		// временные записи живут только в памяти
		if item.Provisional() {
			continue
		}
		seen[item.ID] = struct{}{}
		if prev, ok := w.written[item.ID]; ok && reflect.DeepEqual(prev, item) {
			continue
		}
		upserts = append(upserts, item)
	}
	var deletes []int64
	for id := range w.written {
		if _, ok := seen[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	return upserts, deletes
}
