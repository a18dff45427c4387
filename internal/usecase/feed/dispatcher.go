package feed

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

// Dispatcher раскладывает сообщения транспорта по операциям Store.
type Dispatcher struct {
	store *Store
	log   zerolog.Logger

	mu           sync.Mutex
	lastSeq      map[string]uint64
	seenComments map[string]struct{}
}

// NewDispatcher создаёт диспетчер для хранилища.
func NewDispatcher(store *Store, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		log:          logger.With().Str("component", "feed_dispatcher").Str("context", store.Name()).Logger(),
		lastSeq:      make(map[string]uint64),
		seenComments: make(map[string]struct{}),
	}
}

// Handle применяет сообщение. Повторная доставка того же Seq от того же источника — no-op.
// Подходит как domain.FrameHandler.
func (d *Dispatcher) Handle(frame domain.Frame) {
	if frame.Seq != 0 {
		d.mu.Lock()
		if frame.Seq == d.lastSeq[frame.Source] {
			d.mu.Unlock()
			return
		}
		d.lastSeq[frame.Source] = frame.Seq
		d.mu.Unlock()
	}
	if d.store.Closed() {
		return
	}
	metrics.IncFramesReceived(d.store.Name(), string(frame.Type))

	switch frame.Type {
	case domain.FrameLikeUpdate:
		d.likeUpdate(frame.Data)
	case domain.FrameNewComment:
		d.newComment(frame.Data)
	case domain.FrameStatusUpdate:
		d.statusUpdate(frame.Data)
	case domain.FrameDeleted, "delete", "deleted":
		d.deleted(frame.Data)
	default:
		if strings.HasPrefix(string(frame.Type), "new_") || frame.Type == "" {
			d.store.ApplyIncoming(frame.Data)
			return
		}
		d.log.Debug().Str("type", string(frame.Type)).Msg("feed: неизвестный тип сообщения пропущен")
	}
}

func (d *Dispatcher) likeUpdate(data map[string]any) {
	id, ok := targetID(data)
	if !ok {
		d.store.drop("like_update")
		return
	}
	var patch domain.CountsPatch
	if n, ok := int64Field(data, "like_count", "likeCount", "likes_count", "likesCount", "likes"); ok {
		v := int(n)
		patch.LikeCount = &v
	}
	if n, ok := int64Field(data, "comment_count", "commentCount"); ok {
		v := int(n)
		patch.CommentCount = &v
	}
	d.store.PatchCounts(id, patch)
}

func (d *Dispatcher) newComment(data map[string]any) {
	id, ok := int64Field(data, "announcement_id", "announcementId", "post_id", "postId")
	if !ok {
		d.store.drop("new_comment")
		return
	}
	if n, ok := int64Field(data, "comment_count", "commentCount"); ok {
		v := int(n)
		d.store.PatchCounts(id, domain.CountsPatch{CommentCount: &v})
		return
	}
	if commentID := stringField(data, "id", "comment_id", "commentId"); commentID != "" {
		key := stringField(data, "announcement_id", "announcementId", "post_id", "postId") + "/" + commentID
		d.mu.Lock()
		if _, seen := d.seenComments[key]; seen {
			d.mu.Unlock()
			return
		}
		d.seenComments[key] = struct{}{}
		d.mu.Unlock()
	}
	item, ok := d.store.Get(id)
	if !ok {
		return
	}
	v := item.CommentCount + 1
	d.store.PatchCounts(id, domain.CountsPatch{CommentCount: &v})
}

func (d *Dispatcher) statusUpdate(data map[string]any) {
	id, ok := targetID(data)
	status := strings.ToLower(stringField(data, "status"))
	if !ok || status == "" {
		d.store.drop("status_update")
		return
	}
	d.store.PatchStatus(id, status)
}

func (d *Dispatcher) deleted(data map[string]any) {
	id, ok := targetID(data)
	if !ok {
		d.store.drop("delete")
		return
	}
	d.store.Remove(id)
}

func targetID(data map[string]any) (int64, bool) {
	return int64Field(data, "announcement_id", "announcementId", "post_id", "postId", "id")
}
