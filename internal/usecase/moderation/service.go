package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
	"masjid-feed/internal/usecase/feed"
)

// Service выполняет действия пользователя над лентой: сначала оптимистичный патч, затем запрос к API.
// При ошибке патч компенсируется, а ошибка возвращается как *domain.ActionError.
type Service struct {
	api    domain.FeedAPI
	log    zerolog.Logger
	newKey func() string
	now    func() time.Time
}

// NewService создаёт сервис действий.
func NewService(api domain.FeedAPI, logger zerolog.Logger) *Service {
	return &Service{
		api:    api,
		log:    logger.With().Str("component", "moderation").Logger(),
		newKey: func() string { return uuid.NewString() },
		now:    time.Now,
	}
}

// Like увеличивает счётчик лайков и отправляет лайк.
func (s *Service) Like(ctx context.Context, store *feed.Store, itemID int64) error {
	item, ok := store.Get(itemID)
	if !ok {
		return s.fail(store, domain.ActionLike, itemID, domain.ErrNotFound)
	}
	optimistic := item.LikeCount + 1
	store.PatchCounts(itemID, domain.CountsPatch{LikeCount: &optimistic})

	if err := s.api.Like(ctx, itemID, s.newKey()); err != nil {
		s.restoreCounts(store, itemID, optimistic, item.LikeCount, func(i domain.FeedItem) int { return i.LikeCount }, true)
		return s.fail(store, domain.ActionLike, itemID, err)
	}
	return nil
}

// Comment увеличивает счётчик комментариев и отправляет комментарий.
func (s *Service) Comment(ctx context.Context, store *feed.Store, itemID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.fail(store, domain.ActionComment, itemID, domain.ErrValidation)
	}
	item, ok := store.Get(itemID)
	if !ok {
		return s.fail(store, domain.ActionComment, itemID, domain.ErrNotFound)
	}
	optimistic := item.CommentCount + 1
	store.PatchCounts(itemID, domain.CountsPatch{CommentCount: &optimistic})

	if err := s.api.Comment(ctx, itemID, text, s.newKey()); err != nil {
		s.restoreCounts(store, itemID, optimistic, item.CommentCount, func(i domain.FeedItem) int { return i.CommentCount }, false)
		return s.fail(store, domain.ActionComment, itemID, err)
	}
	return nil
}

// SetStatus меняет статус модерации (approved/rejected/pending).
func (s *Service) SetStatus(ctx context.Context, store *feed.Store, itemID int64, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return s.fail(store, domain.ActionStatus, itemID, domain.ErrValidation)
	}
	item, ok := store.Get(itemID)
	if !ok {
		return s.fail(store, domain.ActionStatus, itemID, domain.ErrNotFound)
	}
	store.PatchStatus(itemID, status)

	if err := s.api.UpdateStatus(ctx, itemID, status); err != nil {
		if current, ok := store.Get(itemID); ok && current.Status == status {
			store.PatchStatus(itemID, item.Status)
		}
		return s.fail(store, domain.ActionStatus, itemID, err)
	}
	return nil
}

// Delete убирает запись из ленты и удаляет её на сервере.
func (s *Service) Delete(ctx context.Context, store *feed.Store, itemID int64) error {
	removed, ok := store.Remove(itemID)
	if !ok {
		return s.fail(store, domain.ActionDelete, itemID, domain.ErrNotFound)
	}
	if err := s.api.Delete(ctx, itemID); err != nil {
		store.Apply(removed)
		return s.fail(store, domain.ActionDelete, itemID, err)
	}
	return nil
}

// Create добавляет временную запись и создаёт её на сервере.
// Ответ сервера заменяет временную запись.
func (s *Service) Create(ctx context.Context, store *feed.Store, in domain.NewItem) (domain.FeedItem, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.FeedItem{}, s.fail(store, domain.ActionCreate, 0, domain.ErrValidation)
	}
	if in.Kind == "" {
		in.Kind = domain.KindAnnouncement
	}
	draft := domain.FeedItem{
		Title:     in.Title,
		Content:   in.Content,
		Kind:      in.Kind,
		MediaURL:  in.MediaURL,
		MosqueID:  in.MosqueID,
		Status:    "pending",
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if in.Kind.Is(domain.KindMarketplace) {
		draft.Author = &domain.AuthorRef{}
	} else {
		draft.Mosque = &domain.MosqueRef{ID: in.MosqueID}
	}
	local := store.InsertLocal(draft)

	raw, err := s.api.Create(ctx, in, s.newKey())
	if err != nil {
		store.Remove(local.ID)
		return domain.FeedItem{}, s.fail(store, domain.ActionCreate, 0, err)
	}
	if !feed.Acceptable(raw) {
		s.log.Warn().Str("context", store.Name()).Msg("moderation: сервер не вернул созданную запись")
		return local, nil
	}
	created := store.Normalize(raw)
	store.Apply(created)
	if created.ID > 0 {
		store.Remove(local.ID)
		if current, ok := store.Get(created.ID); ok {
			return current, nil
		}
	}
	return created, nil
}

func (s *Service) restoreCounts(store *feed.Store, itemID int64, optimistic, previous int, read func(domain.FeedItem) int, like bool) {
	current, ok := store.Get(itemID)
	if !ok || read(current) != optimistic {
		// счётчик уже обновлён сервером
		return
	}
	patch := domain.CountsPatch{}
	if like {
		patch.LikeCount = &previous
	} else {
		patch.CommentCount = &previous
	}
	store.PatchCounts(itemID, patch)
}

func (s *Service) fail(store *feed.Store, action domain.Action, itemID int64, err error) error {
	kind := domain.ErrorKind(err)
	metrics.IncActionFailure(string(action), kind)
	s.log.Warn().Err(err).Str("context", store.Name()).Str("action", string(action)).Int64("item_id", itemID).Msg("moderation: действие не выполнено")
	return &domain.ActionError{Action: action, ItemID: itemID, Err: err}
}
