package feed

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"masjid-feed/internal/domain"
)

// Normalizer приводит разнородные ответы сервера к domain.FeedItem.
// Нулевое значение готово к использованию: текущее время и time.Local.
type Normalizer struct {
	Now         func() time.Time
	Location    *time.Location
	DefaultKind domain.ItemKind
}

var defaultNormalizer Normalizer

// Acceptable проверяет предусловие: запись без id и без title отбрасывается до нормализации.
func Acceptable(raw map[string]any) bool {
	if raw == nil {
		return false
	}
	if _, ok := int64Field(raw, "id"); ok {
		return true
	}
	return stringField(raw, "title") != ""
}

// Normalize нормализует запись с настройками по умолчанию.
func Normalize(raw map[string]any) domain.FeedItem {
	return defaultNormalizer.Normalize(raw)
}

// Normalize строит каноничную запись. Не паникует на отсутствующих полях.
func (n Normalizer) Normalize(raw map[string]any) domain.FeedItem {
	id, _ := int64Field(raw, "id")
	kind, implicit := n.kind(raw)
	item := domain.FeedItem{
		ID:           id,
		Title:        stringField(raw, "title"),
		Content:      stringField(raw, "content", "body"),
		Kind:         kind,
		KindImplicit: implicit,
		MediaURL:     stringField(raw, "media_url", "mediaUrl"),
		MosqueID:     stringField(raw, "mosque_id", "mosqueId", "masjid_id", "masjidId"),
		LikeCount:    countField(raw, "like_count", "likeCount", "likes_count", "likesCount"),
		CommentCount: countField(raw, "comment_count", "commentCount", "comments_count", "commentsCount"),
		Status:       strings.ToLower(stringField(raw, "status")),
		CreatedAt:    n.createdAt(raw),
		Speaker:      ref(raw, "speaker", []string{"speaker_id", "speakerId"}, []string{"speaker_name", "speakerName"}),
		Kitab:        ref(raw, "kitab", []string{"kitab_id", "kitabId"}, []string{"kitab_title", "kitabTitle", "kitab_name", "kitabName"}),
	}

	mosque := mosqueRef(raw, item.MosqueID)
	author := authorRef(raw)
	if item.Kind.Is(domain.KindMarketplace) {
		switch {
		case author != nil:
			item.Author = author
		case mosque != nil:
			item.Mosque = mosque
		default:
			item.Author = &domain.AuthorRef{}
		}
	} else {
		switch {
		case mosque != nil:
			item.Mosque = mosque
		case author != nil:
			item.Author = author
		default:
			item.Mosque = &domain.MosqueRef{}
		}
	}

	// запись без типа с датой события может оказаться kajian
	if item.Kind.Is(domain.KindKajian) || implicit {
		if s := stringField(raw, "event_date", "eventDate", "event_at", "eventAt"); s != "" {
			if t, ok := ParseTimestamp(s, n.location()); ok {
				item.EventAt = &t
			}
		}
	}
	return item
}

// kind возвращает тип как его прислал сервер; второй результат — тип подставлен по умолчанию.
func (n Normalizer) kind(raw map[string]any) (domain.ItemKind, bool) {
	if kind := stringField(raw, "type", "kind"); kind != "" {
		return domain.ItemKind(kind), false
	}
	if n.DefaultKind != "" {
		return n.DefaultKind, true
	}
	return domain.KindAnnouncement, true
}

func (n Normalizer) createdAt(raw map[string]any) string {
	s := stringField(raw, "created_at", "createdAt")
	if s == "" {
		return n.now().UTC().Format(time.RFC3339)
	}
	if t, ok := ParseTimestamp(s, n.location()); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return s
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n Normalizer) location() *time.Location {
	if n.Location != nil {
		return n.Location
	}
	return time.Local
}

var zonedLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05Z07:00"}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp разбирает ISO-8601 строку. Метки без зоны трактуются как локальное время loc,
// метки с зоной переводятся в loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mosqueRef(raw map[string]any, flatID string) *domain.MosqueRef {
	nested := nestedMap(raw, "mosque", "masjid")
	ref := domain.MosqueRef{
		ID:    firstNonEmpty(stringField(nested, "id", "mosque_id", "masjid_id"), flatID),
		Name:  firstNonEmpty(stringField(nested, "name"), stringField(raw, "mosque_name", "mosqueName", "masjid_name", "masjidName")),
		Image: firstNonEmpty(stringField(nested, "image", "image_url", "imageUrl"), stringField(raw, "mosque_image", "mosqueImage")),
	}
	if ref == (domain.MosqueRef{}) {
		return nil
	}
	return &ref
}

func authorRef(raw map[string]any) *domain.AuthorRef {
	nested := nestedMap(raw, "author", "user")
	ref := domain.AuthorRef{
		ID:   firstNonEmpty(stringField(nested, "id"), stringField(raw, "author_id", "authorId", "user_id", "userId")),
		Name: firstNonEmpty(stringField(nested, "name", "full_name", "fullName"), stringField(raw, "author_name", "authorName")),
	}
	if ref == (domain.AuthorRef{}) {
		return nil
	}
	return &ref
}

func ref(raw map[string]any, nestedKey string, idKeys, nameKeys []string) *domain.Ref {
	nested := nestedMap(raw, nestedKey)
	r := domain.Ref{
		ID:   firstNonEmpty(stringField(nested, "id"), stringField(raw, idKeys...)),
		Name: firstNonEmpty(stringField(nested, "name", "title"), stringField(raw, nameKeys...)),
	}
	if r == (domain.Ref{}) {
		return nil
	}
	return &r
}

func nestedMap(raw map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if m, ok := raw[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(asString(v)); s != "" {
			return s
		}
	}
	return ""
}

func int64Field(raw map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if n, ok := asInt64(v); ok {
			return n, true
		}
	}
	return 0, false
}

func countField(raw map[string]any, keys ...string) int {
	n, ok := int64Field(raw, keys...)
	if !ok || n < 0 {
		return 0
	}
	return int(n)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
