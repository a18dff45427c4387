package domain

import (
	"strings"
	"time"
)

// ItemKind описывает тип записи ленты. Неизвестные значения сохраняются как есть.
type ItemKind string

const (
	KindAnnouncement ItemKind = "announcement"
	KindKajian       ItemKind = "kajian"
	KindMarketplace  ItemKind = "marketplace"
)

// Is сравнивает типы без учёта регистра; само значение хранится как пришло.
func (k ItemKind) Is(other ItemKind) bool {
	return strings.EqualFold(string(k), string(other))
}

// MosqueRef ссылается на масджид-владельца записи.
type MosqueRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// AuthorRef ссылается на автора записи маркетплейса.
type AuthorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ref — нестрогая ссылка на спикера или китаб: id и/или отображаемое имя.
type Ref struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// FeedItem — каноничная запись ленты (объявление, kajian, пост маркетплейса).
type FeedItem struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Kind         ItemKind   `json:"kind"`
	KindImplicit bool       `json:"kindImplicit,omitempty"` // сервер не прислал тип, Kind подставлен по умолчанию
	MediaURL     string     `json:"mediaUrl,omitempty"`
	MosqueID     string     `json:"mosqueId,omitempty"`
	Mosque       *MosqueRef `json:"mosque,omitempty"`
	Author       *AuthorRef `json:"author,omitempty"`
	LikeCount    int        `json:"likeCount"`
	CommentCount int        `json:"commentCount"`
	Status       string     `json:"status,omitempty"`
	CreatedAt    string     `json:"createdAt"`
	EventAt      *time.Time `json:"eventAt,omitempty"`
	Speaker      *Ref       `json:"speaker,omitempty"`
	Kitab        *Ref       `json:"kitab,omitempty"`
}

// OwnerKey возвращает идентичность владельца для эвристики дедупликации.
func (i FeedItem) OwnerKey() string {
	switch {
	case i.Mosque != nil:
		return "mosque:" + firstNonEmpty(i.Mosque.ID, i.MosqueID, i.Mosque.Name)
	case i.Author != nil:
		return "author:" + firstNonEmpty(i.Author.ID, i.Author.Name)
	case i.MosqueID != "":
		return "mosque:" + i.MosqueID
	}
	return ""
}

// OwnerName возвращает отображаемое имя владельца.
func (i FeedItem) OwnerName() string {
	if i.Mosque != nil {
		return i.Mosque.Name
	}
	if i.Author != nil {
		return i.Author.Name
	}
	return ""
}

// Provisional сообщает, что запись создана локально и ещё не получила id от сервера.
func (i FeedItem) Provisional() bool {
	return i.ID <= 0
}

// CountsPatch — частичное обновление счётчиков; nil означает «не менять».
type CountsPatch struct {
	LikeCount    *int
	CommentCount *int
}

// CalendarCell описывает один день сетки месяца.
type CalendarCell struct {
	DateKey        string    `json:"dateKey"`
	Date           time.Time `json:"date"`
	InCurrentMonth bool      `json:"inCurrentMonth"`
}

// FilterState — состояние фильтров календаря.
// Категории объединяются через AND, значения внутри категории — через OR.
type FilterState struct {
	Query      string
	BidangIlmu []string
	SpeakerIDs []string
	KitabIDs   []string
	MasjidIDs  []string
}

// Speaker — справочная запись спикера (ustadz).
type Speaker struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Kitab — справочная запись книги с тегом bidang ilmu.
type Kitab struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	BidangIlmu string `json:"bidangIlmu"`
}

// Masjid — справочная запись масджида.
type Masjid struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// ReferenceData содержит статические справочники для фильтрации календаря.
type ReferenceData struct {
	Speakers []Speaker `json:"speakers"`
	Kitabs   []Kitab   `json:"kitabs"`
	Masjids  []Masjid  `json:"masjids"`
}

// SpeakerByID ищет спикера по id.
func (r ReferenceData) SpeakerByID(id string) (Speaker, bool) {
	for _, s := range r.Speakers {
		if s.ID == id {
			return s, true
		}
	}
	return Speaker{}, false
}

// KitabByID ищет китаб по id.
func (r ReferenceData) KitabByID(id string) (Kitab, bool) {
	for _, k := range r.Kitabs {
		if k.ID == id {
			return k, true
		}
	}
	return Kitab{}, false
}

// MasjidByID ищет масджид по id.
func (r ReferenceData) MasjidByID(id string) (Masjid, bool) {
	for _, m := range r.Masjids {
		if m.ID == id {
			return m, true
		}
	}
	return Masjid{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
