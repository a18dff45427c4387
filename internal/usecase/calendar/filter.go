package calendar

import (
	"strings"

	"masjid-feed/internal/domain"
)

// FilterEvents отбирает события для календаря.
// Стадии независимы и объединяются через AND; пустой выбор в стадии пропускает всё.
func FilterEvents(items []domain.FeedItem, filter domain.FilterState, ref domain.ReferenceData) []domain.FeedItem {
	f := compile(filter, ref)
	out := make([]domain.FeedItem, 0, len(items))
	for _, item := range items {
		if !eligible(item) {
			continue
		}
		if !f.matchQuery(item, ref) || !f.matchSpeaker(item) || !f.matchKitab(item) ||
			!f.matchMasjid(item) || !f.matchBidang(item, ref) {
			continue
		}
		out = append(out, item)
	}
	return out
}

type compiled struct {
	query        string
	speakerIDs   map[string]struct{}
	speakerNames map[string]struct{}
	kitabIDs     map[string]struct{}
	masjidIDs    map[string]struct{}
	bidang       map[string]struct{}
}

func compile(filter domain.FilterState, ref domain.ReferenceData) compiled {
	c := compiled{
		query:        strings.ToLower(strings.TrimSpace(filter.Query)),
		speakerIDs:   toSet(filter.SpeakerIDs, false),
		speakerNames: make(map[string]struct{}),
		kitabIDs:     toSet(filter.KitabIDs, false),
		masjidIDs:    toSet(filter.MasjidIDs, false),
		bidang:       toSet(filter.BidangIlmu, true),
	}
	for id := range c.speakerIDs {
		if s, ok := ref.SpeakerByID(id); ok && strings.TrimSpace(s.Name) != "" {
			c.speakerNames[strings.ToLower(strings.TrimSpace(s.Name))] = struct{}{}
		}
	}
	return c
}

// eligible: только kajian (или запись, пришедшая без типа) с датой события.
func eligible(item domain.FeedItem) bool {
	if item.EventAt == nil {
		return false
	}
	return item.Kind.Is(domain.KindKajian) || item.KindImplicit || item.Kind == ""
}

func (c compiled) matchQuery(item domain.FeedItem, ref domain.ReferenceData) bool {
	if c.query == "" {
		return true
	}
	parts := []string{item.Title, speakerName(item, ref), kitabTitle(item, ref), ownerName(item, ref)}
	return strings.Contains(strings.ToLower(strings.Join(parts, " ")), c.query)
}

func (c compiled) matchSpeaker(item domain.FeedItem) bool {
	if len(c.speakerIDs) == 0 {
		return true
	}
	if item.Speaker == nil {
		return false
	}
	if item.Speaker.ID != "" {
		_, ok := c.speakerIDs[item.Speaker.ID]
		return ok
	}
	// старые записи без id спикера сравниваются по имени
	_, ok := c.speakerNames[strings.ToLower(strings.TrimSpace(item.Speaker.Name))]
	return ok
}

func (c compiled) matchKitab(item domain.FeedItem) bool {
	if len(c.kitabIDs) == 0 {
		return true
	}
	if item.Kitab == nil || item.Kitab.ID == "" {
		return false
	}
	_, ok := c.kitabIDs[item.Kitab.ID]
	return ok
}

func (c compiled) matchMasjid(item domain.FeedItem) bool {
	if len(c.masjidIDs) == 0 {
		return true
	}
	for _, id := range masjidIDs(item) {
		if _, ok := c.masjidIDs[id]; ok {
			return true
		}
	}
	return false
}

func (c compiled) matchBidang(item domain.FeedItem, ref domain.ReferenceData) bool {
	if len(c.bidang) == 0 {
		return true
	}
	if item.Kitab == nil || item.Kitab.ID == "" {
		return false
	}
	kitab, ok := ref.KitabByID(item.Kitab.ID)
	if !ok {
		return false
	}
	_, ok = c.bidang[strings.ToLower(strings.TrimSpace(kitab.BidangIlmu))]
	return ok
}

func masjidIDs(item domain.FeedItem) []string {
	var ids []string
	if item.MosqueID != "" {
		ids = append(ids, item.MosqueID)
	}
	if item.Mosque != nil && item.Mosque.ID != "" {
		ids = append(ids, item.Mosque.ID)
	}
	return ids
}

func speakerName(item domain.FeedItem, ref domain.ReferenceData) string {
	if item.Speaker == nil {
		return ""
	}
	if item.Speaker.Name != "" {
		return item.Speaker.Name
	}
	if s, ok := ref.SpeakerByID(item.Speaker.ID); ok {
		return s.Name
	}
	return ""
}

func kitabTitle(item domain.FeedItem, ref domain.ReferenceData) string {
	if item.Kitab == nil {
		return ""
	}
	if k, ok := ref.KitabByID(item.Kitab.ID); ok && k.Title != "" {
		return k.Title
	}
	return item.Kitab.Name
}

func ownerName(item domain.FeedItem, ref domain.ReferenceData) string {
	if name := item.OwnerName(); name != "" {
		return name
	}
	for _, id := range masjidIDs(item) {
		if m, ok := ref.MasjidByID(id); ok {
			return m.Name
		}
	}
	return ""
}

func toSet(values []string, fold bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if fold {
			v = strings.ToLower(v)
		}
		set[v] = struct{}{}
	}
	return set
}
