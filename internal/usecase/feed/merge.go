package feed

import (
	"sort"

	"masjid-feed/internal/domain"
)

// Merge вливает входящую запись в коллекцию без дублей.
// Исходный срез не изменяется; результат отсортирован по убыванию id.
func Merge(items []domain.FeedItem, incoming domain.FeedItem) []domain.FeedItem {
	for _, existing := range items {
		if existing.ID == incoming.ID {
			return items
		}
	}

	// Эхо локально созданной записи: из группы одинаковых остаётся запись с наибольшим id.
	dup := -1
	for idx, existing := range items {
		if sameContent(existing, incoming) {
			dup = idx
			break
		}
	}
	if dup >= 0 {
		if items[dup].ID > incoming.ID {
			return items
		}
		out := make([]domain.FeedItem, 0, len(items))
		out = append(out, items[:dup]...)
		out = append(out, items[dup+1:]...)
		return insertSorted(out, incoming)
	}

	out := make([]domain.FeedItem, 0, len(items)+1)
	out = append(out, items...)
	return insertSorted(out, incoming)
}

// MergeAll последовательно применяет Merge.
func MergeAll(items []domain.FeedItem, incoming ...domain.FeedItem) []domain.FeedItem {
	for _, item := range incoming {
		items = Merge(items, item)
	}
	return items
}

func insertSorted(items []domain.FeedItem, item domain.FeedItem) []domain.FeedItem {
	items = append(items, item)
	SortByIDDesc(items)
	return items
}

// SortByIDDesc сортирует записи по убыванию id (сначала новые).
func SortByIDDesc(items []domain.FeedItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID > items[j].ID })
}

// Dedupe оставляет первую запись для каждого id и сортирует результат.
func Dedupe(items []domain.FeedItem) []domain.FeedItem {
	seen := make(map[int64]struct{}, len(items))
	out := make([]domain.FeedItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	SortByIDDesc(out)
	return out
}

func sameContent(a, b domain.FeedItem) bool {
	return a.Title == b.Title && a.Content == b.Content && a.OwnerKey() == b.OwnerKey()
}
