package calendar

import (
	"sort"
	"time"

	"masjid-feed/internal/domain"
)

// GroupByDay раскладывает события по ключу дня в loc.
// Внутри дня события упорядочены по eventAt; равные eventAt сохраняют исходный порядок.
func GroupByDay(items []domain.FeedItem, loc *time.Location) map[string][]domain.FeedItem {
	if loc == nil {
		loc = time.Local
	}
	groups := make(map[string][]domain.FeedItem)
	for _, item := range items {
		if item.EventAt == nil {
			continue
		}
		key := DateKey(item.EventAt.In(loc))
		groups[key] = append(groups[key], item)
	}
	for _, day := range groups {
		sort.SliceStable(day, func(i, j int) bool { return day[i].EventAt.Before(*day[j].EventAt) })
	}
	return groups
}

// DaysWithEvents возвращает число событий для каждой ячейки сетки (в том же порядке).
func DaysWithEvents(grid []domain.CalendarCell, groups map[string][]domain.FeedItem) []int {
	counts := make([]int, len(grid))
	for i, cell := range grid {
		counts[i] = len(groups[cell.DateKey])
	}
	return counts
}
