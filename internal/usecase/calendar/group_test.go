package calendar

import (
	"reflect"
	"testing"
	"time"

	"masjid-feed/internal/domain"
)

func at(id int64, ts time.Time) domain.FeedItem {
	return domain.FeedItem{ID: id, Kind: domain.KindKajian, EventAt: &ts}
}

func TestGroupByDaySortsAscending(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	day := func(h int) time.Time { return time.Date(2025, 3, 5, h, 0, 0, 0, loc) }
	items := []domain.FeedItem{at(1, day(19)), at(2, day(5)), at(3, day(12))}

	groups := GroupByDay(items, loc)
	if len(groups) != 1 {
		t.Fatalf("ожидали одну группу, получили %d", len(groups))
	}
	if got := filteredIDs(groups["2025-03-05"]); !reflect.DeepEqual(got, []int64{2, 3, 1}) {
		t.Fatalf("ожидали [2 3 1], получили %v", got)
	}
}

func TestGroupByDayStableAndLocal(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	same := time.Date(2025, 3, 5, 9, 0, 0, 0, loc)
	lateUTC := time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC)
	items := []domain.FeedItem{at(7, same), at(4, same), at(9, same), at(1, lateUTC)}
	items = append(items, domain.FeedItem{ID: 2, Kind: domain.KindKajian})

	groups := GroupByDay(items, loc)
	if got := filteredIDs(groups["2025-03-05"]); !reflect.DeepEqual(got, []int64{7, 4, 9}) {
		t.Fatalf("равные eventAt сохраняют исходный порядок: %v", got)
	}
	if got := filteredIDs(groups["2025-03-06"]); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("событие должно попасть в локальный день: %v", got)
	}
}

func TestDaysWithEvents(t *testing.T) {
	loc := time.UTC
	grid := BuildMonthGrid(time.Date(2025, time.March, 1, 0, 0, 0, 0, loc), time.Sunday)
	groups := GroupByDay([]domain.FeedItem{
		at(1, time.Date(2025, 3, 1, 8, 0, 0, 0, loc)),
		at(2, time.Date(2025, 3, 1, 9, 0, 0, 0, loc)),
		at(3, time.Date(2025, 2, 23, 9, 0, 0, 0, loc)),
	}, loc)
	counts := DaysWithEvents(grid, groups)
	if len(counts) != len(grid) {
		t.Fatalf("ожидали счётчик на каждую ячейку")
	}
	if counts[0] != 1 || counts[6] != 2 || counts[7] != 0 {
		t.Fatalf("неожиданные счётчики: %v", counts[:8])
	}
}
