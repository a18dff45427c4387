package calendar

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestBuildMonthGridCompleteness(t *testing.T) {
	months := []time.Time{
		time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
	}
	wantDays := []int{31, 29, 28, 31}
	for _, firstWeekday := range []time.Weekday{time.Sunday, time.Monday, time.Saturday} {
		for i, month := range months {
			cells := BuildMonthGrid(month, firstWeekday)
			if len(cells)%7 != 0 {
				t.Fatalf("%s/%s: ожидали целое число недель, получили %d ячеек", month.Month(), firstWeekday, len(cells))
			}
			if cells[0].Date.Weekday() != firstWeekday {
				t.Fatalf("%s/%s: первая ячейка выпала на %s", month.Month(), firstWeekday, cells[0].Date.Weekday())
			}
			if last := cells[len(cells)-1].Date.Weekday(); last != (firstWeekday+6)%7 {
				t.Fatalf("%s/%s: последняя ячейка выпала на %s", month.Month(), firstWeekday, last)
			}
			seen := make(map[int]int)
			for _, cell := range cells {
				if cell.InCurrentMonth {
					if cell.Date.Month() != month.Month() {
						t.Fatalf("ячейка %s помечена как текущий месяц", cell.DateKey)
					}
					seen[cell.Date.Day()]++
				}
			}
			if len(seen) != wantDays[i] {
				t.Fatalf("%s: ожидали %d дней месяца, получили %d", month.Month(), wantDays[i], len(seen))
			}
			for day := 1; day <= wantDays[i]; day++ {
				if seen[day] != 1 {
					t.Fatalf("%s: день %d встречается %d раз", month.Month(), day, seen[day])
				}
			}
		}
	}
}

func TestBuildMonthGridBoundaries(t *testing.T) {
	// Март 2025 начинается в субботу и заканчивается в понедельник.
	cells := BuildMonthGrid(time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), time.Sunday)
	if len(cells) != 42 {
		t.Fatalf("ожидали 6 недель, получили %d ячеек", len(cells))
	}
	if cells[0].DateKey != "2025-02-23" || cells[0].InCurrentMonth {
		t.Fatalf("неожиданная первая ячейка: %+v", cells[0])
	}
	if cells[6].DateKey != "2025-03-01" || !cells[6].InCurrentMonth {
		t.Fatalf("неожиданная ячейка 1 марта: %+v", cells[6])
	}
	if cells[41].DateKey != "2025-04-05" {
		t.Fatalf("неожиданная последняя ячейка: %+v", cells[41])
	}

	// Февраль 2026 начинается в воскресенье: ровно четыре недели.
	if got := len(BuildMonthGrid(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), time.Sunday)); got != 28 {
		t.Fatalf("ожидали 28 ячеек, получили %d", got)
	}
}

func TestBuildMonthGridAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("нет базы часовых поясов: %v", err)
	}
	cells := BuildMonthGrid(time.Date(2025, time.March, 1, 0, 0, 0, 0, loc), time.Monday)
	for i := 1; i < len(cells); i++ {
		prev, cur := cells[i-1].Date, cells[i].Date
		if cur.YearDay()-prev.YearDay() != 1 && cur.Year() == prev.Year() {
			t.Fatalf("дни идут не подряд: %s -> %s", cells[i-1].DateKey, cells[i].DateKey)
		}
		if cur.Hour() != 0 {
			t.Fatalf("ожидали полночь, получили %s", cur)
		}
	}
}

func TestDateKey(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	evening := time.Date(2025, 3, 5, 20, 0, 0, 0, time.UTC)
	if got := DateKey(evening.In(loc)); got != "2025-03-06" {
		t.Fatalf("ожидали локальный день 2025-03-06, получили %s", got)
	}
	if got := DateKey(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)); got != "2025-01-02" {
		t.Fatalf("ожидали дополнение нулями, получили %s", got)
	}
}

func TestParseMonth(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	got, err := ParseMonth("2025-02", time.Time{}, loc)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.February || got.Day() != 1 || got.Location() != loc {
		t.Fatalf("неожиданный месяц: %s", got)
	}
	now := time.Date(2025, 6, 30, 20, 0, 0, 0, time.UTC)
	got, _ = ParseMonth("", now, loc)
	if got.Month() != time.July {
		t.Fatalf("ожидали текущий месяц в локальной зоне, получили %s", got.Month())
	}
	if _, err := ParseMonth("2025/02", now, loc); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("ожидали ErrInvalidMonth, получили %v", err)
	}
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{"": time.Sunday, "1": time.Monday, "monday": time.Monday, "Sat": time.Saturday}
	for raw, want := range cases {
		got, err := ParseWeekday(raw)
		if err != nil || got != want {
			t.Fatalf("%q: ожидали %s, получили %s (%v)", raw, want, got, err)
		}
	}
	if _, err := ParseWeekday("senin"); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного дня")
	}
}

func TestLoadLocation(t *testing.T) {
	for _, raw := range []string{"Asia/Jakarta", "asia/jakarta", " Asia/Jakarta "} {
		loc, err := LoadLocation(raw)
		if err != nil {
			t.Fatalf("%q: не ожидали ошибку: %v", raw, err)
		}
		if loc.String() != "Asia/Jakarta" {
			t.Fatalf("%q: ожидали Asia/Jakarta, получили %s", raw, loc)
		}
	}
	if _, err := LoadLocation("Mars/Olympus"); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone, получили %v", err)
	}
	if _, err := LoadLocation(""); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone для пустой строки")
	}
}
