package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"masjid-feed/internal/domain"
)

// ErrInvalidMonth возвращается для месяца не в формате YYYY-MM.
var ErrInvalidMonth = errors.New("invalid month")

// DateKey возвращает ключ дня YYYY-MM-DD по настенному времени t.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// BuildMonthGrid строит сетку месяца из целых недель.
// Первая ячейка приходится на firstWeekday не позже 1-го числа, последняя — на конец недели не раньше последнего дня.
func BuildMonthGrid(month time.Time, firstWeekday time.Weekday) []domain.CalendarCell {
	loc := month.Location()
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	lead := (int(first.Weekday()) - int(firstWeekday) + 7) % 7
	trail := (int(firstWeekday) + 6 - int(last.Weekday()) + 7) % 7
	days := lead + last.Day() + trail

	cells := make([]domain.CalendarCell, 0, days)
	start := first.AddDate(0, 0, -lead)
	for i := 0; i < days; i++ {
		// AddDate от полуночи, а не сложение Duration: переход на летнее время не сдвигает день.
		date := start.AddDate(0, 0, i)
		cells = append(cells, domain.CalendarCell{
			DateKey:        DateKey(date),
			Date:           date,
			InCurrentMonth: date.Month() == first.Month() && date.Year() == first.Year(),
		})
	}
	return cells
}

// ParseMonth разбирает YYYY-MM в первое число месяца в loc. Пустая строка — текущий месяц.
func ParseMonth(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now = now.In(loc)
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation("2006-01", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, raw)
	}
	return t, nil
}

// ParseWeekday принимает номер (0 = воскресенье) или английское название дня недели.
func ParseWeekday(raw string) (time.Weekday, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if raw == name || raw == name[:3] || raw == fmt.Sprint(int(d)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", raw)
}
