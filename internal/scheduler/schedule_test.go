package scheduler

import (
	"testing"
	"time"

	"bump_go/models"
)

// TestParseInterval проверяет разбор интервальных выражений.
func TestParseInterval(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"every 3 minutes", 3 * time.Minute},
		{"every 90 seconds", 90 * time.Second},
		{"every 2 hours", 2 * time.Hour},
		{"every hour", time.Hour},
		{"every 1 day", 24 * time.Hour},
	}
	for _, c := range cases {
		s, err := Parse(models.ScheduleInterval, c.value)
		if err != nil {
			t.Fatalf("%q: %v", c.value, err)
		}
		if s.Interval != c.want {
			t.Fatalf("%q: ожидалось %s, получено %s", c.value, c.want, s.Interval)
		}
	}
}

// TestParseInvalid проверяет отклонение некорректных расписаний.
func TestParseInvalid(t *testing.T) {
	cases := []struct{ kind, value string }{
		{models.ScheduleInterval, "3 minutes"},
		{models.ScheduleInterval, "every 0 minutes"},
		{models.ScheduleInterval, "every 5 parsecs"},
		{models.ScheduleDaily, "25:99"},
		{models.ScheduleWeekly, "Someday 14:30"},
		{models.ScheduleWeekly, "14:30"},
		{models.ScheduleHourly, "-2"},
		{"monthly", "1"},
	}
	for _, c := range cases {
		if _, err := Parse(c.kind, c.value); err == nil {
			t.Fatalf("расписание %s %q должно отклоняться", c.kind, c.value)
		}
	}
}

// TestNextDriftFree проверяет главное свойство пересчёта: следующий запуск
// лежит на сетке anchor + k*interval, а не отсчитывается от момента завершения.
func TestNextDriftFree(t *testing.T) {
	s, err := Parse(models.ScheduleInterval, "every 1 hours")
	if err != nil {
		t.Fatalf("разбор завершился ошибкой: %v", err)
	}

	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	// Прогон закончился в 12:34:56 — следующий запуск всё равно в 13:00
	now := time.Date(2026, 1, 1, 12, 34, 56, 0, time.UTC)

	next := s.Next(anchor, now)
	want := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("ожидалось %s, получено %s", want, next)
	}
}

// TestNextBeforeAnchor проверяет, что до якоря запуск назначается на сам якорь.
func TestNextBeforeAnchor(t *testing.T) {
	s, _ := Parse(models.ScheduleInterval, "every 10 minutes")
	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := anchor.Add(-time.Hour)

	if next := s.Next(anchor, now); !next.Equal(anchor) {
		t.Fatalf("ожидался якорь %s, получено %s", anchor, next)
	}
}

// TestNextExactGridPoint проверяет, что запуск ровно в точке сетки
// переносится на следующую точку, а не повторяется.
func TestNextExactGridPoint(t *testing.T) {
	s, _ := Parse(models.ScheduleInterval, "every 10 minutes")
	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := anchor.Add(30 * time.Minute)

	next := s.Next(anchor, now)
	want := anchor.Add(40 * time.Minute)
	if !next.Equal(want) {
		t.Fatalf("ожидалось %s, получено %s", want, next)
	}
}

// TestNextDaily проверяет дневное расписание: сегодня, если время ещё не
// наступило, иначе завтра.
func TestNextDaily(t *testing.T) {
	s, err := Parse(models.ScheduleDaily, "14:30")
	if err != nil {
		t.Fatalf("разбор завершился ошибкой: %v", err)
	}

	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if next := s.Next(anchor, morning); !next.Equal(time.Date(2026, 1, 1, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("утром следующий запуск должен быть сегодня в 14:30, получено %s", next)
	}

	evening := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	if next := s.Next(anchor, evening); !next.Equal(time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("вечером следующий запуск должен быть завтра в 14:30, получено %s", next)
	}
}

// TestNextWeekly проверяет недельное расписание.
func TestNextWeekly(t *testing.T) {
	s, err := Parse(models.ScheduleWeekly, "Monday 09:00")
	if err != nil {
		t.Fatalf("разбор завершился ошибкой: %v", err)
	}

	// 1 января 2026 — четверг; ближайший понедельник — 5 января
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next := s.Next(time.Time{}, now)
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("ожидалось %s, получено %s", want, next)
	}
}

// TestImmediateRunsOnce проверяет, что однократная кампания стартует сразу
// и не получает следующего запуска.
func TestImmediateRunsOnce(t *testing.T) {
	s, _ := Parse(models.ScheduleImmediate, "")
	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	if first := s.First(anchor); !first.Equal(anchor) {
		t.Fatalf("однократная кампания должна стартовать сразу, получено %s", first)
	}
	if next := s.Next(anchor, anchor.Add(time.Minute)); !next.IsZero() {
		t.Fatalf("однократная кампания не перепланируется, получено %s", next)
	}
}

// TestFirstIntervalImmediate проверяет, что интервальные кампании
// выполняют первый запуск сразу после создания.
func TestFirstIntervalImmediate(t *testing.T) {
	s, _ := Parse(models.ScheduleInterval, "every 3 minutes")
	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	if first := s.First(anchor); !first.Equal(anchor) {
		t.Fatalf("первый запуск должен совпадать с созданием, получено %s", first)
	}
}
