package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bump_go/models"

	"github.com/robfig/cron/v3"
)

// weekdays сопоставляет названия дней недели номерам cron (0 — воскресенье).
var weekdays = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// Schedule — разобранный дескриптор расписания кампании.
// Дневные и недельные расписания считаются через cron, интервальные — арифметикой
// от якоря, чтобы момент запуска не дрейфовал от времени фактического выполнения.
type Schedule struct {
	Kind     string
	Interval time.Duration
	cron     cron.Schedule
}

// Parse разбирает вид и значение расписания. Форматы значений:
// daily — "14:30", weekly — "Monday 14:30", hourly — число часов (пусто = 1),
// interval — "every 3 minutes", immediate — пусто.
func Parse(kind, value string) (*Schedule, error) {
	switch kind {
	case models.ScheduleImmediate:
		return &Schedule{Kind: kind}, nil

	case models.ScheduleDaily:
		tm, err := time.Parse("15:04", strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("daily schedule %q: %w", value, err)
		}
		cs, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", tm.Minute(), tm.Hour()))
		if err != nil {
			return nil, err
		}
		return &Schedule{Kind: kind, cron: cs}, nil

	case models.ScheduleWeekly:
		parts := strings.Fields(value)
		if len(parts) != 2 {
			return nil, fmt.Errorf("weekly schedule %q: ожидается \"Monday 14:30\"", value)
		}
		day, ok := weekdays[strings.ToLower(parts[0])]
		if !ok {
			return nil, fmt.Errorf("weekly schedule %q: неизвестный день недели", value)
		}
		tm, err := time.Parse("15:04", parts[1])
		if err != nil {
			return nil, fmt.Errorf("weekly schedule %q: %w", value, err)
		}
		cs, err := cron.ParseStandard(fmt.Sprintf("%d %d * * %d", tm.Minute(), tm.Hour(), day))
		if err != nil {
			return nil, err
		}
		return &Schedule{Kind: kind, cron: cs}, nil

	case models.ScheduleHourly:
		hours := 1
		if v := strings.TrimSpace(value); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("hourly schedule %q: ожидается число часов", value)
			}
			hours = n
		}
		return &Schedule{Kind: kind, Interval: time.Duration(hours) * time.Hour}, nil

	case models.ScheduleInterval:
		d, err := parseInterval(value)
		if err != nil {
			return nil, err
		}
		return &Schedule{Kind: kind, Interval: d}, nil
	}
	return nil, fmt.Errorf("неизвестный вид расписания %q", kind)
}

// parseInterval разбирает выражения вида "every 3 minutes" или "every hour".
func parseInterval(value string) (time.Duration, error) {
	parts := strings.Fields(strings.ToLower(value))
	if len(parts) < 2 || parts[0] != "every" {
		return 0, fmt.Errorf("interval schedule %q: ожидается \"every N minutes\"", value)
	}

	n := 1
	unit := parts[1]
	if len(parts) == 3 {
		v, err := strconv.Atoi(parts[1])
		if err != nil || v < 1 {
			return 0, fmt.Errorf("interval schedule %q: некорректное число", value)
		}
		n = v
		unit = parts[2]
	}

	switch strings.TrimSuffix(unit, "s") {
	case "second":
		return time.Duration(n) * time.Second, nil
	case "minute":
		return time.Duration(n) * time.Minute, nil
	case "hour":
		return time.Duration(n) * time.Hour, nil
	case "day":
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("interval schedule %q: неизвестная единица времени", value)
}

// First возвращает момент первого запуска новой кампании.
// Интервальные кампании стартуют сразу, календарные ждут ближайшего слота.
func (s *Schedule) First(anchor time.Time) time.Time {
	switch s.Kind {
	case models.ScheduleDaily, models.ScheduleWeekly:
		return s.cron.Next(anchor)
	default:
		return anchor
	}
}

// Next возвращает следующий запуск строго по сетке расписания.
// Для интервальных видов это anchor + k*interval, а не "сейчас плюс интервал":
// длительность самого прогона не сдвигает будущие запуски.
// Нулевое время означает, что перезапусков больше не будет.
func (s *Schedule) Next(anchor, now time.Time) time.Time {
	switch s.Kind {
	case models.ScheduleImmediate:
		return time.Time{}
	case models.ScheduleDaily, models.ScheduleWeekly:
		return s.cron.Next(now)
	default:
		if !now.After(anchor) {
			return anchor
		}
		k := now.Sub(anchor)/s.Interval + 1
		return anchor.Add(k * s.Interval)
	}
}
