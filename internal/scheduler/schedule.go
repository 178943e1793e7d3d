package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ScheduleKind tags the supported interval cadences
type ScheduleKind int

const (
	ScheduleUnknown ScheduleKind = iota
	ScheduleEvery
	ScheduleDailyAt
	ScheduleWeeklyAt
	ScheduleMonthlyOnDay
)

// Schedule is a typed descriptor parsed once from a six-field interval
// expression. Next-run computation is a pure function of the descriptor
// and a reference time.
type Schedule struct {
	Kind    ScheduleKind
	Minutes int          // ScheduleEvery: interval in minutes
	Hour    int          // fixed hour for daily/weekly/monthly
	Weekday time.Weekday // ScheduleWeeklyAt
	Day     int          // ScheduleMonthlyOnDay
}

// ParseSchedule interprets a six-field expression
// (seconds minutes hours day month weekday) covering a fixed vocabulary
// of literal patterns. Anything else yields ScheduleUnknown, which falls
// back to one hour from now.
func ParseSchedule(expr string) Schedule {
	fields := strings.Fields(expr)
	if len(fields) != 6 || fields[0] != "0" {
		return Schedule{Kind: ScheduleUnknown}
	}

	minute, hour, day, month, weekday := fields[1], fields[2], fields[3], fields[4], fields[5]

	// every-N-minutes: "0 */N * * * *"
	if strings.HasPrefix(minute, "*/") && hour == "*" && day == "*" && month == "*" && weekday == "*" {
		n, err := strconv.Atoi(minute[2:])
		if err != nil || n <= 0 || n >= 60 {
			return Schedule{Kind: ScheduleUnknown}
		}
		return Schedule{Kind: ScheduleEvery, Minutes: n}
	}

	if minute != "0" || month != "*" {
		return Schedule{Kind: ScheduleUnknown}
	}

	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return Schedule{Kind: ScheduleUnknown}
	}

	// daily-at-hour: "0 0 H * * *"
	if day == "*" && weekday == "*" {
		return Schedule{Kind: ScheduleDailyAt, Hour: h}
	}

	// weekly-at-weekday+hour: "0 0 H * * W"
	if day == "*" {
		w, err := strconv.Atoi(weekday)
		if err != nil || w < 0 || w > 6 {
			return Schedule{Kind: ScheduleUnknown}
		}
		return Schedule{Kind: ScheduleWeeklyAt, Hour: h, Weekday: time.Weekday(w)}
	}

	// monthly-on-day-at-hour: "0 0 H D * *"
	if weekday == "*" {
		d, err := strconv.Atoi(day)
		if err != nil || d < 1 || d > 28 {
			return Schedule{Kind: ScheduleUnknown}
		}
		return Schedule{Kind: ScheduleMonthlyOnDay, Hour: h, Day: d}
	}

	return Schedule{Kind: ScheduleUnknown}
}

// quantum is the minimal advance for the cadence, used when a naive
// computation lands in the past.
func (s Schedule) quantum() time.Duration {
	switch s.Kind {
	case ScheduleEvery:
		return time.Duration(s.Minutes) * time.Minute
	default:
		return time.Hour
	}
}

// NextRun returns the next fire time strictly after now
func (s Schedule) NextRun(now time.Time) time.Time {
	var next time.Time

	switch s.Kind {
	case ScheduleEvery:
		base := now.Truncate(time.Minute)
		step := ((base.Minute() / s.Minutes) + 1) * s.Minutes
		next = base.Add(time.Duration(step-base.Minute()) * time.Minute)

	case ScheduleDailyAt:
		next = time.Date(now.Year(), now.Month(), now.Day(), s.Hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

	case ScheduleWeeklyAt:
		next = time.Date(now.Year(), now.Month(), now.Day(), s.Hour, 0, 0, 0, now.Location())
		days := (int(s.Weekday) - int(now.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}

	case ScheduleMonthlyOnDay:
		next = time.Date(now.Year(), now.Month(), s.Day, s.Hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 1, 0)
		}

	default:
		return now.Add(time.Hour)
	}

	// Past-correction by one minimal quantum rather than recomputing
	for !next.After(now) {
		next = next.Add(s.quantum())
	}
	return next
}
