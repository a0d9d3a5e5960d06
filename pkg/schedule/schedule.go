package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next run time after from.
type Schedule interface {
	Next(from time.Time) time.Time
}

// Option configures calendar schedules.
type Option func(*calendar)

// In evaluates a calendar schedule in loc instead of UTC.
func In(loc *time.Location) Option {
	return func(c *calendar) {
		if loc != nil {
			c.loc = loc
		}
	}
}

type calendar struct {
	hour   int
	minute int
	loc    *time.Location
}

func newCalendar(hour, minute int, opts []Option) calendar {
	c := calendar{hour: hour, minute: minute, loc: time.UTC}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// everySchedule runs at fixed intervals.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule that runs at fixed intervals. It panics on a
// non-positive interval.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic(fmt.Sprintf("schedule: interval must be positive, got %s", d))
	}
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

// dailySchedule runs at a specific time each day.
type dailySchedule struct {
	calendar
}

// Daily creates a schedule that runs at hour:minute each day, UTC unless In is given.
func Daily(hour, minute int, opts ...Option) Schedule {
	return &dailySchedule{newCalendar(hour, minute, opts)}
}

func (s *dailySchedule) Next(from time.Time) time.Time {
	from = from.In(s.loc)
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// weeklySchedule runs at a specific day and time each week.
type weeklySchedule struct {
	calendar
	day time.Weekday
}

// Weekly creates a schedule that runs on day at hour:minute each week.
func Weekly(day time.Weekday, hour, minute int, opts ...Option) Schedule {
	return &weeklySchedule{calendar: newCalendar(hour, minute, opts), day: day}
}

func (s *weeklySchedule) Next(from time.Time) time.Time {
	from = from.In(s.loc)

	daysUntil := int(s.day - from.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}

	next := time.Date(from.Year(), from.Month(), from.Day()+daysUntil, s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 5m".
func ParseCron(expr string) (Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// Cron is ParseCron for expressions known to be valid. It panics otherwise.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err.Error())
	}
	return s
}
