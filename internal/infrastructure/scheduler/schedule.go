package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EverySchedule fires at a fixed interval after the previous run.
type EverySchedule struct {
	Interval time.Duration
}

// Every returns a fixed-interval schedule.
func Every(d time.Duration) *EverySchedule {
	return &EverySchedule{Interval: d}
}

func (s *EverySchedule) Next(t time.Time) time.Time { return t.Add(s.Interval) }

func (s *EverySchedule) String() string { return "@every " + s.Interval.String() }

// cronField describes one position of a five-field cron expression.
type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 6},
}

// CronSchedule is a parsed "minute hour day-of-month month day-of-week"
// expression. Each field is a bit set of accepted values. A time matches when
// every field matches, including both day fields.
//
// Accepted field syntax: "*", "n", "a-b", "*/s", "a-b/s", "n/s" and
// comma-separated lists of those.
type CronSchedule struct {
	raw  string
	sets [5]uint64
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (*CronSchedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("cron %q: want %d fields, got %d", expr, len(cronFields), len(parts))
	}
	cs := &CronSchedule{raw: strings.Join(parts, " ")}
	for i, f := range cronFields {
		set, err := f.parse(parts[i])
		if err != nil {
			return nil, fmt.Errorf("cron %q: %s: %w", expr, f.name, err)
		}
		cs.sets[i] = set
	}
	return cs, nil
}

func (f cronField) parse(s string) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(s, ",") {
		bitsOf, err := f.parseItem(item)
		if err != nil {
			return 0, err
		}
		set |= bitsOf
	}
	return set, nil
}

func (f cronField) parseItem(item string) (uint64, error) {
	rangePart, stepPart, hasStep := strings.Cut(item, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepPart)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad step %q", stepPart)
		}
		step = n
	}

	lo, hi := f.min, f.max
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = f.value(a); err != nil {
			return 0, err
		}
		if hi, err = f.value(b); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("empty range %q", rangePart)
		}
	default:
		v, err := f.value(rangePart)
		if err != nil {
			return 0, err
		}
		lo = v
		if !hasStep {
			hi = v
		}
	}

	var set uint64
	for v := lo; v <= hi; v += step {
		set |= 1 << uint(v)
	}
	return set, nil
}

func (f cronField) value(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if v < f.min || v > f.max {
		return 0, fmt.Errorf("%d outside %d-%d", v, f.min, f.max)
	}
	return v, nil
}

func (c *CronSchedule) String() string { return c.raw }

// Next returns the first matching minute strictly after t, in t's location.
// It returns the zero time when nothing matches within five years, which only
// happens for impossible dates such as February 30.
func (c *CronSchedule) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !c.has(3, int(t.Month())) || !c.has(2, t.Day()) || !c.has(4, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !c.has(1, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !c.has(0, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (c *CronSchedule) has(field, v int) bool {
	return c.sets[field]&(1<<uint(v)) != 0
}

// ParseSchedule accepts "@every <duration>" (at least one second) or a
// five-field cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	rest, ok := strings.CutPrefix(expr, "@every ")
	if !ok {
		cs, err := ParseCron(expr)
		if err != nil {
			return nil, err
		}
		return cs, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(rest))
	if err != nil {
		return nil, fmt.Errorf("interval %q: %w", rest, err)
	}
	if d < time.Second {
		return nil, fmt.Errorf("interval %s is shorter than one second", d)
	}
	return Every(d), nil
}
