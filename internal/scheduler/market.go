package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Clock is a wall-clock time of day at minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(value string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// MarketHours describes the exchange trading window.
type MarketHours struct {
	Location *time.Location
	Open     Clock
	Close    Clock
	Weekdays []time.Weekday
}

// DefaultWeekdays is Monday through Friday.
var DefaultWeekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// IsOpen reports whether t falls inside the window, both ends inclusive at
// minute resolution.
func (m MarketHours) IsOpen(t time.Time) bool {
	loc := m.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	weekdays := m.Weekdays
	if len(weekdays) == 0 {
		weekdays = DefaultWeekdays
	}
	tradingDay := false
	for _, d := range weekdays {
		if local.Weekday() == d {
			tradingDay = true
			break
		}
	}
	if !tradingDay {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= m.Open.minutes() && minute <= m.Close.minutes()
}

// Gate adapts the window to a scheduler gate.
func (m MarketHours) Gate() Gate {
	return m.IsOpen
}

// ParseWeekdays parses names such as "mon" or "Monday".
func ParseWeekdays(values []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(values))
	for _, v := range values {
		name := strings.ToLower(strings.TrimSpace(v))
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			full := strings.ToLower(d.String())
			if name == full || name == full[:3] {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("invalid weekday %q", v)
		}
	}
	return out, nil
}
