package model

import (
	"fmt"
	"time"
)

// MinutesPerDay is the length of the TimeOfDay ring.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time of day at minute granularity, counted from midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// TimeOfDayOf returns the time of day of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Add shifts the time of day by d, wrapping around midnight. Sub-minute parts of d are dropped.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	m := (int(t) + int(d/time.Minute)) % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return TimeOfDay(m)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// DailyCron renders a six-field cron spec (seconds first) firing at second 0 of t every day.
func (t TimeOfDay) DailyCron() string {
	return fmt.Sprintf("0 %d %d * * *", t.Minute(), t.Hour())
}

// TradePeriod is one continuous trading period within a day.
type TradePeriod struct {
	Begin TimeOfDay
	End   TimeOfDay
}

// TradingCalendar is the ordered, non-overlapping list of daily trading periods.
type TradingCalendar struct {
	Periods  []TradePeriod
	OpenLead time.Duration // session opens this long before the first period
	CloseLag time.Duration // session closes this long after the last period
}

// NewTradingCalendar validates periods and returns a calendar.
func NewTradingCalendar(periods []TradePeriod, openLead, closeLag time.Duration) (*TradingCalendar, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("trading calendar needs at least one period")
	}
	for i, p := range periods {
		if p.Begin >= p.End {
			return nil, fmt.Errorf("period %d: begin %s is not before end %s", i, p.Begin, p.End)
		}
		if i > 0 && p.Begin < periods[i-1].End {
			return nil, fmt.Errorf("period %d: begin %s overlaps previous period ending %s", i, p.Begin, periods[i-1].End)
		}
	}
	if openLead < 0 || closeLag < 0 {
		return nil, fmt.Errorf("open lead and close lag must not be negative")
	}
	return &TradingCalendar{Periods: periods, OpenLead: openLead, CloseLag: closeLag}, nil
}

// SessionOpen is the instant all stocks start quotation: first begin minus the open lead.
func (c *TradingCalendar) SessionOpen() TimeOfDay {
	return c.Periods[0].Begin.Add(-c.OpenLead)
}

// SessionClose is the instant all stocks end quotation: last end plus the close lag.
func (c *TradingCalendar) SessionClose() TimeOfDay {
	return c.Periods[len(c.Periods)-1].End.Add(c.CloseLag)
}

// DispatchWindow returns the inclusive [begin, end] range in which robots trade.
// It spans the first period's begin to the second period's end (the only
// period's end when just one is configured); gaps between periods and any
// period after the second are not taken into account.
func (c *TradingCalendar) DispatchWindow() (begin, end TimeOfDay) {
	last := 1
	if len(c.Periods) < 2 {
		last = 0
	}
	return c.Periods[0].Begin, c.Periods[last].End
}

// InDispatchWindow reports whether t falls inside DispatchWindow.
func (c *TradingCalendar) InDispatchWindow(t time.Time) bool {
	begin, end := c.DispatchWindow()
	now := TimeOfDayOf(t)
	return begin <= now && now <= end
}
