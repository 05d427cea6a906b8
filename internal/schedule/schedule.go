// Package schedule implements weekly recurring time-of-day windows.
//
// Days use ISO numbering (1=Monday .. 7=Sunday). A window whose start is
// later than its end spans midnight: its evening part belongs to the
// scheduled day and its post-midnight part to the following day.
//
// All arithmetic assumes a calendar day of exactly 1440 minutes. Across a
// daylight-saving transition a computed boundary can be off by up to an
// hour; callers that arm timers from UntilNextBoundary cap the delay so the
// next tick corrects itself.
package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	daysPerWeek   = 7
	// lookahead is today plus a full week.
	lookahead = daysPerWeek + 1
)

// Schedule is a weekly recurring window.
type Schedule struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Days    []int  `json:"days" yaml:"days,flow"`
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hours   int
	Minutes int
}

// Of returns minutes since midnight.
func (c Clock) Of() int { return c.Hours*60 + c.Minutes }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hours, c.Minutes) }

// ParseTime parses "HH:MM" (24h).
func ParseTime(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return Clock{}, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("time %q: hours out of range", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("time %q: minutes out of range", s)
	}
	return Clock{Hours: h, Minutes: m}, nil
}

// window is a parsed schedule in minutes.
type window struct {
	start, end int
	days       [daysPerWeek + 1]bool // index by ISO weekday
}

func (w window) overnight() bool { return w.start >= w.end }

func parse(s Schedule) (window, bool) {
	start, err := ParseTime(s.Start)
	if err != nil {
		return window{}, false
	}
	end, err := ParseTime(s.End)
	if err != nil {
		return window{}, false
	}
	w := window{start: start.Of(), end: end.Of()}
	if w.start == w.end {
		return window{}, false
	}
	for _, d := range s.Days {
		if d >= 1 && d <= daysPerWeek {
			w.days[d] = true
		}
	}
	return w, true
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// shiftDay moves an ISO weekday by offset days.
func shiftDay(day, offset int) int {
	return ((day-1+offset)%daysPerWeek+daysPerWeek)%daysPerWeek + 1
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// IsActive reports whether an enabled schedule covers now.
// Malformed schedules are never active.
func IsActive(s Schedule, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	w, ok := parse(s)
	if !ok {
		return false
	}
	today := ISOWeekday(now)
	cur := minuteOfDay(now)
	if !w.overnight() {
		return w.days[today] && w.start <= cur && cur < w.end
	}
	if w.days[today] && cur >= w.start {
		return true
	}
	return w.days[shiftDay(today, -1)] && cur < w.end
}

// UntilNextBoundary returns the delay until the schedule next opens or
// closes. ok is false when the schedule has no boundary at all (disabled,
// malformed, or no days).
func UntilNextBoundary(s Schedule, now time.Time) (d time.Duration, ok bool) {
	if !s.Enabled {
		return 0, false
	}
	w, valid := parse(s)
	if !valid {
		return 0, false
	}
	today := ISOWeekday(now)
	// position within today, in seconds
	pos := minuteOfDay(now)*60 + now.Second()
	nanos := time.Duration(now.Nanosecond())

	best := -1
	consider := func(minute int) {
		off := minute*60 - pos
		if off > 0 && (best < 0 || off < best) {
			best = off
		}
	}
	// Day -1 catches yesterday's overnight window closing today.
	for offset := -1; offset < lookahead; offset++ {
		if !w.days[shiftDay(today, offset)] {
			continue
		}
		base := offset * MinutesPerDay
		consider(base + w.start)
		if w.overnight() {
			consider(base + MinutesPerDay + w.end)
		} else {
			consider(base + w.end)
		}
	}
	if best < 0 {
		return 0, false
	}
	return time.Duration(best)*time.Second - nanos, true
}

// segment is a half-open minute interval on one weekday.
type segment struct {
	day        int
	start, end int
}

func (w window) segments() []segment {
	var out []segment
	for day := 1; day <= daysPerWeek; day++ {
		if !w.days[day] {
			continue
		}
		if !w.overnight() {
			out = append(out, segment{day, w.start, w.end})
			continue
		}
		out = append(out,
			segment{day, w.start, MinutesPerDay},
			segment{day, 0, w.end},
			segment{shiftDay(day, 1), 0, w.end},
		)
	}
	return out
}

// Overlap reports whether the two windows intersect. Every segment of
// either window, including an overnight window's [0,end) part, is compared
// on the days both schedules share. The [0,end) part is also compared on
// the day after each scheduled day. The relation is symmetric. The Enabled
// flag is not consulted.
func Overlap(a, b Schedule) bool {
	wa, ok := parse(a)
	if !ok {
		return false
	}
	wb, ok := parse(b)
	if !ok {
		return false
	}
	sb := wb.segments()
	for _, x := range wa.segments() {
		for _, y := range sb {
			if x.day == y.day && x.start < y.end && y.start < x.end {
				return true
			}
		}
	}
	return false
}

// ValidationError describes one problem with a schedule field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

// Validate returns every structural problem found in s.
func Validate(s Schedule) []ValidationError {
	var errs []ValidationError
	start, startErr := ParseTime(s.Start)
	if startErr != nil {
		errs = append(errs, ValidationError{"start", startErr.Error()})
	}
	end, endErr := ParseTime(s.End)
	if endErr != nil {
		errs = append(errs, ValidationError{"end", endErr.Error()})
	}
	if startErr == nil && endErr == nil && start == end {
		errs = append(errs, ValidationError{"end", "must differ from start"})
	}
	seen := map[int]bool{}
	for _, d := range s.Days {
		if d < 1 || d > daysPerWeek {
			errs = append(errs, ValidationError{"days", fmt.Sprintf("day %d out of range 1..7", d)})
			continue
		}
		if seen[d] {
			errs = append(errs, ValidationError{"days", fmt.Sprintf("day %d listed twice", d)})
		}
		seen[d] = true
	}
	if s.Enabled && len(seen) == 0 {
		errs = append(errs, ValidationError{"days", "an enabled schedule needs at least one day"})
	}
	return errs
}

// Normalize returns a copy with sorted, de-duplicated days.
func Normalize(s Schedule) Schedule {
	days := slices.Clone(s.Days)
	slices.Sort(days)
	s.Days = slices.Compact(days)
	return s
}
