package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/userdata"
)

// TimePeriod is a named daily window read from the user's schedules.
type TimePeriod = userdata.TimePeriod

// DateTimeLayout is the wire format of sampled send times.
const DateTimeLayout = "2006-01-02 15:04"

// maxLookaheadDays bounds the search for the next applicable day.
const maxLookaheadDays = 7

var (
	errMissingWindow   = errors.New("period has no start_time/end_time")
	errInvertedWindow  = errors.New("period end_time is before start_time")
	errNoApplicableDay = errors.New("period applies on no upcoming day")
)

// parseHHMM parses "HH:MM" (24h) into hour and minute.
func parseHHMM(s string) (int, int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh, mm, nil
}

func atClock(day time.Time, hh, mm int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, hh, mm, 0, 0, day.Location())
}

// window is a period resolved onto one calendar day.
type window struct {
	start time.Time
	end   time.Time
}

// periodWindow resolves p's clock range onto day.
func periodWindow(p TimePeriod, day time.Time) (window, error) {
	if strings.TrimSpace(p.StartTime) == "" || strings.TrimSpace(p.EndTime) == "" {
		return window{}, errMissingWindow
	}
	sh, sm, err := parseHHMM(p.StartTime)
	if err != nil {
		return window{}, err
	}
	eh, em, err := parseHHMM(p.EndTime)
	if err != nil {
		return window{}, err
	}
	w := window{start: atClock(day, sh, sm), end: atClock(day, eh, em)}
	if w.end.Before(w.start) {
		return window{}, errInvertedWindow
	}
	return w, nil
}

// nextWindow finds the first applicable day, starting today, whose window
// still has a whole minute left after now. The returned window is clipped
// so it never starts before the next minute boundary.
func nextWindow(p TimePeriod, now time.Time) (window, error) {
	earliest := now.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i <= maxLookaheadDays; i++ {
		day := now.AddDate(0, 0, i)
		if !userdata.DaysInclude(p.Days, day.Weekday()) {
			continue
		}
		w, err := periodWindow(p, day)
		if err != nil {
			return window{}, err
		}
		if w.start.Before(earliest) {
			w.start = earliest
		}
		if w.end.Before(w.start) {
			continue
		}
		return w, nil
	}
	return window{}, errNoApplicableDay
}

// sampleWindow draws a minute uniformly from [w.start, w.end].
func sampleWindow(w window, rng RandSource) time.Time {
	minutes := int(w.end.Sub(w.start) / time.Minute)
	return w.start.Add(time.Duration(rng.Intn(minutes+1)) * time.Minute)
}

// nextExactTime returns the next applicable occurrence of p's start time
// strictly after now.
func nextExactTime(p TimePeriod, now time.Time) (time.Time, error) {
	if strings.TrimSpace(p.StartTime) == "" {
		return time.Time{}, errMissingWindow
	}
	hh, mm, err := parseHHMM(p.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	for i := 0; i <= maxLookaheadDays; i++ {
		day := now.AddDate(0, 0, i)
		if !userdata.DaysInclude(p.Days, day.Weekday()) {
			continue
		}
		at := atClock(day, hh, mm)
		if at.After(now) {
			return at, nil
		}
	}
	return time.Time{}, errNoApplicableDay
}

// parseReminderTime accepts DateTimeLayout or a bare "HH:MM" (next occurrence).
func parseReminderTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateTimeLayout, s, now.Location()); err == nil {
		return t, nil
	}
	hh, mm, err := parseHHMM(s)
	if err != nil {
		return time.Time{}, err
	}
	at := atClock(now, hh, mm)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}
