// Package datetime turns the loosely formatted date and time strings found
// on event listings into absolute start and end instants.
package datetime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default window used when no start time can be read.
const (
	DefaultStartHour = 9
	DefaultEndHour   = 17
)

// Result is the outcome of normalizing one date/time pair. Start and End
// are only meaningful when Success is true.
type Result struct {
	Start   time.Time
	End     time.Time
	Success bool

	// StartDefaulted is set when the 09:00-17:00 window was applied.
	StartDefaulted bool
	// EndDefaulted is set when End was derived as Start plus one hour.
	EndDefaulted bool
	// Overnight is set when End was rolled onto the next day.
	Overnight bool
}

// Normalizer resolves wall-clock times in a fixed location.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer for loc; nil means time.Local.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Location returns the zone results are expressed in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

var (
	weekdayPrefix = regexp.MustCompile(`(?i)^(mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)[a-z]*\.?,?\s+`)
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	spaceRun      = regexp.MustCompile(`\s+`)
	timeSegment   = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(?:([ap])\.?\s*m\b\.?)?`)
	clockInText   = regexp.MustCompile(`\s+\d{1,2}:\d{2}`)
)

var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"1/2/2006",
	"2006-01-02",
}

// dashVariants are separators seen in listings, including UTF-8 dashes
// that were decoded as Windows-1252.
var dashVariants = []string{"â€”", "â€“", "—", "–", "−"}

// Normalize parses dateStr and timeStr into an absolute window.
func (n *Normalizer) Normalize(dateStr, timeStr string) Result {
	year, month, day, ok := parseDate(dateStr)
	if !ok {
		return Result{}
	}

	startSeg, endSeg := splitRange(timeStr)

	sh, sm, ok := parseClock(startSeg)
	if !ok {
		return Result{
			Start:          time.Date(year, month, day, DefaultStartHour, 0, 0, 0, n.loc),
			End:            time.Date(year, month, day, DefaultEndHour, 0, 0, 0, n.loc),
			Success:        true,
			StartDefaulted: true,
		}
	}

	res := Result{
		Start:   time.Date(year, month, day, sh, sm, 0, 0, n.loc),
		Success: true,
	}

	eh, em, ok := parseClock(endSeg)
	if !ok {
		res.End = res.Start.Add(time.Hour)
		res.EndDefaulted = true
		return res
	}

	res.End = time.Date(year, month, day, eh, em, 0, 0, n.loc)
	switch {
	case res.End.Before(res.Start):
		res.End = time.Date(year, month, day+1, eh, em, 0, 0, n.loc)
		res.Overnight = true
	case res.End.Equal(res.Start):
		res.End = res.Start.Add(time.Hour)
		res.EndDefaulted = true
	}
	return res
}

// Normalize is a convenience wrapper around New(loc).Normalize.
func Normalize(dateStr, timeStr string, loc *time.Location) Result {
	return New(loc).Normalize(dateStr, timeStr)
}

func parseDate(s string) (int, time.Month, int, bool) {
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	if s == "" {
		return 0, 0, 0, false
	}
	s = weekdayPrefix.ReplaceAllString(s, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, "Sept ", "Sep ", 1)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), t.Month(), t.Day(), true
		}
	}
	return 0, 0, 0, false
}

// splitRange cuts a time range on its first hyphen after folding dash variants.
func splitRange(s string) (string, string) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range dashVariants {
		s = strings.ReplaceAll(s, d, "-")
	}
	start, end, found := strings.Cut(s, "-")
	if !found {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(start), strings.TrimSpace(end)
}

// parseClock reads "H[:MM][ ](am|pm)" and returns a 24-hour clock.
func parseClock(seg string) (int, int, bool) {
	seg = strings.ToLower(strings.TrimSpace(seg))
	switch seg {
	case "":
		return 0, 0, false
	case "noon":
		return 12, 0, true
	case "midnight":
		return 0, 0, true
	}

	m := timeSegment.FindStringSubmatch(seg)
	if m == nil {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return 0, 0, false
	}

	switch m[3] {
	case "p":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour < 12 {
			hour += 12
		}
	case "a":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

// SplitDateTime separates a combined "date H:MM ..." string at the
// whitespace preceding the first clock time. Without a clock time the whole
// string is the date.
func SplitDateTime(s string) (string, string) {
	s = strings.TrimSpace(s)
	loc := clockInText.FindStringIndex(s)
	if loc == nil {
		return s, ""
	}
	return strings.TrimSpace(s[:loc[0]]), strings.TrimSpace(s[loc[0]:])
}
