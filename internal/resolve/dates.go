package resolve

import (
	"regexp"
	"strings"
	"time"
)

// businessClose is the local wall-clock hour used for EOD/COB phrases.
const businessClose = 17

var (
	weekdayNames = map[string]time.Weekday{
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
		"sunday":    time.Sunday,
	}

	eodRe      = regexp.MustCompile(`(?i)^(?:by\s+)?(?:eod|cob|end of (?:the )?day|close of business)(?:\s+(?:on\s+)?([a-z]+))?$`)
	weekdayRe  = regexp.MustCompile(`(?i)^(?:by\s+|on\s+)?(next\s+|this\s+)?([a-z]+)$`)
	isoRe      = regexp.MustCompile(`^(?:by\s+)?(\d{4}-\d{2}-\d{2})$`)
	monthDayRe = regexp.MustCompile(`(?i)^(?:by\s+|on\s+)?([a-z]{3,9})\s+(\d{1,2})(?:st|nd|rd|th)?$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// ResolveDate parses a natural-language due-date phrase relative to now and
// returns the due instant in UTC. The grammar is deliberately closed: a
// phrase it does not recognize yields ok=false, never a guessed date.
// Timezone priority is channel, then workspace, then UTC.
func (r *Resolver) ResolveDate(phrase string, now time.Time) (time.Time, bool) {
	loc := r.location()
	local := now.In(loc)
	p := strings.TrimSpace(strings.ToLower(phrase))
	if p == "" {
		return time.Time{}, false
	}

	switch p {
	case "today", "by today", "eow", "end of week", "by end of week":
		if p == "today" || p == "by today" {
			return atClose(local, 0), true
		}
		// End of week is close of business Friday.
		return atClose(local, daysUntil(local.Weekday(), time.Friday)), true
	case "tomorrow", "by tomorrow":
		return atClose(local, 1), true
	}

	if m := eodRe.FindStringSubmatch(p); m != nil {
		if m[1] == "" {
			return atClose(local, 0), true
		}
		if wd, ok := weekdayNames[m[1]]; ok {
			return atClose(local, daysUntil(local.Weekday(), wd)), true
		}
		return time.Time{}, false
	}

	if m := isoRe.FindStringSubmatch(p); m != nil {
		d, err := time.ParseInLocation("2006-01-02", m[1], loc)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(d.Year(), d.Month(), d.Day(), businessClose, 0, 0, 0, loc).UTC(), true
	}

	if m := monthDayRe.FindStringSubmatch(p); m != nil {
		month, ok := monthNames[m[1]]
		if !ok {
			return time.Time{}, false
		}
		day := atoi(m[2])
		if day < 1 || day > 31 {
			return time.Time{}, false
		}
		year := local.Year()
		due := time.Date(year, month, day, businessClose, 0, 0, 0, loc)
		// A month/day already passed this year means next year.
		if due.Before(local) {
			due = due.AddDate(1, 0, 0)
		}
		if due.Day() != day {
			return time.Time{}, false // e.g. Feb 30 rolled over
		}
		return due.UTC(), true
	}

	if m := weekdayRe.FindStringSubmatch(p); m != nil {
		wd, ok := weekdayNames[m[2]]
		if !ok {
			return time.Time{}, false
		}
		days := daysUntil(local.Weekday(), wd)
		if strings.HasPrefix(m[1], "next") && days == 0 {
			days = 7
		}
		return atClose(local, days), true
	}

	return time.Time{}, false
}

func (r *Resolver) location() *time.Location {
	for _, name := range []string{r.ChannelTZ, r.WorkspaceTZ} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// daysUntil is the number of days from weekday `from` forward to `to`,
// treating the same day as 0.
func daysUntil(from, to time.Weekday) int {
	return (int(to) - int(from) + 7) % 7
}

// atClose is close of business `days` days after the local reference day,
// converted to UTC.
func atClose(local time.Time, days int) time.Time {
	d := local.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), businessClose, 0, 0, 0, d.Location()).UTC()
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
