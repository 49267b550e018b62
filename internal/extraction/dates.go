package extraction

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

var (
	reISODate   = regexp.MustCompile(`\b((?:19|20)\d{2})-(\d{1,2})-(\d{1,2})\b`)
	reUKDate    = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-]((?:19|20)?\d{2})\b`)
	reWordyDate = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+((?:19|20)\d{2})\b`)
)

var monthIndex = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// ParseLooseDate reads ISO, UK day-first and "3 March 2024" style dates.
func ParseLooseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	if m := reISODate.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := reWordyDate.FindStringSubmatch(s); m != nil {
		mon := monthIndex[strings.ToLower(m[2])]
		return buildDate(m[3], strconv.Itoa(int(mon)), m[1])
	}
	if m := reUKDate.FindStringSubmatch(s); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		return buildDate(year, m[2], m[1])
	}
	return time.Time{}, false
}

func buildDate(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject rollovers like 31/02
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// findDates returns every date found in s, in order of appearance.
func findDates(s string) []time.Time {
	type hit struct {
		pos int
		t   time.Time
	}
	var hits []hit
	taken := make([]bool, len(s))
	for _, re := range []*regexp.Regexp{reISODate, reWordyDate, reUKDate} {
		for _, loc := range re.FindAllStringIndex(s, -1) {
			if taken[loc[0]] {
				continue
			}
			if t, ok := ParseLooseDate(s[loc[0]:loc[1]]); ok {
				hits = append(hits, hit{pos: loc[0], t: t})
				for i := loc[0]; i < loc[1]; i++ {
					taken[i] = true
				}
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]time.Time, len(hits))
	for i, h := range hits {
		out[i] = h.t
	}
	return out
}

func isoString(t time.Time) *string {
	s := t.Format(isoLayout)
	return &s
}
