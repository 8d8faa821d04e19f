package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativePattern = regexp.MustCompile(`(?i)(\d+|an?|one)\s+(minute|hour|day|week|month|year)s?\s+ago`)
	dateLayouts     = []string{
		time.RFC3339,
		"2006-01-02",
		"Mon, 02 Jan 2006",
		"Mon, 2 Jan 2006",
		"02 Jan 2006",
		"2 Jan 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"02/01/2006",
		"Jan 2006",
		"January 2006",
	}
)

// Date parses absolute and relative ("3 months ago") dates as displayed by
// the marketplaces. Anything else yields the zero time.
func Date(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if i := strings.Index(s, " at "); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "on "), "On "))
	switch strings.ToLower(s) {
	case "today", "just now":
		return now
	case "yesterday":
		return now.AddDate(0, 0, -1)
	}
	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		switch strings.ToLower(m[2]) {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute)
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour)
		case "day":
			return now.AddDate(0, 0, -n)
		case "week":
			return now.AddDate(0, 0, -7*n)
		case "month":
			return now.AddDate(0, -n, 0)
		case "year":
			return now.AddDate(-n, 0, 0)
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
