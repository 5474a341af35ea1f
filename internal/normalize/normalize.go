// Package normalize converts source-formatted numbers and dates into
// canonical types. The upstream locale writes thousands with '.' and
// decimals with ',' ("$1.234,56") and abbreviates dates as "dd/mm" or
// "Ene 22". Parsing is tolerant by contract: garbled input degrades to a
// default value instead of an error, and callers learn about the
// substitution through the second return value.
package normalize

import (
	"strconv"
	"strings"
	"time"
)

// months maps the source locale's 3-letter month abbreviations.
var months = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March,
	"abr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "ago": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dic": time.December,
}

// ParseAmount converts a source-formatted numeric string to a float.
// If both '.' and ',' occur, '.' is a thousands separator and ',' the
// decimal mark; dots grouping digits in threes are thousands separators
// on their own. Unparseable input yields (0, false), never an error,
// since upstream is not guaranteed numeric.
func ParseAmount(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	s = strings.NewReplacer("$", "", " ", "", " ", "").Replace(s)
	if s == "" || s == "-" {
		return 0, false
	}

	candidate := s
	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		candidate = strings.ReplaceAll(s, ".", "")
		candidate = strings.ReplaceAll(candidate, ",", ".")
	case strings.Contains(s, ","):
		candidate = strings.ReplaceAll(s, ",", ".")
	case dotGrouped(s):
		// "1.234" and "58.000.000" are thousands-grouped integers; a
		// lone non-grouping dot ("1.5") stays a decimal point.
		candidate = strings.ReplaceAll(s, ".", "")
	}
	if v, err := strconv.ParseFloat(candidate, 64); err == nil {
		return v, true
	}

	return 0, false
}

// dotGrouped reports whether s is digits grouped in threes by dots.
func dotGrouped(s string) bool {
	s = strings.TrimPrefix(s, "-")
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for i, p := range parts {
		if i > 0 && len(p) != 3 {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// dayMonthYearLayouts accepts the source's dd/mm/yyyy dates with or
// without zero padding.
var dayMonthYearLayouts = []string{"2/1/2006", "02/01/2006"}

// ParsePartialDate completes a date fragment against a reference date.
// Three encodings are handled: a complete "dd/mm/yyyy" passes through, a
// "Mon YY" month abbreviation maps to day 1 of that month, and a bare
// "dd/mm" infers the year from ref. Because upstream always reports
// near-current data, a fragment month more than six months ahead of the
// reference month is taken to be from the previous year.
//
// Unparseable fragments return ref itself with ok == false; the caller
// decides whether to flag the substitution.
func ParsePartialDate(fragment string, ref time.Time) (time.Time, bool) {
	f := strings.TrimSpace(fragment)
	if f == "" {
		return ref, false
	}

	for _, layout := range dayMonthYearLayouts {
		if t, err := time.Parse(layout, f); err == nil {
			return t, true
		}
	}

	if t, ok := parseMonthAbbrev(f); ok {
		return t, true
	}

	if t, ok := parseDayMonth(f, ref); ok {
		return t, true
	}

	return ref, false
}

// parseMonthAbbrev handles "Ene 22" -> 2022-01-01.
func parseMonthAbbrev(f string) (time.Time, bool) {
	parts := strings.Fields(f)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	month, ok := months[strings.ToLower(parts[0])]
	if !ok {
		return time.Time{}, false
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil || yy < 0 || yy > 99 {
		return time.Time{}, false
	}
	return time.Date(2000+yy, month, 1, 0, 0, 0, 0, time.UTC), true
}

// parseDayMonth handles "28/12" with year inference against ref.
func parseDayMonth(f string, ref time.Time) (time.Time, bool) {
	parts := strings.Split(f, "/")
	if len(parts) != 2 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	year := ref.Year()
	if month > int(ref.Month())+6 {
		year--
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
