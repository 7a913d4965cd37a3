// Package timectx infers calendar time axes from spreadsheet header rows.
// It parses loosely formatted header strings into typed date periods,
// infers the dominant grain, and reports a confidence level.
package timectx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// DatePeriod is one typed period on a time axis. Period carries the
// quarter number (1-4), the month number (1-12), or a day-of-month
// encoded sort key (month*100+day); it is zero for yearly periods.
type DatePeriod struct {
	Label  string
	Grain  core.Grain
	Year   int
	Period int
	Start  time.Time
	End    time.Time
}

// Key renders the canonical label for the period ("2024-Q1", "2024-03",
// "2024-03-05", "2024").
func (p DatePeriod) Key() string {
	switch p.Grain {
	case core.GrainQuarter:
		return fmt.Sprintf("%d-Q%d", p.Year, p.Period)
	case core.GrainMonth:
		return fmt.Sprintf("%d-%02d", p.Year, p.Period)
	case core.GrainDay:
		return p.Start.Format("2006-01-02")
	default:
		return strconv.Itoa(p.Year)
	}
}

var (
	quarterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^Q([1-4])\s+(\d{4})$`),  // Q1 2024
		regexp.MustCompile(`^(\d{4})-Q([1-4])$`),    // 2024-Q1
		regexp.MustCompile(`^(\d{4})Q([1-4])$`),     // 2024Q1
		regexp.MustCompile(`^Q([1-4])\s*'(\d{2})$`), // Q1 '24
	}
	fiscalYearPattern = regexp.MustCompile(`^FY\s?(\d{4})$`)
	shortYearPattern  = regexp.MustCompile(`^'(\d{2})$`)
	bareYearPattern   = regexp.MustCompile(`^(\d{4})$`)
	summaryPattern    = regexp.MustCompile(`(?i)^(total|sum|avg|average)s?$`)
)

// dayLayouts covers both US and ISO numeric date formats.
var dayLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var monthLayouts = []string{
	"Jan 2006",
	"January 2006",
	"Jan-2006",
	"Jan-06",
	"Jan '06",
	"01/2006",
	"1/2006",
	"2006-01",
}

// ParsePeriod parses a single header string into a typed period. Parsers
// are tried in order: day, quarter, month, year; the first hit wins.
func ParsePeriod(header string) (DatePeriod, bool) {
	s := strings.TrimSpace(header)
	if s == "" {
		return DatePeriod{}, false
	}

	if p, ok := parseDay(s); ok {
		return p, true
	}
	if p, ok := parseQuarter(s); ok {
		return p, true
	}
	if p, ok := parseMonth(s); ok {
		return p, true
	}
	if p, ok := parseYear(s); ok {
		return p, true
	}
	return DatePeriod{}, false
}

// IsSummaryHeader reports whether a header names a summary column
// (total, sum, avg, average) rather than a period.
func IsSummaryHeader(header string) bool {
	return summaryPattern.MatchString(strings.TrimSpace(header))
}

func parseDay(s string) (DatePeriod, bool) {
	for _, layout := range dayLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return dayPeriod(s, t), true
	}
	return DatePeriod{}, false
}

func dayPeriod(label string, t time.Time) DatePeriod {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return DatePeriod{
		Label:  label,
		Grain:  core.GrainDay,
		Year:   t.Year(),
		Period: int(t.Month())*100 + t.Day(),
		Start:  start,
		End:    start.AddDate(0, 0, 1),
	}
}

func parseQuarter(s string) (DatePeriod, bool) {
	upper := strings.ToUpper(s)
	for i, re := range quarterPatterns {
		m := re.FindStringSubmatch(upper)
		if m == nil {
			continue
		}
		var q, year int
		switch i {
		case 1, 2: // year first
			year, _ = strconv.Atoi(m[1])
			q, _ = strconv.Atoi(m[2])
		case 3: // two-digit year
			q, _ = strconv.Atoi(m[1])
			yy, _ := strconv.Atoi(m[2])
			year = 2000 + yy
		default:
			q, _ = strconv.Atoi(m[1])
			year, _ = strconv.Atoi(m[2])
		}
		start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return DatePeriod{
			Label:  s,
			Grain:  core.GrainQuarter,
			Year:   year,
			Period: q,
			Start:  start,
			End:    start.AddDate(0, 3, 0),
		}, true
	}
	return DatePeriod{}, false
}

func parseMonth(s string) (DatePeriod, bool) {
	for _, layout := range monthLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		year := t.Year()
		if year < 100 {
			year += 2000
		}
		start := time.Date(year, t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return DatePeriod{
			Label:  s,
			Grain:  core.GrainMonth,
			Year:   year,
			Period: int(t.Month()),
			Start:  start,
			End:    start.AddDate(0, 1, 0),
		}, true
	}
	return DatePeriod{}, false
}

func parseYear(s string) (DatePeriod, bool) {
	var year int
	switch {
	case bareYearPattern.MatchString(s):
		year, _ = strconv.Atoi(s)
	case fiscalYearPattern.MatchString(strings.ToUpper(s)):
		m := fiscalYearPattern.FindStringSubmatch(strings.ToUpper(s))
		year, _ = strconv.Atoi(m[1])
	case shortYearPattern.MatchString(s):
		m := shortYearPattern.FindStringSubmatch(s)
		yy, _ := strconv.Atoi(m[1])
		year = 2000 + yy
	default:
		return DatePeriod{}, false
	}
	// Reject digit runs that are clearly not calendar years.
	if year < 1900 || year > 2200 {
		return DatePeriod{}, false
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return DatePeriod{
		Label: s,
		Grain: core.GrainYear,
		Year:  year,
		Start: start,
		End:   start.AddDate(1, 0, 0),
	}, true
}
