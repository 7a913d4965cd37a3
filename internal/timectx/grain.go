package timectx

import (
	"sort"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// InferGrainFromDates classifies a raw list of dates by the mean absolute
// day difference between consecutive dates:
//
//	<= 1 day   -> day
//	25..35     -> month
//	85..95     -> quarter
//	360..370   -> year
//
// Anything outside those bands, or fewer than two dates, defaults to month.
func InferGrainFromDates(dates []time.Time) core.Grain {
	if len(dates) < 2 {
		return core.GrainMonth
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var total float64
	for i := 1; i < len(sorted); i++ {
		diff := sorted[i].Sub(sorted[i-1]).Hours() / 24
		if diff < 0 {
			diff = -diff
		}
		total += diff
	}
	mean := total / float64(len(sorted)-1)

	switch {
	case mean <= 1:
		return core.GrainDay
	case mean >= 25 && mean <= 35:
		return core.GrainMonth
	case mean >= 85 && mean <= 95:
		return core.GrainQuarter
	case mean >= 360 && mean <= 370:
		return core.GrainYear
	default:
		return core.GrainMonth
	}
}

// PeriodsForRange enumerates the periods of the given grain covering
// [start, end). It is the inverse companion of header detection: callers
// that know a grain and bounds get back the period series a header row
// would have produced.
func PeriodsForRange(grain core.Grain, start, end time.Time) []DatePeriod {
	var periods []DatePeriod
	cur := truncateToGrain(grain, start)
	for cur.Before(end) {
		next := advance(grain, cur)
		p := DatePeriod{
			Grain: grain,
			Year:  cur.Year(),
			Start: cur,
			End:   next,
		}
		switch grain {
		case core.GrainDay:
			p.Period = int(cur.Month())*100 + cur.Day()
		case core.GrainMonth:
			p.Period = int(cur.Month())
		case core.GrainQuarter:
			p.Period = (int(cur.Month())-1)/3 + 1
		}
		p.Label = p.Key()
		periods = append(periods, p)
		cur = next
	}
	return periods
}

func truncateToGrain(grain core.Grain, t time.Time) time.Time {
	switch grain {
	case core.GrainDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case core.GrainMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case core.GrainQuarter:
		q := (int(t.Month()) - 1) / 3
		return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

func advance(grain core.Grain, t time.Time) time.Time {
	switch grain {
	case core.GrainDay:
		return t.AddDate(0, 0, 1)
	case core.GrainMonth:
		return t.AddDate(0, 1, 0)
	case core.GrainQuarter:
		return t.AddDate(0, 3, 0)
	default:
		return t.AddDate(1, 0, 0)
	}
}
