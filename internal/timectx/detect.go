package timectx

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// Confidence grades how trustworthy a detection is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// minPeriods guards against accidental one or two column matches being
// taken for a time axis.
const minPeriods = 3

// TimeContext is the inferred grain and period boundaries of one header
// run. All periods share a single grain.
type TimeContext struct {
	Grain       core.Grain
	Periods     []DatePeriod
	StartPeriod string
	EndPeriod   string
	Confidence  Confidence
}

// StartDate returns the inclusive start of the context's range.
func (c *TimeContext) StartDate() time.Time {
	return c.Periods[0].Start
}

// EndDate returns the exclusive end of the context's range.
func (c *TimeContext) EndDate() time.Time {
	return c.Periods[len(c.Periods)-1].End
}

// DetectedRange is a header row's detected column span plus its context.
// IsNew is sticky across detection passes: once a range has been seen
// unchanged it is no longer reported as new.
type DetectedRange struct {
	Row        int
	StartCol   int
	EndCol     int
	Context    TimeContext
	IsNew      bool
	DetectedAt time.Time
}

// locatedPeriod pairs a parsed period with the header column it came
// from, so the reported span reflects the real columns even when
// summary columns sit inside the run.
type locatedPeriod struct {
	period DatePeriod
	col    int
}

// headerRun is a detected time context plus the columns its periods
// actually occupy.
type headerRun struct {
	context  TimeContext
	startCol int
	endCol   int
}

// DetectHeaderRow parses an ordered header row into a time context.
// offset skips the leading label column(s). Returns nil when fewer than
// minPeriods parse, or when the first non-summary header after the
// offset is not a date at all.
func DetectHeaderRow(headers []string, offset int) *TimeContext {
	run := detectHeaderRun(headers, offset)
	if run == nil {
		return nil
	}
	return &run.context
}

func detectHeaderRun(headers []string, offset int) *headerRun {
	var found []locatedPeriod

	for col := offset; col < len(headers); col++ {
		h := headers[col]
		if IsSummaryHeader(h) {
			// Summary columns sit inside or after the run; skip without
			// breaking the scan.
			continue
		}
		p, ok := ParsePeriod(h)
		if !ok {
			if len(found) > 0 {
				// Trailing non-date columns end the run.
				break
			}
			// A leading non-date header aborts detection for this row,
			// except for blanks which behave like the label column.
			if strings.TrimSpace(h) == "" {
				continue
			}
			return nil
		}
		found = append(found, locatedPeriod{p, col})
	}

	if len(found) < minPeriods {
		return nil
	}

	found = upgradeMonthAligned(found)
	found, confidence := keepMajorityGrain(found)
	if len(found) < minPeriods {
		return nil
	}

	periods := make([]DatePeriod, len(found))
	for i, f := range found {
		periods[i] = f.period
	}

	return &headerRun{
		context: TimeContext{
			Grain:       periods[0].Grain,
			Periods:     periods,
			StartPeriod: periods[0].Key(),
			EndPeriod:   periods[len(periods)-1].Key(),
			Confidence:  confidence,
		},
		startCol: found[0].col,
		endCol:   found[len(found)-1].col,
	}
}

// upgradeMonthAligned rewrites a run of all-daily periods that all fall
// on the first of the month into monthly periods. Day-level exports of
// month-aligned data are common.
func upgradeMonthAligned(found []locatedPeriod) []locatedPeriod {
	for _, f := range found {
		if f.period.Grain != core.GrainDay || f.period.Start.Day() != 1 {
			return found
		}
	}
	out := make([]locatedPeriod, len(found))
	for i, f := range found {
		p := f.period
		start := time.Date(p.Year, p.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
		out[i] = locatedPeriod{
			period: DatePeriod{
				Label:  p.Label,
				Grain:  core.GrainMonth,
				Year:   p.Year,
				Period: int(p.Start.Month()),
				Start:  start,
				End:    start.AddDate(0, 1, 0),
			},
			col: f.col,
		}
	}
	return out
}

// keepMajorityGrain filters mixed-grain runs down to the majority grain
// and downgrades confidence to medium. A single consistent grain keeps
// high confidence.
func keepMajorityGrain(found []locatedPeriod) ([]locatedPeriod, Confidence) {
	counts := make(map[core.Grain]int)
	for _, f := range found {
		counts[f.period.Grain]++
	}
	if len(counts) == 1 {
		return found, ConfidenceHigh
	}

	var majority core.Grain
	best := -1
	for _, g := range []core.Grain{core.GrainDay, core.GrainMonth, core.GrainQuarter, core.GrainYear} {
		if counts[g] > best {
			best = counts[g]
			majority = g
		}
	}

	kept := found[:0:0]
	for _, f := range found {
		if f.period.Grain == majority {
			kept = append(kept, f)
		}
	}
	return kept, ConfidenceMedium
}

// rangePenalty pushes ranges below the target row to the back of the
// candidate list: headers precede data, so a range above always wins
// when one exists.
const rangePenalty = 10000

// FindClosestRange returns the detected range nearest to targetRow,
// preferring ranges at or above it.
func FindClosestRange(ranges []DetectedRange, targetRow int) *DetectedRange {
	var best *DetectedRange
	bestDist := -1
	for i := range ranges {
		r := &ranges[i]
		dist := targetRow - r.Row
		if dist < 0 {
			dist = -dist + rangePenalty
		}
		if bestDist < 0 || dist < bestDist {
			best = r
			bestDist = dist
		}
	}
	return best
}

// Detector re-detects time contexts across successive grid snapshots,
// keeping IsNew sticky for ranges whose grain and bounds are unchanged.
type Detector struct {
	logger   *slog.Logger
	offset   int
	previous map[int]DetectedRange
	now      func() time.Time
}

// NewDetector creates a detector. offset is the number of leading label
// columns each header row skips.
func NewDetector(logger *slog.Logger, offset int) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Detector{
		logger:   logger,
		offset:   offset,
		previous: make(map[int]DetectedRange),
		now:      time.Now,
	}
}

// Scan detects time contexts on every row of a grid snapshot. A range
// identical to the previous pass (same row, span, grain, and period
// bounds) keeps its prior timestamp and IsNew=false; anything genuinely
// new or changed is flagged new.
func (d *Detector) Scan(rows [][]string) []DetectedRange {
	next := make(map[int]DetectedRange)
	var out []DetectedRange

	for row, headers := range rows {
		run := detectHeaderRun(headers, d.offset)
		if run == nil {
			continue
		}
		ctx := &run.context

		r := DetectedRange{
			Row:      row,
			StartCol: run.startCol,
			EndCol:   run.endCol,
			Context:  *ctx,
			IsNew:    true,
		}

		if prev, ok := d.previous[row]; ok && sameRange(prev, r) {
			r.IsNew = false
			r.DetectedAt = prev.DetectedAt
		} else {
			r.DetectedAt = d.now()
			d.logger.Debug("detected time range",
				"row", row,
				"grain", ctx.Grain,
				"start", ctx.StartPeriod,
				"end", ctx.EndPeriod,
				"confidence", ctx.Confidence)
		}

		next[row] = r
		out = append(out, r)
	}

	d.previous = next
	return out
}

func sameRange(a, b DetectedRange) bool {
	return a.StartCol == b.StartCol &&
		a.EndCol == b.EndCol &&
		a.Context.Grain == b.Context.Grain &&
		a.Context.StartPeriod == b.Context.StartPeriod &&
		a.Context.EndPeriod == b.Context.EndPeriod
}
