package schedule

import "time"

const (
	minuteMs = int64(time.Minute / time.Millisecond)
	dayMs    = int64(24 * time.Hour / time.Millisecond)
)

// Instance is one generated occurrence of a series. OriginalInstanceAt is
// the nominal start, which stays the exception key even after a move.
type Instance struct {
	OriginalInstanceAt int64 `json:"original_instance_at"`
	StartAt            int64 `json:"start_at"`
	EndAt              int64 `json:"end_at"`
}

func toTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Generate expands series into the instances whose start falls in
// [windowStart, windowEnd], both inclusive, in ascending order.
//
// Weeks are 7-day blocks counted from the day of DTStart, and only every
// Interval-th block is active. UntilAt and Count bound the whole sequence
// from DTStart: Count caps the absolute occurrence index, not the number
// of instances returned for this window. The anchor at DTStart always holds
// index 0, so when DTStart's weekday is not in ByDay the rule days start at 1.
func Generate(series Series, windowStart, windowEnd int64) []Instance {
	weekly, ok := series.rule().(Weekly)
	if !ok || windowStart > windowEnd {
		return nil
	}

	dtstart := toTime(series.DTStart)
	dtDay := startOfDay(dtstart)
	timeOfDay := series.DTStart - dtDay.UnixMilli()
	perBlock := weekly.ByDay.Len()
	// The anchor is occurrence zero even when dtstart is off the rule.
	anchorOffset := 0
	if !weekly.ByDay.Has(dtstart.Weekday()) {
		anchorOffset = 1
	}
	duration := series.durationMs()

	first := startOfDay(toTime(windowStart))
	if first.Before(dtDay) {
		first = dtDay
	}
	last := toTime(windowEnd)

	var out []Instance
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		days := int((day.UnixMilli() - dtDay.UnixMilli()) / dayMs)
		if days < 0 {
			continue
		}
		weeks := days / 7
		if weeks%weekly.Interval != 0 {
			continue
		}
		if !weekly.ByDay.Has(day.Weekday()) {
			continue
		}

		startAt := day.UnixMilli() + timeOfDay
		if startAt < series.DTStart || startAt < windowStart || startAt > windowEnd {
			continue
		}
		if until, ok := series.UntilAt.Get(); ok && startAt > until {
			break
		}
		if count, ok := series.Count.Get(); ok {
			index := anchorOffset + (weeks/weekly.Interval)*perBlock + rankInBlock(weekly.ByDay, dtstart.Weekday(), days%7)
			if index >= count {
				break
			}
		}

		out = append(out, Instance{
			OriginalInstanceAt: startAt,
			StartAt:            startAt,
			EndAt:              startAt + duration,
		})
	}
	return out
}

// rankInBlock counts the weekdays of byDay that come before offset days
// into a block starting on blockStart.
func rankInBlock(byDay WeekdaySet, blockStart time.Weekday, offset int) int {
	rank := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !byDay.Has(d) {
			continue
		}
		if (int(d)-int(blockStart)+7)%7 < offset {
			rank++
		}
	}
	return rank
}

// IsInstance reports whether at is a nominal slot the series produces. The
// window is a single instant, so Generate visits at most one day.
func IsInstance(series Series, at int64) bool {
	got := Generate(series, at, at)
	return len(got) == 1 && got[0].OriginalInstanceAt == at
}
