package schedule

import (
	"strconv"
	"strings"
	"time"
)

// RecurrenceRule is either Weekly or Unsupported. Unsupported expands to
// zero occurrences; it is never an error.
type RecurrenceRule interface {
	isRecurrenceRule()
}

// Weekly repeats on the ByDay weekdays of every Interval-th week.
type Weekly struct {
	ByDay    WeekdaySet
	Interval int
}

// Unsupported is any rule the engine cannot expand.
type Unsupported struct {
	Raw    string
	Reason string
}

func (Weekly) isRecurrenceRule()      {}
func (Unsupported) isRecurrenceRule() {}

// WeekdaySet is a set of weekdays indexed by time.Weekday.
type WeekdaySet [7]bool

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s[d]
}

// Len returns the number of weekdays in the set.
func (s WeekdaySet) Len() int {
	n := 0
	for _, ok := range s {
		if ok {
			n++
		}
	}
	return n
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseRule parses a semicolon separated KEY=VALUE rule. Only FREQ=WEEKLY
// with optional BYDAY and INTERVAL is expandable. Unknown keys and pairs
// without '=' are skipped. BYDAY defaults to the weekday of dtstart.
func ParseRule(raw string, dtstart int64) RecurrenceRule {
	var (
		freq     string
		byDay    WeekdaySet
		hasByDay bool
		interval = 1
	)

	for _, part := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			freq = strings.ToUpper(value)
		case "BYDAY":
			hasByDay = true
			for _, code := range strings.Split(value, ",") {
				if d, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
					byDay[d] = true
				}
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				interval = n
			}
		}
	}

	if freq != "WEEKLY" {
		return Unsupported{Raw: raw, Reason: "FREQ must be WEEKLY"}
	}
	if !hasByDay {
		byDay[toTime(dtstart).Weekday()] = true
	}
	if byDay.Len() == 0 {
		return Unsupported{Raw: raw, Reason: "BYDAY has no known weekday"}
	}
	return Weekly{ByDay: byDay, Interval: interval}
}
