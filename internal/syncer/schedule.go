package syncer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// intervalExpr recognizes schedules like "30 minutes", "1 hour", "2 days".
var intervalExpr = regexp.MustCompile(`(?i)^\s*(\d+)\s+(minute|hour|day)s?\s*$`)

// ShouldUpdate decides whether a source is due for a scheduled sync.
//
// A source that has never run is always due. A 5-field cron-like expression
// is approximated as "at most once an hour": only elapsed wall-clock time is
// checked, not the cron fields themselves. Interval expressions
// ("<n> minutes|hours|days") require that much time to have elapsed since the
// last run. Anything unparseable never triggers an update.
func ShouldUpdate(schedule string, lastRun *time.Time, now time.Time) bool {
	if lastRun == nil {
		return true
	}
	elapsed := now.Sub(*lastRun)

	if len(strings.Fields(schedule)) == 5 {
		// Coarse cron approximation: hourly cadence regardless of fields.
		return elapsed >= time.Hour
	}

	m := intervalExpr.FindStringSubmatch(schedule)
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return false
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	}
	return elapsed >= time.Duration(n)*unit
}
