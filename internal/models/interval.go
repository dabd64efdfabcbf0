package models

// SourceInterval is the smallest bar size at which the provider is queried.
// The pair (ticker, source interval) is the natural key for per-bar outputs.
type SourceInterval string

const (
	Interval1Min   SourceInterval = "1min"
	Interval5Min   SourceInterval = "5min"
	Interval15Min  SourceInterval = "15min"
	Interval30Min  SourceInterval = "30min"
	Interval1Hour  SourceInterval = "1hour"
	Interval4Hour  SourceInterval = "4hour"
	Interval1Day   SourceInterval = "1day"
	Interval1Week  SourceInterval = "1week"
)

// sourceIntervals maps each interval to the provider's multiplier/timespan pair.
var sourceIntervals = map[SourceInterval]struct {
	Multiplier int
	Timespan   string
}{
	Interval1Min:  {1, "minute"},
	Interval5Min:  {5, "minute"},
	Interval15Min: {15, "minute"},
	Interval30Min: {30, "minute"},
	Interval1Hour: {1, "hour"},
	Interval4Hour: {4, "hour"},
	Interval1Day:  {1, "day"},
	Interval1Week: {1, "week"},
}

// IsValid reports whether the interval is a recognised member of the set.
func (si SourceInterval) IsValid() bool {
	_, ok := sourceIntervals[si]
	return ok
}

// ProviderRange returns the multiplier and timespan used in aggregate URLs
// for this interval (e.g. 5min -> 5, "minute").
func (si SourceInterval) ProviderRange() (int, string) {
	r, ok := sourceIntervals[si]
	if !ok {
		return 1, "minute"
	}
	return r.Multiplier, r.Timespan
}
