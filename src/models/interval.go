package models

import "time"

// Interval is a candle granularity. The set of values is fixed by the
// remote kline service.
type Interval string

const (
	IntervalOneMinute      Interval = "1m"
	IntervalFiveMinutes    Interval = "5m"
	IntervalFifteenMinutes Interval = "15m"
	IntervalOneHour        Interval = "1h"
	IntervalOneDay         Interval = "1d"
)

// -----------------------------------------------------------------------------

var intervalDurations = map[Interval]time.Duration{
	IntervalOneMinute:      time.Minute,
	IntervalFiveMinutes:    5 * time.Minute,
	IntervalFifteenMinutes: 15 * time.Minute,
	IntervalOneHour:        time.Hour,
	IntervalOneDay:         24 * time.Hour,
}

// -----------------------------------------------------------------------------

// Duration returns the bucket width of the interval, or 0 if unknown.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// -----------------------------------------------------------------------------

// Valid reports whether the interval is one of the known granularities.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}
