package models

// -----------------------------------------------------------------------------
// MPricePoint is one OHLCV candle of a (token0, token1, interval) series.
// Identity is (token0, token1, interval, timestamp); a later report of the
// same timestamp supersedes the earlier one (the currently forming candle is
// re-sent as it updates).
// -----------------------------------------------------------------------------

type MPricePoint struct {
	Open      float64      `json:"open"`
	High      float64      `json:"high"`
	Low       float64      `json:"low"`
	Close     float64      `json:"close"`
	Volume    float64      `json:"volume"`
	Timestamp MTimestampMs `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MPointsBatch is the remote service's response shape for a points range
// request, and the per-pair element of a kline push notification.
type MPointsBatch struct {
	Token0   string        `json:"token_0"`
	Token1   string        `json:"token_1"`
	StartAt  MTimestampMs  `json:"start_at"`
	EndAt    MTimestampMs  `json:"end_at"`
	Interval Interval      `json:"interval"`
	Points   []MPricePoint `json:"points"`
}

// -----------------------------------------------------------------------------

// MTimestampRange is the stored extent of a series. MaxTimestamp is wall
// clock plus a guard band, not the newest stored point (see storage docs).
type MTimestampRange struct {
	MinTimestamp int64 `json:"min_timestamp"`
	MaxTimestamp int64 `json:"max_timestamp"`
}

// -----------------------------------------------------------------------------

// MPointQuery bounds a point range scan. A zero TimestampEnd means
// unbounded; a Limit <= 0 means no cap.
type MPointQuery struct {
	Offset         int   `json:"offset"`
	Limit          int   `json:"limit"`
	Reverse        bool  `json:"reverse"`
	TimestampBegin int64 `json:"timestamp_begin"`
	TimestampEnd   int64 `json:"timestamp_end"`
}
