package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Wire normalization types.
// Upstream services are inconsistent about timestamp representation (RFC3339
// strings, epoch seconds, epoch milliseconds) and about boolean flags
// (true/false vs 0/1). Both are normalized here, at the decode boundary, so
// the rest of the code only ever sees int64 milliseconds and Go bools.
// -----------------------------------------------------------------------------

// MTimestampMs is a timestamp in integer milliseconds since epoch.
type MTimestampMs int64

// Numeric values below this threshold are treated as epoch seconds.
// (1e12 ms is ~Sep 2001; no candle data predates that.)
const msThreshold = 1_000_000_000_000

// -----------------------------------------------------------------------------

func (t *MTimestampMs) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*t = 0
		return nil
	}

	// String form: RFC3339 or a bare numeric string
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", s, err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, unquoted); err == nil {
			*t = MTimestampMs(parsed.UnixMilli())
			return nil
		}
		if parsed, err := time.Parse("2006-01-02T15:04:05", unquoted); err == nil {
			*t = MTimestampMs(parsed.UnixMilli())
			return nil
		}
		s = unquoted
	}

	// Numeric form: seconds or milliseconds
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	if n < msThreshold {
		*t = MTimestampMs(int64(n * 1000))
	} else {
		*t = MTimestampMs(int64(n))
	}
	return nil
}

// -----------------------------------------------------------------------------

// MFlag is a boolean that accepts true/false, 0/1 and "0"/"1" on the wire.
// It marshals back to 0/1 to match the persisted form.
type MFlag bool

func (f *MFlag) UnmarshalJSON(data []byte) error {
	switch strings.Trim(strings.TrimSpace(string(data)), `"`) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value: %s", string(data))
	}
	return nil
}

func (f MFlag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}
