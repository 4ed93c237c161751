package analysis

import (
	"sort"

	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// TimeSeriesResampler aggregates fine-grained candles into coarser interval
// buckets (open = first, high = max, low = min, close = last,
// volume = sum). Used to derive e.g. 1h candles from stored 1m candles when
// the coarser series has gaps.
// -----------------------------------------------------------------------------

type TimeSeriesResampler struct{}

// -----------------------------------------------------------------------------

// CalculateWindowBoundaries returns the bucket [start, end) that contains ts.
func CalculateWindowBoundaries(ts int64, window int64) (int64, int64) {
	start := ts - (ts % window)
	return start, start + window
}

// -----------------------------------------------------------------------------

// ResamplePoints buckets candles into the target interval. Input does not
// need to be sorted; output is ascending by bucket timestamp. Returns nil
// for an unknown interval.
func (r *TimeSeriesResampler) ResamplePoints(points []models.MPricePoint, target models.Interval) []models.MPricePoint {
	windowMs := int64(target.Duration().Milliseconds())
	if windowMs <= 0 || len(points) == 0 {
		return nil
	}

	sorted := make([]models.MPricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var result []models.MPricePoint
	for _, p := range sorted {
		start, _ := CalculateWindowBoundaries(int64(p.Timestamp), windowMs)

		if len(result) == 0 || int64(result[len(result)-1].Timestamp) != start {
			result = append(result, models.MPricePoint{
				Open:      p.Open,
				High:      p.High,
				Low:       p.Low,
				Close:     p.Close,
				Volume:    p.Volume,
				Timestamp: models.MTimestampMs(start),
			})
			continue
		}

		bucket := &result[len(result)-1]
		if p.High > bucket.High {
			bucket.High = p.High
		}
		if p.Low < bucket.Low {
			bucket.Low = p.Low
		}
		bucket.Close = p.Close
		bucket.Volume += p.Volume
	}

	return result
}
