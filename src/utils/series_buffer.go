package utils

import (
	"fmt"
	"sort"
	"sync"

	"kline-cache/src/logger"
	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// SeriesBuffer is a fixed-size circular buffer of candles for one
// (token0, token1, interval) series. Appending a candle whose timestamp
// equals the newest stored one replaces it in place: the currently forming
// candle is re-sent by the push service as it updates.
// -----------------------------------------------------------------------------

type SeriesBuffer struct {
	data     []models.MPricePoint
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewSeriesBuffer creates a new buffer with fixed capacity
func NewSeriesBuffer(capacity int) *SeriesBuffer {
	if capacity <= 0 {
		capacity = 1000 // Default reasonable size
	}

	return &SeriesBuffer{
		data:     make([]models.MPricePoint, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds one candle, replacing the newest stored candle when the
// timestamp matches it.
func (sb *SeriesBuffer) Append(point models.MPricePoint) {
	if sb.size > 0 {
		lastIdx := (sb.index - 1 + sb.capacity) % sb.capacity
		if sb.data[lastIdx].Timestamp == point.Timestamp {
			sb.data[lastIdx] = point
			return
		}
	}

	sb.data[sb.index] = point
	sb.index = (sb.index + 1) % sb.capacity

	// Update size (never exceeds capacity)
	if sb.size < sb.capacity {
		sb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n newest candles in ascending timestamp order.
func (sb *SeriesBuffer) GetLatest(n int) []models.MPricePoint {
	if sb.size == 0 || n <= 0 {
		return []models.MPricePoint{}
	}

	count := n
	if n > sb.size {
		count = sb.size
	}

	result := make([]models.MPricePoint, count)

	// Latest data is at index-1
	startIdx := (sb.index - count + sb.capacity) % sb.capacity
	for i := 0; i < count; i++ {
		result[i] = sb.data[(startIdx+i)%sb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all candles in insertion order (oldest to newest)
func (sb *SeriesBuffer) GetAll() []models.MPricePoint {
	return sb.GetLatest(sb.size)
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (sb *SeriesBuffer) Size() int {
	return sb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (sb *SeriesBuffer) Capacity() int {
	return sb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (sb *SeriesBuffer) Clear() {
	sb.index = 0
	sb.size = 0
}

// -----------------------------------------------------------------------------
// SeriesCache holds the working-set buffers for every tracked series. It is
// the hot path behind the latest-window API; the persistent store remains
// the source of truth for anything older than the buffer window.
// -----------------------------------------------------------------------------

type SeriesCache struct {
	Series    map[string]*SeriesBuffer
	MaxPoints int
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewSeriesCache(maxPoints int, log *logger.Logger) *SeriesCache {
	return &SeriesCache{
		Series:    make(map[string]*SeriesBuffer),
		MaxPoints: maxPoints,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// SeriesKey identifies one buffered series.
func SeriesKey(token0, token1 string, interval models.Interval) string {
	return fmt.Sprintf("%s/%s/%s", token0, token1, interval)
}

// -----------------------------------------------------------------------------

// AddPoints feeds a batch into the series buffer. Input is sorted ascending
// first so out-of-order push batches do not shuffle the ring.
func (sc *SeriesCache) AddPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) {
	if len(points) == 0 {
		return
	}

	sorted := make([]models.MPricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	key := SeriesKey(token0, token1, interval)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	buffer, ok := sc.Series[key]
	if !ok {
		buffer = NewSeriesBuffer(sc.MaxPoints)
		sc.Series[key] = buffer
	}

	for _, p := range sorted {
		buffer.Append(p)
	}
}

// -----------------------------------------------------------------------------

// Latest returns up to n newest candles of one series, ascending. Nil when
// the series has never been seen.
func (sc *SeriesCache) Latest(token0, token1 string, interval models.Interval, n int) []models.MPricePoint {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	buffer, ok := sc.Series[SeriesKey(token0, token1, interval)]
	if !ok {
		return nil
	}
	return buffer.GetLatest(n)
}

// -----------------------------------------------------------------------------

// HasSeries checks if a series has buffered data
func (sc *SeriesCache) HasSeries(token0, token1 string, interval models.Interval) bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	buffer, ok := sc.Series[SeriesKey(token0, token1, interval)]
	return ok && buffer.Size() > 0
}

// -----------------------------------------------------------------------------

// SeriesCount returns number of series with data
func (sc *SeriesCache) SeriesCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	return len(sc.Series)
}

// -----------------------------------------------------------------------------

// Cleanup clears all buffered series.
func (sc *SeriesCache) Cleanup() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.Series = make(map[string]*SeriesBuffer)
}
