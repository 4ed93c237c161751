package analysis

import (
	"sort"

	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// Reconciliation engine.
// Pure, synchronous merge of an in-memory working set with newly arrived
// records: dedup by natural key (last write wins), sort, trim to a bounded
// window. The HTTP backfill path and the push path race on the same series
// with no ordering guarantee; funneling both through this merge is what
// makes the combination safe.
//
// Window contract: results are always in ascending timestamp order. With
// reverse=true the newest keepCount records are kept (tail of the ascending
// set), otherwise the oldest (head). keepCount < 0 means unbounded.
// Presentation-order reversal is left to the caller.
// -----------------------------------------------------------------------------

// MergePoints merges new candles into an existing window. A new point whose
// timestamp already exists replaces the old one in place: intra-candle
// updates are expected for the currently forming bucket.
func MergePoints(origin, incoming []models.MPricePoint, keepCount int, reverse bool) []models.MPricePoint {
	merged := make([]models.MPricePoint, len(origin))
	copy(merged, origin)

	index := make(map[models.MTimestampMs]int, len(merged))
	for i, p := range merged {
		index[p.Timestamp] = i
	}

	for _, p := range incoming {
		if i, ok := index[p.Timestamp]; ok {
			merged[i] = p
			continue
		}
		index[p.Timestamp] = len(merged)
		merged = append(merged, p)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})

	return window(merged, keepCount, reverse)
}

// -----------------------------------------------------------------------------

// MergeTransactions merges new transactions into an existing window for one
// side of a pair. Records whose token_reversed flag does not match are
// dropped first: the reversed and non-reversed lists of the same pair are
// logically separate series. Dedup key is transaction_id.
func MergeTransactions(origin, incoming []models.MTransaction, tokenReversed bool, keepCount int, reverse bool) []models.MTransaction {
	merged := make([]models.MTransaction, 0, len(origin)+len(incoming))
	index := make(map[int64]int, len(origin))

	for _, t := range origin {
		if bool(t.TokenReversed) != tokenReversed {
			continue
		}
		index[t.TransactionID] = len(merged)
		merged = append(merged, t)
	}

	for _, t := range incoming {
		if bool(t.TokenReversed) != tokenReversed {
			continue
		}
		t.Normalize()
		if i, ok := index[t.TransactionID]; ok {
			merged[i] = t
			continue
		}
		index[t.TransactionID] = len(merged)
		merged = append(merged, t)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedTimestamp != merged[j].CreatedTimestamp {
			return merged[i].CreatedTimestamp < merged[j].CreatedTimestamp
		}
		return merged[i].TransactionID < merged[j].TransactionID
	})

	return window(merged, keepCount, reverse)
}

// -----------------------------------------------------------------------------

// window trims an ascending series to keepCount records: the newest when
// reverse is set, the oldest otherwise. The slice stays ascending.
func window[T any](series []T, keepCount int, reverse bool) []T {
	if keepCount < 0 || len(series) <= keepCount {
		return series
	}
	if reverse {
		return series[len(series)-keepCount:]
	}
	return series[:keepCount]
}
