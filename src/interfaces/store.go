package interfaces

import "kline-cache/src/models"

// -----------------------------------------------------------------------------
// IKlineStore defines the contract for the persistent cache of points and
// transactions. Writes are upserts on the composite natural key and are
// best-effort: bulk failures degrade to per-record repair and are never
// fatal to the caller.
// -----------------------------------------------------------------------------

type IKlineStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// PutPoints upserts a batch of candles for one series. Re-writing an
	// existing (token0, token1, interval, timestamp) key updates in place.
	PutPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) error

	// -----------------------------------------------------------------------------

	// PutTransactions upserts a batch of transactions for one pair, keyed by
	// (token0, token1, transaction_id, token_reversed).
	PutTransactions(token0, token1 string, transactions []models.MTransaction) error

	// -----------------------------------------------------------------------------

	// QueryPoints range-scans one series. The result is always sorted
	// ascending by timestamp regardless of the scan direction requested.
	QueryPoints(token0, token1 string, interval models.Interval, query models.MPointQuery) ([]models.MPricePoint, error)

	// -----------------------------------------------------------------------------

	// QueryTransactions range-scans one side of a pair, newest first,
	// capped at query.Limit.
	QueryTransactions(token0, token1 string, tokenReversed bool, query models.MTransactionQuery) ([]models.MTransaction, error)

	// -----------------------------------------------------------------------------

	// CountTransactions returns the number of stored transactions for one
	// side of a pair.
	CountTransactions(token0, token1 string, tokenReversed bool) (int, error)

	// -----------------------------------------------------------------------------

	// TimestampRange returns the earliest stored point timestamp and a max
	// bound of wall clock plus a one hour guard band (clock skew and the
	// in-progress candle make the newest stored point unreliable as a bound).
	TimestampRange(token0, token1 string, interval models.Interval) (models.MTimestampRange, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
