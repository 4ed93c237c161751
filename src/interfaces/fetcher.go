package interfaces

import (
	"context"

	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// IKlineFetcher defines the contract for HTTP backfill against the remote
// kline history service. The server may return fewer or more records than
// the window implies; callers must not assume completeness. Implementations
// normalize every timestamp to integer milliseconds before returning and do
// not retry internally.
// -----------------------------------------------------------------------------

type IKlineFetcher interface {

	// -----------------------------------------------------------------------------

	// FetchPoints retrieves candles for a bounded time range.
	FetchPoints(ctx context.Context, token0, token1 string, interval models.Interval, startAt, endAt int64) (*models.MPointsBatch, error)

	// -----------------------------------------------------------------------------

	// FetchTransactions retrieves transactions for a bounded time range.
	FetchTransactions(ctx context.Context, token0, token1 string, startAt, endAt int64) ([]models.MTransaction, error)
}
