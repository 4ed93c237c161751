package storage

import (
	"path/filepath"
	"testing"
	"time"

	"kline-cache/src/logger"
	"kline-cache/src/models"

	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	cfg := &models.MConfig{
		LogLevel: "INFO",
		Storage: models.MStorageConfig{
			DBType: "sqlite",
			DBPath: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	store, err := NewSQLiteStore(cfg, logger.NewLogger(cfg.LogLevel, "test"))
	assert.NoError(t, err)
	assert.NoError(t, store.Initialize())
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testPoints(timestamps ...int64) []models.MPricePoint {
	points := make([]models.MPricePoint, 0, len(timestamps))
	for _, ts := range timestamps {
		points = append(points, models.MPricePoint{
			Open:      1.0,
			High:      2.0,
			Low:       0.5,
			Close:     1.5,
			Volume:    100,
			Timestamp: models.MTimestampMs(ts),
		})
	}
	return points
}

func testTransaction(id int64, ts int64, reversed bool) models.MTransaction {
	return models.MTransaction{
		TransactionID:    id,
		TransactionType:  models.TransactionBuyToken0,
		FromAccount:      "acct",
		CreatedAt:        models.MTimestampMs(ts),
		CreatedTimestamp: models.MTimestampMs(ts),
		Price:            "1.23",
		Volume:           "456",
		Direction:        "in",
		TokenReversed:    models.MFlag(reversed),
	}
}

// -----------------------------------------------------------------------------

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	rows, err := store.DB.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('kline_points','transactions')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["kline_points"])
	assert.True(t, found["transactions"])
}

// -----------------------------------------------------------------------------

func TestSQLiteSchemaSurvivesReinitialize(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, testPoints(1000, 2000)))
	assert.NoError(t, store.Close())

	// Re-opening the same file must keep the cached data.
	reopened, err := NewSQLiteStore(store.Config, store.Logger)
	assert.NoError(t, err)
	assert.NoError(t, reopened.Initialize())
	t.Cleanup(func() { _ = reopened.Close() })

	points, err := reopened.QueryPoints("SOL", "USDC", models.IntervalOneMinute, models.MPointQuery{})
	assert.NoError(t, err)
	assert.Len(t, points, 2)
}

// -----------------------------------------------------------------------------

func TestSQLitePutPointsIdempotentUpsert(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, testPoints(1000, 2000, 3000)))

	// Re-write the middle candle with new values: must update, not duplicate.
	updated := testPoints(2000)
	updated[0].Close = 9.9
	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, updated))

	points, err := store.QueryPoints("SOL", "USDC", models.IntervalOneMinute, models.MPointQuery{})
	assert.NoError(t, err)
	assert.Len(t, points, 3)
	assert.Equal(t, models.MTimestampMs(2000), points[1].Timestamp)
	assert.InDelta(t, 9.9, points[1].Close, 1e-9)
}

// -----------------------------------------------------------------------------

func TestSQLiteQueryPointsRangeAndOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, testPoints(1000, 2000, 3000, 4000, 5000)))

	// Bounded range
	points, err := store.QueryPoints("SOL", "USDC", models.IntervalOneMinute, models.MPointQuery{
		TimestampBegin: 2000,
		TimestampEnd:   4000,
	})
	assert.NoError(t, err)
	assert.Len(t, points, 3)
	assert.Equal(t, models.MTimestampMs(2000), points[0].Timestamp)
	assert.Equal(t, models.MTimestampMs(4000), points[2].Timestamp)

	// Reverse takes the newest records but still returns ascending order.
	points, err = store.QueryPoints("SOL", "USDC", models.IntervalOneMinute, models.MPointQuery{
		Limit:   2,
		Reverse: true,
	})
	assert.NoError(t, err)
	assert.Len(t, points, 2)
	assert.Equal(t, models.MTimestampMs(4000), points[0].Timestamp)
	assert.Equal(t, models.MTimestampMs(5000), points[1].Timestamp)

	// Open end means everything from begin onward.
	points, err = store.QueryPoints("SOL", "USDC", models.IntervalOneMinute, models.MPointQuery{
		TimestampBegin: 3000,
	})
	assert.NoError(t, err)
	assert.Len(t, points, 3)
}

// -----------------------------------------------------------------------------

func TestSQLitePointsSeriesIsolation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, testPoints(1000)))
	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneHour, testPoints(1000)))
	assert.NoError(t, store.PutPoints("ETH", "USDC", models.IntervalOneMinute, testPoints(1000)))

	points, err := store.QueryPoints("SOL", "USDC", models.IntervalOneMinute, models.MPointQuery{})
	assert.NoError(t, err)
	assert.Len(t, points, 1)
}

// -----------------------------------------------------------------------------

func TestSQLiteTransactionsReversedPartition(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// Same transaction id on both sides of the pair: two independent rows.
	assert.NoError(t, store.PutTransactions("SOL", "USDC", []models.MTransaction{
		testTransaction(1, 1000, false),
		testTransaction(1, 1000, true),
		testTransaction(2, 2000, false),
	}))

	straight, err := store.QueryTransactions("SOL", "USDC", false, models.MTransactionQuery{})
	assert.NoError(t, err)
	assert.Len(t, straight, 2)

	reversed, err := store.QueryTransactions("SOL", "USDC", true, models.MTransactionQuery{})
	assert.NoError(t, err)
	assert.Len(t, reversed, 1)
	assert.True(t, bool(reversed[0].TokenReversed))

	count, err := store.CountTransactions("SOL", "USDC", false)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

// -----------------------------------------------------------------------------

func TestSQLiteQueryTransactionsNewestFirstCapped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	assert.NoError(t, store.PutTransactions("SOL", "USDC", []models.MTransaction{
		testTransaction(1, 1000, false),
		testTransaction(2, 2000, false),
		testTransaction(3, 3000, false),
	}))

	transactions, err := store.QueryTransactions("SOL", "USDC", false, models.MTransactionQuery{Limit: 2})
	assert.NoError(t, err)
	assert.Len(t, transactions, 2)
	assert.Equal(t, int64(3), transactions[0].TransactionID)
	assert.Equal(t, int64(2), transactions[1].TransactionID)
}

// -----------------------------------------------------------------------------

func TestSQLiteTransactionUpsertPreservesStrings(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	amount := "123456789.000000001"
	tx := testTransaction(7, 1000, false)
	tx.Amount0In = &amount

	assert.NoError(t, store.PutTransactions("SOL", "USDC", []models.MTransaction{tx}))

	// Upsert with a changed price must update the existing row.
	tx.Price = "2.00"
	assert.NoError(t, store.PutTransactions("SOL", "USDC", []models.MTransaction{tx}))

	got, err := store.QueryTransactions("SOL", "USDC", false, models.MTransactionQuery{})
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "2.00", got[0].Price)
	assert.NotNil(t, got[0].Amount0In)
	assert.Equal(t, amount, *got[0].Amount0In)
	assert.Nil(t, got[0].Liquidity)
}

// -----------------------------------------------------------------------------

func TestSQLiteTimestampRange(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// Empty series: min is zero, max still carries the guard band.
	empty, err := store.TimestampRange("SOL", "USDC", models.IntervalOneMinute)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), empty.MinTimestamp)
	assert.Greater(t, empty.MaxTimestamp, time.Now().UnixMilli())

	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, testPoints(5000, 1000, 3000)))

	got, err := store.TimestampRange("SOL", "USDC", models.IntervalOneMinute)
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), got.MinTimestamp)
	assert.GreaterOrEqual(t, got.MaxTimestamp, time.Now().UnixMilli()+maxTimestampGuardBand-int64(time.Minute/time.Millisecond))
}
