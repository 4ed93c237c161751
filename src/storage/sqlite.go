package storage

import (
	"database/sql"
	"fmt"
	"time"

	"kline-cache/src/logger"
	"kline-cache/src/models"

	_ "modernc.org/sqlite"
)

// Upper bound used when a range query leaves the end open.
const maxTimestampMs = int64(9999999999999)

// Guard band added to wall clock for TimestampRange.MaxTimestamp: the
// current candle is still forming and peer clocks may be skewed, so the
// newest stored point is not a trustworthy upper bound.
const maxTimestampGuardBand = int64(time.Hour / time.Millisecond)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

// createTables creates the cache schema. The cache must survive restarts,
// so tables are only created, never dropped.
func (d *SQLiteStore) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS kline_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token0 TEXT NOT NULL,
			token1 TEXT NOT NULL,
			interval TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			UNIQUE (token0, token1, interval, timestamp)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create kline_points: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token0 TEXT NOT NULL,
			token1 TEXT NOT NULL,
			transaction_id INTEGER NOT NULL,
			token_reversed INTEGER NOT NULL,
			transaction_type TEXT NOT NULL,
			from_account TEXT NOT NULL,
			amount_0_in TEXT,
			amount_1_in TEXT,
			amount_0_out TEXT,
			amount_1_out TEXT,
			liquidity TEXT,
			created_at INTEGER NOT NULL,
			created_timestamp INTEGER NOT NULL,
			price TEXT NOT NULL,
			volume TEXT NOT NULL,
			direction TEXT NOT NULL,
			UNIQUE (token0, token1, transaction_id, token_reversed)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create transactions: %w", err)
	}

	query = `
		CREATE INDEX IF NOT EXISTS idx_transactions_range
		ON transactions (created_timestamp, token0, token1, token_reversed);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create transactions range index: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// PutPoints upserts a batch of candles inside one transaction. A failure of
// any individual record falls back to a per-record repair pass; storage
// failures are logged, never fatal (the cache is best-effort).
func (d *SQLiteStore) PutPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) error {
	if len(points) == 0 {
		return nil
	}

	failed := d.bulkInsertPoints(token0, token1, interval, points)
	for _, p := range failed {
		if err := d.repairPoint(token0, token1, interval, p); err != nil {
			d.Logger.Error("Failed to repair point %s/%s/%s@%d: %v", token0, token1, interval, p.Timestamp, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// bulkInsertPoints returns the points that could not be written in the
// batch pass and need per-record repair.
func (d *SQLiteStore) bulkInsertPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) []models.MPricePoint {
	tx, err := d.DB.Begin()
	if err != nil {
		d.Logger.Warning("PutPoints: begin failed, falling back to per-record writes: %v", err)
		return points
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO kline_points (token0, token1, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token0, token1, interval, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		d.Logger.Warning("PutPoints: prepare failed, falling back to per-record writes: %v", err)
		return points
	}
	defer stmt.Close()

	var failed []models.MPricePoint
	for _, p := range points {
		if _, err := stmt.Exec(token0, token1, string(interval), int64(p.Timestamp), p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			failed = append(failed, p)
		}
	}

	if err := tx.Commit(); err != nil {
		d.Logger.Warning("PutPoints: commit failed, falling back to per-record writes: %v", err)
		return points
	}

	return failed
}

// -----------------------------------------------------------------------------

// repairPoint is the read-modify-update fallback for a single record:
// update the existing row for the composite key, insert if none exists.
func (d *SQLiteStore) repairPoint(token0, token1 string, interval models.Interval, p models.MPricePoint) error {
	res, err := d.DB.Exec(`
		UPDATE kline_points SET open = ?, high = ?, low = ?, close = ?, volume = ?
		WHERE token0 = ? AND token1 = ? AND interval = ? AND timestamp = ?
	`, p.Open, p.High, p.Low, p.Close, p.Volume, token0, token1, string(interval), int64(p.Timestamp))
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = d.DB.Exec(`
		INSERT INTO kline_points (token0, token1, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, token0, token1, string(interval), int64(p.Timestamp), p.Open, p.High, p.Low, p.Close, p.Volume)
	return err
}

// -----------------------------------------------------------------------------

// PutTransactions upserts a batch of transactions with the same best-effort
// semantics as PutPoints.
func (d *SQLiteStore) PutTransactions(token0, token1 string, transactions []models.MTransaction) error {
	if len(transactions) == 0 {
		return nil
	}

	failed := d.bulkInsertTransactions(token0, token1, transactions)
	for _, t := range failed {
		if err := d.repairTransaction(token0, token1, t); err != nil {
			d.Logger.Error("Failed to repair transaction %s/%s#%d: %v", token0, token1, t.TransactionID, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) bulkInsertTransactions(token0, token1 string, transactions []models.MTransaction) []models.MTransaction {
	tx, err := d.DB.Begin()
	if err != nil {
		d.Logger.Warning("PutTransactions: begin failed, falling back to per-record writes: %v", err)
		return transactions
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO transactions (
			token0, token1, transaction_id, token_reversed,
			transaction_type, from_account,
			amount_0_in, amount_1_in, amount_0_out, amount_1_out, liquidity,
			created_at, created_timestamp, price, volume, direction
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token0, token1, transaction_id, token_reversed) DO UPDATE SET
			transaction_type = excluded.transaction_type,
			from_account = excluded.from_account,
			amount_0_in = excluded.amount_0_in,
			amount_1_in = excluded.amount_1_in,
			amount_0_out = excluded.amount_0_out,
			amount_1_out = excluded.amount_1_out,
			liquidity = excluded.liquidity,
			created_at = excluded.created_at,
			created_timestamp = excluded.created_timestamp,
			price = excluded.price,
			volume = excluded.volume,
			direction = excluded.direction
	`)
	if err != nil {
		d.Logger.Warning("PutTransactions: prepare failed, falling back to per-record writes: %v", err)
		return transactions
	}
	defer stmt.Close()

	var failed []models.MTransaction
	for _, t := range transactions {
		t.Normalize()
		if _, err := stmt.Exec(
			token0, token1, t.TransactionID, flagToInt(t.TokenReversed),
			string(t.TransactionType), t.FromAccount,
			t.Amount0In, t.Amount1In, t.Amount0Out, t.Amount1Out, t.Liquidity,
			int64(t.CreatedAt), int64(t.CreatedTimestamp), t.Price, t.Volume, t.Direction,
		); err != nil {
			failed = append(failed, t)
		}
	}

	if err := tx.Commit(); err != nil {
		d.Logger.Warning("PutTransactions: commit failed, falling back to per-record writes: %v", err)
		return transactions
	}

	return failed
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) repairTransaction(token0, token1 string, t models.MTransaction) error {
	t.Normalize()

	res, err := d.DB.Exec(`
		UPDATE transactions SET
			transaction_type = ?, from_account = ?,
			amount_0_in = ?, amount_1_in = ?, amount_0_out = ?, amount_1_out = ?, liquidity = ?,
			created_at = ?, created_timestamp = ?, price = ?, volume = ?, direction = ?
		WHERE token0 = ? AND token1 = ? AND transaction_id = ? AND token_reversed = ?
	`, string(t.TransactionType), t.FromAccount,
		t.Amount0In, t.Amount1In, t.Amount0Out, t.Amount1Out, t.Liquidity,
		int64(t.CreatedAt), int64(t.CreatedTimestamp), t.Price, t.Volume, t.Direction,
		token0, token1, t.TransactionID, flagToInt(t.TokenReversed))
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = d.DB.Exec(`
		INSERT INTO transactions (
			token0, token1, transaction_id, token_reversed,
			transaction_type, from_account,
			amount_0_in, amount_1_in, amount_0_out, amount_1_out, liquidity,
			created_at, created_timestamp, price, volume, direction
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, token0, token1, t.TransactionID, flagToInt(t.TokenReversed),
		string(t.TransactionType), t.FromAccount,
		t.Amount0In, t.Amount1In, t.Amount0Out, t.Amount1Out, t.Liquidity,
		int64(t.CreatedAt), int64(t.CreatedTimestamp), t.Price, t.Volume, t.Direction)
	return err
}

// -----------------------------------------------------------------------------

// QueryPoints range-scans one series. Reverse controls which end of the
// range the offset/limit window is taken from; the result is re-sorted
// ascending before returning so callers get a stable contract either way.
func (d *SQLiteStore) QueryPoints(token0, token1 string, interval models.Interval, query models.MPointQuery) ([]models.MPricePoint, error) {
	begin, end := normalizeRange(query.TimestampBegin, query.TimestampEnd)

	order := "ASC"
	if query.Reverse {
		order = "DESC"
	}
	limit := query.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume
		FROM kline_points
		WHERE token0 = ? AND token1 = ? AND interval = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp %s
		LIMIT ? OFFSET ?
	`, order), token0, token1, string(interval), begin, end, limit, query.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.MPricePoint
	for rows.Next() {
		var p models.MPricePoint
		var ts int64
		if err := rows.Scan(&ts, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, err
		}
		p.Timestamp = models.MTimestampMs(ts)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortPointsAscending(points)
	return points, nil
}

// -----------------------------------------------------------------------------

// QueryTransactions returns transactions newest first. The scan over-fetches
// 2x the requested limit before post-filtering: the range index leads with
// created_timestamp, so rows for the opposite token_reversed flag can occupy
// slots in the scanned window and the raw limit would under-fill the result.
func (d *SQLiteStore) QueryTransactions(token0, token1 string, tokenReversed bool, query models.MTransactionQuery) ([]models.MTransaction, error) {
	begin, end := normalizeRange(query.TimestampBegin, query.TimestampEnd)

	limit := -1
	if query.Limit > 0 {
		limit = query.Limit * 2
	}

	rows, err := d.DB.Query(`
		SELECT transaction_id, token_reversed, transaction_type, from_account,
			amount_0_in, amount_1_in, amount_0_out, amount_1_out, liquidity,
			created_at, created_timestamp, price, volume, direction
		FROM transactions
		WHERE token0 = ? AND token1 = ? AND token_reversed = ? AND created_timestamp BETWEEN ? AND ?
		ORDER BY created_timestamp DESC
		LIMIT ?
	`, token0, token1, flagToInt(models.MFlag(tokenReversed)), begin, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	if query.Limit > 0 && len(transactions) > query.Limit {
		transactions = transactions[:query.Limit]
	}
	return transactions, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) CountTransactions(token0, token1 string, tokenReversed bool) (int, error) {
	var count int
	err := d.DB.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE token0 = ? AND token1 = ? AND token_reversed = ?
	`, token0, token1, flagToInt(models.MFlag(tokenReversed))).Scan(&count)
	return count, err
}

// -----------------------------------------------------------------------------

// TimestampRange reports the stored extent of a series. Min is the earliest
// stored point (0 when empty); max is wall clock plus the guard band.
func (d *SQLiteStore) TimestampRange(token0, token1 string, interval models.Interval) (models.MTimestampRange, error) {
	var min sql.NullInt64
	err := d.DB.QueryRow(`
		SELECT MIN(timestamp) FROM kline_points
		WHERE token0 = ? AND token1 = ? AND interval = ?
	`, token0, token1, string(interval)).Scan(&min)
	if err != nil {
		return models.MTimestampRange{}, err
	}

	return models.MTimestampRange{
		MinTimestamp: min.Int64,
		MaxTimestamp: time.Now().UnixMilli() + maxTimestampGuardBand,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
