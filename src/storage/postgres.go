package storage

import (
	"database/sql"
	"fmt"
	"time"

	"kline-cache/src/logger"
	"kline-cache/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// PostgresStore is the shared-deployment backend: several cache daemons can
// point at one database. Semantics are identical to SQLiteStore.
// -----------------------------------------------------------------------------

type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	return &PostgresStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db
	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS kline_points (
			id BIGSERIAL PRIMARY KEY,
			token0 TEXT NOT NULL,
			token1 TEXT NOT NULL,
			interval TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			UNIQUE (token0, token1, interval, timestamp)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create kline_points: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			token0 TEXT NOT NULL,
			token1 TEXT NOT NULL,
			transaction_id BIGINT NOT NULL,
			token_reversed INTEGER NOT NULL,
			transaction_type TEXT NOT NULL,
			from_account TEXT NOT NULL,
			amount_0_in TEXT,
			amount_1_in TEXT,
			amount_0_out TEXT,
			amount_1_out TEXT,
			liquidity TEXT,
			created_at BIGINT NOT NULL,
			created_timestamp BIGINT NOT NULL,
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

func (d *PostgresStore) PutPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) error {
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

func (d *PostgresStore) bulkInsertPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) []models.MPricePoint {
	tx, err := d.DB.Begin()
	if err != nil {
		d.Logger.Warning("PutPoints: begin failed, falling back to per-record writes: %v", err)
		return points
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO kline_points (token0, token1, interval, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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

	// Postgres aborts the whole transaction on the first failed statement,
	// so unlike the SQLite path a single bad record sends the entire batch
	// to the repair pass.
	for _, p := range points {
		if _, err := stmt.Exec(token0, token1, string(interval), int64(p.Timestamp), p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			d.Logger.Warning("PutPoints: batch aborted at timestamp %d: %v", p.Timestamp, err)
			return points
		}
	}

	if err := tx.Commit(); err != nil {
		d.Logger.Warning("PutPoints: commit failed, falling back to per-record writes: %v", err)
		return points
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) repairPoint(token0, token1 string, interval models.Interval, p models.MPricePoint) error {
	res, err := d.DB.Exec(`
		UPDATE kline_points SET open = $1, high = $2, low = $3, close = $4, volume = $5
		WHERE token0 = $6 AND token1 = $7 AND interval = $8 AND timestamp = $9
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token0, token1, interval, timestamp) DO NOTHING
	`, token0, token1, string(interval), int64(p.Timestamp), p.Open, p.High, p.Low, p.Close, p.Volume)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) PutTransactions(token0, token1 string, transactions []models.MTransaction) error {
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

func (d *PostgresStore) bulkInsertTransactions(token0, token1 string, transactions []models.MTransaction) []models.MTransaction {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
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

	for _, t := range transactions {
		t.Normalize()
		if _, err := stmt.Exec(
			token0, token1, t.TransactionID, flagToInt(t.TokenReversed),
			string(t.TransactionType), t.FromAccount,
			t.Amount0In, t.Amount1In, t.Amount0Out, t.Amount1Out, t.Liquidity,
			int64(t.CreatedAt), int64(t.CreatedTimestamp), t.Price, t.Volume, t.Direction,
		); err != nil {
			d.Logger.Warning("PutTransactions: batch aborted at transaction %d: %v", t.TransactionID, err)
			return transactions
		}
	}

	if err := tx.Commit(); err != nil {
		d.Logger.Warning("PutTransactions: commit failed, falling back to per-record writes: %v", err)
		return transactions
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) repairTransaction(token0, token1 string, t models.MTransaction) error {
	t.Normalize()

	res, err := d.DB.Exec(`
		UPDATE transactions SET
			transaction_type = $1, from_account = $2,
			amount_0_in = $3, amount_1_in = $4, amount_0_out = $5, amount_1_out = $6, liquidity = $7,
			created_at = $8, created_timestamp = $9, price = $10, volume = $11, direction = $12
		WHERE token0 = $13 AND token1 = $14 AND transaction_id = $15 AND token_reversed = $16
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (token0, token1, transaction_id, token_reversed) DO NOTHING
	`, token0, token1, t.TransactionID, flagToInt(t.TokenReversed),
		string(t.TransactionType), t.FromAccount,
		t.Amount0In, t.Amount1In, t.Amount0Out, t.Amount1Out, t.Liquidity,
		int64(t.CreatedAt), int64(t.CreatedTimestamp), t.Price, t.Volume, t.Direction)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) QueryPoints(token0, token1 string, interval models.Interval, query models.MPointQuery) ([]models.MPricePoint, error) {
	begin, end := normalizeRange(query.TimestampBegin, query.TimestampEnd)

	order := "ASC"
	if query.Reverse {
		order = "DESC"
	}
	var limit interface{}
	if query.Limit > 0 {
		limit = query.Limit
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume
		FROM kline_points
		WHERE token0 = $1 AND token1 = $2 AND interval = $3 AND timestamp BETWEEN $4 AND $5
		ORDER BY timestamp %s
		LIMIT $6 OFFSET $7
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

func (d *PostgresStore) QueryTransactions(token0, token1 string, tokenReversed bool, query models.MTransactionQuery) ([]models.MTransaction, error) {
	begin, end := normalizeRange(query.TimestampBegin, query.TimestampEnd)

	// Over-fetch 2x before post-filtering, same as the SQLite backend.
	var limit interface{}
	if query.Limit > 0 {
		limit = query.Limit * 2
	}

	rows, err := d.DB.Query(`
		SELECT transaction_id, token_reversed, transaction_type, from_account,
			amount_0_in, amount_1_in, amount_0_out, amount_1_out, liquidity,
			created_at, created_timestamp, price, volume, direction
		FROM transactions
		WHERE token0 = $1 AND token1 = $2 AND token_reversed = $3 AND created_timestamp BETWEEN $4 AND $5
		ORDER BY created_timestamp DESC
		LIMIT $6
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

func (d *PostgresStore) CountTransactions(token0, token1 string, tokenReversed bool) (int, error) {
	var count int
	err := d.DB.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE token0 = $1 AND token1 = $2 AND token_reversed = $3
	`, token0, token1, flagToInt(models.MFlag(tokenReversed))).Scan(&count)
	return count, err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) TimestampRange(token0, token1 string, interval models.Interval) (models.MTimestampRange, error) {
	var min sql.NullInt64
	err := d.DB.QueryRow(`
		SELECT MIN(timestamp) FROM kline_points
		WHERE token0 = $1 AND token1 = $2 AND interval = $3
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

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
