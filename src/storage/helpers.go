package storage

import (
	"database/sql"
	"sort"

	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// Shared row/value helpers for the SQLite and Postgres backends.
// -----------------------------------------------------------------------------

func flagToInt(f models.MFlag) int {
	if f {
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------

// normalizeRange fills open bounds and swaps an inverted range.
func normalizeRange(begin, end int64) (int64, int64) {
	if end == 0 {
		end = maxTimestampMs
	}
	if begin > end {
		begin, end = end, begin
	}
	return begin, end
}

// -----------------------------------------------------------------------------

func sortPointsAscending(points []models.MPricePoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})
}

// -----------------------------------------------------------------------------

func scanTransactions(rows *sql.Rows) ([]models.MTransaction, error) {
	var transactions []models.MTransaction

	for rows.Next() {
		var t models.MTransaction
		var reversed int
		var createdAt, createdTimestamp int64
		var amount0In, amount1In, amount0Out, amount1Out, liquidity sql.NullString

		if err := rows.Scan(
			&t.TransactionID, &reversed, &t.TransactionType, &t.FromAccount,
			&amount0In, &amount1In, &amount0Out, &amount1Out, &liquidity,
			&createdAt, &createdTimestamp, &t.Price, &t.Volume, &t.Direction,
		); err != nil {
			return nil, err
		}

		t.TokenReversed = models.MFlag(reversed != 0)
		t.CreatedAt = models.MTimestampMs(createdAt)
		t.CreatedTimestamp = models.MTimestampMs(createdTimestamp)
		t.Amount0In = nullableString(amount0In)
		t.Amount1In = nullableString(amount1In)
		t.Amount0Out = nullableString(amount0Out)
		t.Amount1Out = nullableString(amount1Out)
		t.Liquidity = nullableString(liquidity)

		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

// -----------------------------------------------------------------------------

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
