package models

// -----------------------------------------------------------------------------
// Worker message payloads.
// Every request to the sync worker carries one of the M*Payload structs
// below; every response re-uses the batch shapes where the wire already
// defines one (FetchedPoints -> MPointsBatch).
// -----------------------------------------------------------------------------

type MFetchPointsPayload struct {
	Token0   string   `json:"token0"`
	Token1   string   `json:"token1"`
	Interval Interval `json:"interval"`
	StartAt  int64    `json:"start_at"`
	EndAt    int64    `json:"end_at"`
}

type MFetchTransactionsPayload struct {
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	StartAt int64  `json:"start_at"`
	EndAt   int64  `json:"end_at"`
}

type MFetchedTransactionsPayload struct {
	Token0       string         `json:"token0"`
	Token1       string         `json:"token1"`
	StartAt      int64          `json:"start_at"`
	EndAt        int64          `json:"end_at"`
	Transactions []MTransaction `json:"transactions"`
}

// -----------------------------------------------------------------------------

type MLoadPointsPayload struct {
	Token0   string      `json:"token0"`
	Token1   string      `json:"token1"`
	Interval Interval    `json:"interval"`
	Query    MPointQuery `json:"query"`
}

type MLoadedPointsPayload struct {
	Token0   string        `json:"token0"`
	Token1   string        `json:"token1"`
	Interval Interval      `json:"interval"`
	Query    MPointQuery   `json:"query"`
	Points   []MPricePoint `json:"points"`
}

type MLoadTransactionsPayload struct {
	Token0        string            `json:"token0"`
	Token1        string            `json:"token1"`
	TokenReversed bool              `json:"token_reversed"`
	Query         MTransactionQuery `json:"query"`
}

type MLoadedTransactionsPayload struct {
	Token0        string            `json:"token0"`
	Token1        string            `json:"token1"`
	TokenReversed bool              `json:"token_reversed"`
	Query         MTransactionQuery `json:"query"`
	Transactions  []MTransaction    `json:"transactions"`
}

// -----------------------------------------------------------------------------
// Merge/sort requests. KeepCount < 0 means unbounded; Reverse selects the
// newest KeepCount records instead of the oldest. Results are always in
// ascending timestamp order (presentation reversal is the caller's job).
// -----------------------------------------------------------------------------

type MSortPointsPayload struct {
	OriginPoints []MPricePoint `json:"origin_points"`
	NewPoints    []MPricePoint `json:"new_points"`
	KeepCount    int           `json:"keep_count"`
	Reverse      bool          `json:"reverse"`
}

type MSortedPointsPayload struct {
	Points []MPricePoint `json:"points"`
}

type MSortTransactionsPayload struct {
	OriginTransactions []MTransaction `json:"origin_transactions"`
	NewTransactions    []MTransaction `json:"new_transactions"`
	TokenReversed      bool           `json:"token_reversed"`
	KeepCount          int            `json:"keep_count"`
	Reverse            bool           `json:"reverse"`
}

type MSortedTransactionsPayload struct {
	Transactions []MTransaction `json:"transactions"`
}

// -----------------------------------------------------------------------------
// Persistence acknowledgments. Fetch responses are emitted before the
// background writes land; callers that need durability confirmation listen
// for these instead.
// -----------------------------------------------------------------------------

type MPersistedPointsPayload struct {
	Token0   string   `json:"token0"`
	Token1   string   `json:"token1"`
	Interval Interval `json:"interval"`
	Count    int      `json:"count"`
}

type MPersistedTransactionsPayload struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Count  int    `json:"count"`
}
