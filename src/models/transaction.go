package models

// -----------------------------------------------------------------------------
// Transaction types as reported by the swap service.
// -----------------------------------------------------------------------------

type MTransactionType string

const (
	TransactionAddLiquidity    MTransactionType = "AddLiquidity"
	TransactionRemoveLiquidity MTransactionType = "RemoveLiquidity"
	TransactionBuyToken0       MTransactionType = "BuyToken0"
	TransactionSellToken0      MTransactionType = "SellToken0"
)

// -----------------------------------------------------------------------------
// MTransaction is one executed trade or liquidity event. Identity is
// (token0, token1, transaction_id, token_reversed): the reversed variant is
// the same economic event viewed from the opposite token order and is stored
// as an independent row. Amounts are kept as decimal strings exactly as the
// service reports them; this subsystem never does arithmetic on them.
// -----------------------------------------------------------------------------

type MTransaction struct {
	TransactionID    int64            `json:"transaction_id"`
	TransactionType  MTransactionType `json:"transaction_type"`
	FromAccount      string           `json:"from_account"`
	Amount0In        *string          `json:"amount_0_in,omitempty"`
	Amount1In        *string          `json:"amount_1_in,omitempty"`
	Amount0Out       *string          `json:"amount_0_out,omitempty"`
	Amount1Out       *string          `json:"amount_1_out,omitempty"`
	Liquidity        *string          `json:"liquidity,omitempty"`
	CreatedAt        MTimestampMs     `json:"created_at"`
	CreatedTimestamp MTimestampMs     `json:"created_timestamp"`
	Price            string           `json:"price"`
	Volume           string           `json:"volume"`
	Direction        string           `json:"direction"`
	TokenReversed    MFlag            `json:"token_reversed"`
}

// -----------------------------------------------------------------------------

// Normalize derives created_timestamp from created_at when the service
// omitted it. Both are already in milliseconds after decode.
func (t *MTransaction) Normalize() {
	if t.CreatedTimestamp == 0 {
		t.CreatedTimestamp = t.CreatedAt
	}
}

// -----------------------------------------------------------------------------

// MTransactionsBatch is the per-pair element of a transactions push
// notification.
type MTransactionsBatch struct {
	Token0       string         `json:"token_0"`
	Token1       string         `json:"token_1"`
	Transactions []MTransaction `json:"transactions"`
}

// -----------------------------------------------------------------------------

// MTransactionQuery bounds a transaction range scan. Results are returned
// newest first, capped at Limit (<= 0 means no cap).
type MTransactionQuery struct {
	TimestampBegin int64 `json:"timestamp_begin"`
	TimestampEnd   int64 `json:"timestamp_end"`
	Limit          int   `json:"limit"`
}
