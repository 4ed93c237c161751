package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Push service frames.
// -----------------------------------------------------------------------------

const (
	NotificationKline        = "kline"
	NotificationTransactions = "transactions"
)

// MNotification is the envelope of every push frame. Value is decoded
// lazily per notification kind.
type MNotification struct {
	Notification string          `json:"notification"`
	Value        json.RawMessage `json:"value"`
}

// -----------------------------------------------------------------------------

// MKlinePayload is the value of a "kline" notification: fresh points per
// interval, for one or more token pairs.
type MKlinePayload map[Interval][]MPointsBatch

// MTransactionsPayload is the value of a "transactions" notification.
type MTransactionsPayload []MTransactionsBatch
