package entities

import (
	"github.com/shopspring/decimal"
)

// Transaction is a normalized transfer record as produced by a network
// adapter. AmountUsd is derived from the price at fetch time and is only
// meaningful when PriceVerified is true.
type Transaction struct {
	Network       string
	TxHash        string
	AmountNative  decimal.Decimal
	AmountUsd     decimal.Decimal
	PriceVerified bool
	Sender        string
	Receiver      string
	Timestamp     int64
}

type ThresholdMode string

const (
	// ThresholdNative compares the transaction amount in the network's own token units.
	ThresholdNative ThresholdMode = "native"
	// ThresholdUsd compares the USD value derived from the price at fetch time.
	ThresholdUsd ThresholdMode = "usd"
)

// Threshold is the minimum amount a transaction must meet to be notified.
// The comparison is inclusive: amount >= Amount passes.
type Threshold struct {
	Mode   ThresholdMode
	Amount decimal.Decimal
}

// Passes reports whether the transaction meets the threshold.
//
// USD comparisons require a verified price. When the price is unverified the
// transaction is suppressed unless admitUnpriced is set; in that case a
// fallback-derived USD estimate is still compared against the threshold and
// a record without any USD estimate is admitted as-is.
func (t Threshold) Passes(tx Transaction, admitUnpriced bool) bool {
	switch t.Mode {
	case ThresholdUsd:
		if tx.PriceVerified {
			return tx.AmountUsd.GreaterThanOrEqual(t.Amount)
		}
		if !admitUnpriced {
			return false
		}
		if tx.AmountUsd.IsPositive() {
			return tx.AmountUsd.GreaterThanOrEqual(t.Amount)
		}
		return true
	default:
		return tx.AmountNative.GreaterThanOrEqual(t.Amount)
	}
}
