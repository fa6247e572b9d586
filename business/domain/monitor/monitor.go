package monitor

import (
	"context"
	"fmt"

	"github.com/chainwatch/go-whale-monitor/business/domain/price"
	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/chainwatch/go-whale-monitor/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TxSource fetches recent transaction records from one network's external
// data source, normalized to native token amounts in descending recency
// order.
type TxSource interface {
	LatestTransactions(ctx context.Context, limit int) ([]entities.Transaction, error)
	RecentTransactions(ctx context.Context, limit int) ([]entities.Transaction, error)
}

// PriceProvider returns the current USD quote for the network's token.
type PriceProvider interface {
	Quote(ctx context.Context) (price.Quote, error)
}

// ThresholdProvider returns the latest committed threshold for a network.
type ThresholdProvider interface {
	Threshold(network string) entities.Threshold
}

// Monitor is one independently polled network.
type Monitor interface {
	NetworkName() string
	FetchLatestTransactions(ctx context.Context) ([]entities.Transaction, error)
	FetchAndFilter(ctx context.Context) ([]entities.Transaction, error)
	FetchRecentAnyAmount(ctx context.Context, limit int) []entities.Transaction
}

// NetworkMonitor implements Monitor for a single network. It owns its dedup
// window and price cache exclusively; the orchestrator only invokes its
// methods and never touches its state.
type NetworkMonitor struct {
	network       string
	source        TxSource
	prices        PriceProvider
	dedup         *Dedup
	thresholds    ThresholdProvider
	systemAddrs   map[string]bool
	fetchLimit    int
	admitUnpriced bool
	logger        *zap.SugaredLogger
}

func NewNetworkMonitor(
	network string,
	source TxSource,
	prices PriceProvider,
	dedup *Dedup,
	thresholds ThresholdProvider,
	systemAddresses []string,
	fetchLimit int,
	admitUnpriced bool,
	logger *zap.SugaredLogger,
) *NetworkMonitor {
	return &NetworkMonitor{
		network:       network,
		source:        source,
		prices:        prices,
		dedup:         dedup,
		thresholds:    thresholds,
		systemAddrs:   util.ToSet(systemAddresses),
		fetchLimit:    fetchLimit,
		admitUnpriced: admitUnpriced,
		logger:        logger,
	}
}

func (m *NetworkMonitor) NetworkName() string {
	return m.network
}

// FetchLatestTransactions fetches the newest records from the source and
// derives their USD value from the current quote. A missing price is not
// fatal: records are returned unpriced and flagged so USD filtering can
// suppress them.
func (m *NetworkMonitor) FetchLatestTransactions(ctx context.Context) ([]entities.Transaction, error) {
	quote, err := m.prices.Quote(ctx)
	if err != nil {
		m.logger.Warnw("no price available, records will be unpriced", "network", m.network, "error", err)
		quote = price.Quote{}
	}

	txs, err := m.source.LatestTransactions(ctx, m.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching %s transactions: %w", m.network, err)
	}

	return m.applyQuote(txs, quote), nil
}

// FetchAndFilter fetches the latest transactions, drops protocol-internal
// transfers, removes already seen hashes and applies the network's current
// threshold, preserving source order throughout.
func (m *NetworkMonitor) FetchAndFilter(ctx context.Context) ([]entities.Transaction, error) {
	txs, err := m.FetchLatestTransactions(ctx)
	if err != nil {
		return nil, err
	}

	threshold := m.thresholds.Threshold(m.network)

	filtered := make([]entities.Transaction, 0, len(txs))
	for _, tx := range txs {
		// system address transfers never consume a dedup slot
		if m.systemAddrs[tx.Sender] || m.systemAddrs[tx.Receiver] {
			continue
		}
		if !m.dedup.IsNew(tx.TxHash) {
			continue
		}
		if !threshold.Passes(tx, m.admitUnpriced) {
			continue
		}
		filtered = append(filtered, tx)
	}

	if len(filtered) > 0 {
		m.logger.Infow("found new transactions above threshold",
			"network", m.network, "count", len(filtered), "threshold", threshold.Amount, "mode", threshold.Mode)
	}

	return filtered, nil
}

// FetchRecentAnyAmount returns up to limit recent transactions ignoring
// threshold and dedup. Failures degrade to an empty list; this path only
// feeds the dashboard.
func (m *NetworkMonitor) FetchRecentAnyAmount(ctx context.Context, limit int) []entities.Transaction {
	quote, err := m.prices.Quote(ctx)
	if err != nil {
		quote = price.Quote{}
	}

	txs, err := m.source.RecentTransactions(ctx, limit)
	if err != nil {
		m.logger.Warnw("fetching recent transactions failed", "network", m.network, "error", err)
		return nil
	}

	txs = m.applyQuote(txs, quote)
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs
}

func (m *NetworkMonitor) applyQuote(txs []entities.Transaction, quote price.Quote) []entities.Transaction {
	out := make([]entities.Transaction, 0, len(txs))
	for _, tx := range txs {
		tx.Network = m.network
		if quote.Price.IsPositive() {
			tx.AmountUsd = tx.AmountNative.Mul(quote.Price)
			tx.PriceVerified = quote.Verified
		} else {
			tx.AmountUsd = decimal.Zero
			tx.PriceVerified = false
		}
		out = append(out, tx)
	}
	return out
}
