package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/chainwatch/go-whale-monitor/business/domain/price"
	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ErrMock = errors.New("mock error")

type MockTxSource struct {
	latest      []entities.Transaction
	recent      []entities.Transaction
	shouldError bool
}

func (ms *MockTxSource) LatestTransactions(_ context.Context, _ int) ([]entities.Transaction, error) {
	if ms.shouldError {
		return nil, ErrMock
	}
	return ms.latest, nil
}

func (ms *MockTxSource) RecentTransactions(_ context.Context, _ int) ([]entities.Transaction, error) {
	if ms.shouldError {
		return nil, ErrMock
	}
	return ms.recent, nil
}

type MockPriceProvider struct {
	quote       price.Quote
	shouldError bool
}

func (mp *MockPriceProvider) Quote(_ context.Context) (price.Quote, error) {
	if mp.shouldError {
		return price.Quote{}, entities.ErrPriceUnavailable
	}
	return mp.quote, nil
}

type FixedThresholds struct {
	threshold entities.Threshold
}

func (ft *FixedThresholds) Threshold(_ string) entities.Threshold {
	return ft.threshold
}

func nativeTx(hash string, amount float64, sender, receiver string) entities.Transaction {
	return entities.Transaction{
		TxHash:       hash,
		AmountNative: decimal.NewFromFloat(amount),
		Sender:       sender,
		Receiver:     receiver,
		Timestamp:    1744610180,
	}
}

func newTestMonitor(t *testing.T, source TxSource, prices PriceProvider, threshold entities.Threshold, systemAddrs []string, admitUnpriced bool) *NetworkMonitor {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewNetworkMonitor(
		"Everscale", source, prices, NewDedup(1000),
		&FixedThresholds{threshold: threshold}, systemAddrs, 50, admitUnpriced, logger.Sugar(),
	)
}

func TestNetworkMonitor_NativeThresholdIsInclusive(t *testing.T) {
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-1", 999.99, "0:aa", "0:bb"),
		nativeTx("tx-2", 1000, "0:cc", "0:dd"),
		nativeTx("tx-3", 1000.01, "0:ee", "0:ff"),
	}}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.NewFromInt(1000)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)

	got, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tx-2", got[0].TxHash)
	assert.Equal(t, "tx-3", got[1].TxHash)
}

func TestNetworkMonitor_UsdThresholdExcludesSmallTransfer(t *testing.T) {
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-small", 40, "0:aa", "0:bb"), // $80 at $2
		nativeTx("tx-large", 60, "0:cc", "0:dd"), // $120 at $2
	}}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdUsd, Amount: decimal.NewFromInt(100)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)

	got, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tx-large", got[0].TxHash)
	assert.True(t, got[0].AmountUsd.Equal(decimal.NewFromInt(120)))
}

func TestNetworkMonitor_SystemAddressNeverConsumesDedupSlot(t *testing.T) {
	elector := "-1:3333333333333333333333333333333333333333333333333333333333333333"
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-stake", 500000, elector, "0:bb"),
	}}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.Zero}

	dedup := NewDedup(1000)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	m := NewNetworkMonitor("Everscale", source, prices, dedup,
		&FixedThresholds{threshold: threshold}, []string{elector}, 50, false, logger.Sugar())

	got, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, dedup.Len())

	// the same hash from a regular sender is still admitted later
	source.latest = []entities.Transaction{nativeTx("tx-stake", 500000, "0:aa", "0:bb")}
	got, err = m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestNetworkMonitor_DuplicateHashDispatchedOnlyOnce(t *testing.T) {
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-1", 5000, "0:aa", "0:bb"),
	}}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.NewFromInt(1000)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)

	first, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the source re-returns the same transaction next cycle
	second, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestNetworkMonitor_PreservesSourceOrder(t *testing.T) {
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-newest", 3000, "0:aa", "0:bb"),
		nativeTx("tx-skip", 1, "0:ee", "0:ff"),
		nativeTx("tx-middle", 2000, "0:cc", "0:dd"),
		nativeTx("tx-oldest", 1000, "0:11", "0:22"),
	}}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.NewFromInt(1000)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)

	got, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)

	var hashes []string
	for _, tx := range got {
		hashes = append(hashes, tx.TxHash)
	}
	if diff := cmp.Diff([]string{"tx-newest", "tx-middle", "tx-oldest"}, hashes); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}
}

func TestNetworkMonitor_UnpricedRecordsSuppressedFromUsdFiltering(t *testing.T) {
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-1", 1000000, "0:aa", "0:bb"),
	}}
	prices := &MockPriceProvider{shouldError: true}
	threshold := entities.Threshold{Mode: entities.ThresholdUsd, Amount: decimal.NewFromInt(100)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)
	got, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNetworkMonitor_AdmitUnpricedAllowsRecordsWithoutPrice(t *testing.T) {
	source := &MockTxSource{latest: []entities.Transaction{
		nativeTx("tx-1", 1000000, "0:aa", "0:bb"),
	}}
	prices := &MockPriceProvider{shouldError: true}
	threshold := entities.Threshold{Mode: entities.ThresholdUsd, Amount: decimal.NewFromInt(100)}

	m := newTestMonitor(t, source, prices, threshold, nil, true)
	got, err := m.FetchAndFilter(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].PriceVerified)
}

func TestNetworkMonitor_FetchFailureIsDistinguishable(t *testing.T) {
	source := &MockTxSource{shouldError: true}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.Zero}

	m := newTestMonitor(t, source, prices, threshold, nil, false)
	_, err := m.FetchAndFilter(context.Background())
	require.ErrorIs(t, err, ErrMock)
}

func TestNetworkMonitor_FetchRecentAnyAmountDegradesToEmpty(t *testing.T) {
	source := &MockTxSource{shouldError: true}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.NewFromInt(1000)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)
	got := m.FetchRecentAnyAmount(context.Background(), 5)
	assert.Empty(t, got)
}

func TestNetworkMonitor_FetchRecentAnyAmountIgnoresThreshold(t *testing.T) {
	source := &MockTxSource{recent: []entities.Transaction{
		nativeTx("tx-1", 1, "0:aa", "0:bb"),
		nativeTx("tx-2", 2, "0:cc", "0:dd"),
		nativeTx("tx-3", 3, "0:ee", "0:ff"),
	}}
	prices := &MockPriceProvider{quote: price.Quote{Price: decimal.NewFromFloat(2.0), Verified: true}}
	threshold := entities.Threshold{Mode: entities.ThresholdNative, Amount: decimal.NewFromInt(1000000)}

	m := newTestMonitor(t, source, prices, threshold, nil, false)
	got := m.FetchRecentAnyAmount(context.Background(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "tx-1", got[0].TxHash)
}
