package tvm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphqlServer(t *testing.T, transactionsJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["query"], "transactions(")
		assert.Contains(t, body["query"], `direction: DESC`)

		_, _ = fmt.Fprintf(w, `{"data":{"transactions":%s}}`, transactionsJSON)
	}))
}

func TestClient_LatestTransactions(t *testing.T) {
	now := time.Now().Unix()
	server := graphqlServer(t, fmt.Sprintf(`[
		{"id":"tx-1","now":%d,"balance_delta":"0x0","account_addr":"0:acc",
		 "in_message":{"value":"0x12a05f200","src":"0:sender","dst":"0:receiver"}},
		{"id":"tx-no-message","now":%d,"balance_delta":"0x5f5e100","account_addr":"0:acc","in_message":null},
		{"id":"tx-zero","now":%d,"in_message":{"value":"0x0","src":"0:a","dst":"0:b"}},
		{"id":"tx-bad-hex","now":%d,"in_message":{"value":"0xzz","src":"0:a","dst":"0:b"}}
	]`, now, now, now, now))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Minute, time.Second)
	txs, err := client.LatestTransactions(context.Background(), 50)
	require.NoError(t, err)

	// only the fully-formed record survives
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].TxHash)
	assert.True(t, decimal.RequireFromString("5").Equal(txs[0].AmountNative), "0x12a05f200 nano is 5 tokens, got %s", txs[0].AmountNative)
	assert.Equal(t, "0:sender", txs[0].Sender)
	assert.Equal(t, "0:receiver", txs[0].Receiver)
	assert.Equal(t, now, txs[0].Timestamp)
}

func TestClient_RecentTransactions_BalanceDeltaFallbackAndWindow(t *testing.T) {
	now := time.Now().Unix()
	stale := now - 3600
	server := graphqlServer(t, fmt.Sprintf(`[
		{"id":"tx-message","now":%d,"in_message":{"value":"0x3b9aca00","src":"0:sender","dst":"0:receiver"}},
		{"id":"tx-delta","now":%d,"balance_delta":"0x77359400","account_addr":"0:acc","in_message":null},
		{"id":"tx-stale","now":%d,"in_message":{"value":"0x3b9aca00","src":"0:old","dst":"0:old"}}
	]`, now, now, stale))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Minute, time.Second)
	txs, err := client.RecentTransactions(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, txs, 2)
	assert.Equal(t, "tx-message", txs[0].TxHash)
	assert.True(t, decimal.NewFromInt(1).Equal(txs[0].AmountNative))

	assert.Equal(t, "tx-delta", txs[1].TxHash)
	assert.True(t, decimal.NewFromInt(2).Equal(txs[1].AmountNative))
	assert.Equal(t, "Unknown", txs[1].Sender)
	assert.Equal(t, "0:acc", txs[1].Receiver)
}

func TestClient_RecentTransactions_LimitApplied(t *testing.T) {
	now := time.Now().Unix()
	var records string
	for i := 0; i < 10; i++ {
		if i > 0 {
			records += ","
		}
		records += fmt.Sprintf(`{"id":"tx-%d","now":%d,"in_message":{"value":"0x3b9aca00","src":"0:a","dst":"0:b"}}`, i, now)
	}
	server := graphqlServer(t, "["+records+"]")
	defer server.Close()

	client := NewClient(server.URL, 5*time.Minute, time.Second)
	txs, err := client.RecentTransactions(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestClient_LatestTransactions_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Minute, time.Second)
	_, err := client.LatestTransactions(context.Background(), 50)
	require.ErrorIs(t, err, ErrHTTPResponse)
}

func TestClient_LatestTransactions_GraphqlError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"query too deep"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Minute, time.Second)
	_, err := client.LatestTransactions(context.Background(), 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query too deep")
}

func TestHexNanoToDecimal(t *testing.T) {
	testData := []struct {
		name     string
		hexValue string
		want     string
		wantErr  bool
	}{
		{name: "five tokens", hexValue: "0x12a05f200", want: "5"},
		{name: "one nano", hexValue: "0x1", want: "0.000000001"},
		{name: "zero", hexValue: "0x0", want: "0"},
		{name: "empty", hexValue: "", want: "0"},
		{name: "invalid", hexValue: "0xnope", wantErr: true},
	}

	for _, testRun := range testData {
		t.Run(testRun.name, func(t *testing.T) {
			got, err := hexNanoToDecimal(testRun.hexValue)
			if testRun.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(testRun.want).Equal(got), "got %s", got)
		})
	}
}
