// Package subscan fetches substrate transfer records from a Subscan API
// instance.
package subscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrHTTPResponse = errors.New("error in HTTP response")
	ErrAPICode      = errors.New("subscan API returned a non-zero code")
)

// planckDigits is the substrate token precision: transfer amounts arrive as
// integer strings in 1e-18 units.
const planckDigits = 18

// Client reads transfers from one Subscan deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, requestTimeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type transfersResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Transfers []transfer `json:"transfers"`
	} `json:"data"`
}

type transfer struct {
	Hash           string `json:"hash"`
	Amount         string `json:"amount"`
	From           string `json:"from"`
	To             string `json:"to"`
	BlockTimestamp int64  `json:"block_timestamp"`
}

// LatestTransactions returns the newest transfers, skipping records whose
// amount fails to parse.
func (c *Client) LatestTransactions(ctx context.Context, limit int) ([]entities.Transaction, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/scan/transfers", nil)
	if err != nil {
		return nil, fmt.Errorf("creating transfers request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetching transfers: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrHTTPResponse, response.StatusCode)
	}

	var payload transfersResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding transfers response: %w", err)
	}
	if payload.Code != 0 {
		return nil, fmt.Errorf("%w: code %d message %q", ErrAPICode, payload.Code, payload.Message)
	}

	transfers := payload.Data.Transfers
	if len(transfers) > limit {
		transfers = transfers[:limit]
	}

	txs := make([]entities.Transaction, 0, len(transfers))
	for _, record := range transfers {
		raw, err := decimal.NewFromString(record.Amount)
		if err != nil {
			continue
		}
		txs = append(txs, entities.Transaction{
			TxHash:       record.Hash,
			AmountNative: raw.Shift(-planckDigits),
			Sender:       orUnknown(record.From),
			Receiver:     orUnknown(record.To),
			Timestamp:    record.BlockTimestamp,
		})
	}
	return txs, nil
}

// RecentTransactions returns nothing: the transfers endpoint is too often
// unavailable to feed the dashboard reliably.
func (c *Client) RecentTransactions(context.Context, int) ([]entities.Transaction, error) {
	return nil, nil
}

func orUnknown(addr string) string {
	if addr == "" {
		return "Unknown"
	}
	return addr
}
