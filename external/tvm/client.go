// Package tvm fetches transactions from TVM-based networks (Everscale,
// Venom) through their GraphQL endpoints.
package tvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrHTTPResponse = errors.New("error in HTTP response")

// nanoDigits is the TVM native token precision: values on the wire are
// hex-encoded nano amounts.
const nanoDigits = 9

const transactionsQuery = `query {
    transactions(
        limit: %d,
        orderBy: {path: "now", direction: DESC}
    ) {
        id
        now
        balance_delta
        account_addr
        in_message {
            value
            src
            dst
        }
    }
}`

// Client reads recent transactions from one TVM GraphQL endpoint.
type Client struct {
	graphqlURL    string
	recencyWindow time.Duration
	httpClient    *http.Client
	now           func() time.Time
}

func NewClient(graphqlURL string, recencyWindow time.Duration, requestTimeout time.Duration) *Client {
	return &Client{
		graphqlURL:    graphqlURL,
		recencyWindow: recencyWindow,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		now: time.Now,
	}
}

type inMessage struct {
	Value string `json:"value"`
	Src   string `json:"src"`
	Dst   string `json:"dst"`
}

type transaction struct {
	ID           string     `json:"id"`
	Now          int64      `json:"now"`
	BalanceDelta string     `json:"balance_delta"`
	AccountAddr  string     `json:"account_addr"`
	InMessage    *inMessage `json:"in_message"`
}

type queryResponse struct {
	Data struct {
		Transactions []transaction `json:"transactions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// LatestTransactions returns the newest value-bearing transfers, skipping
// records without an inbound message and records whose value fails to parse.
func (c *Client) LatestTransactions(ctx context.Context, limit int) ([]entities.Transaction, error) {
	records, err := c.query(ctx, limit)
	if err != nil {
		return nil, err
	}

	txs := make([]entities.Transaction, 0, len(records))
	for _, record := range records {
		if record.InMessage == nil || record.InMessage.Value == "" {
			continue
		}
		amount, err := hexNanoToDecimal(record.InMessage.Value)
		if err != nil || amount.IsZero() {
			continue
		}
		txs = append(txs, entities.Transaction{
			TxHash:       record.ID,
			AmountNative: amount,
			Sender:       orUnknown(record.InMessage.Src),
			Receiver:     orUnknown(record.InMessage.Dst),
			Timestamp:    record.Now,
		})
	}
	return txs, nil
}

// RecentTransactions returns up to limit transfers from the recency window,
// falling back to the account balance delta when a record carries no inbound
// message.
func (c *Client) RecentTransactions(ctx context.Context, limit int) ([]entities.Transaction, error) {
	// over-fetch so the window cutoff still leaves enough records
	records, err := c.query(ctx, limit*20)
	if err != nil {
		return nil, err
	}

	minTime := c.now().Add(-c.recencyWindow).Unix()

	txs := make([]entities.Transaction, 0, limit)
	for _, record := range records {
		if len(txs) >= limit {
			break
		}
		if record.Now < minTime {
			continue
		}

		var amount decimal.Decimal
		var sender, receiver string
		if record.InMessage == nil || record.InMessage.Value == "" {
			amount, err = hexNanoToDecimal(record.BalanceDelta)
			if err != nil || !amount.IsPositive() {
				continue
			}
			sender = "Unknown"
			receiver = orUnknown(record.AccountAddr)
		} else {
			amount, err = hexNanoToDecimal(record.InMessage.Value)
			if err != nil || amount.IsZero() {
				continue
			}
			sender = orUnknown(record.InMessage.Src)
			receiver = orUnknown(record.InMessage.Dst)
		}

		txs = append(txs, entities.Transaction{
			TxHash:       record.ID,
			AmountNative: amount,
			Sender:       sender,
			Receiver:     receiver,
			Timestamp:    record.Now,
		})
	}
	return txs, nil
}

func (c *Client) query(ctx context.Context, limit int) ([]transaction, error) {
	body, err := json.Marshal(map[string]string{
		"query": fmt.Sprintf(transactionsQuery, limit),
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling graphql query: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating graphql request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("querying graphql endpoint: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrHTTPResponse, response.StatusCode)
	}

	var payload queryResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", payload.Errors[0].Message)
	}

	return payload.Data.Transactions, nil
}

// hexNanoToDecimal converts a "0x..." hex nano amount to token units.
func hexNanoToDecimal(hexValue string) (decimal.Decimal, error) {
	if hexValue == "" || hexValue == "0x0" {
		return decimal.Zero, nil
	}
	trimmed := strings.TrimPrefix(hexValue, "0x")
	nano, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid hex amount %q", hexValue)
	}
	return decimal.NewFromBigInt(nano, -nanoDigits), nil
}

func orUnknown(addr string) string {
	if addr == "" {
		return "Unknown"
	}
	return addr
}
