package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrHTTPResponse    = errors.New("error in HTTP response")
	ErrInvalidResponse = errors.New("invalid CoinGecko response")
	ErrMissingUSDPrice = errors.New("missing USD price in CoinGecko response")
)

// Client fetches current USD prices for one coin id from the CoinGecko
// simple/price endpoint.
type Client struct {
	baseURL    string
	coinID     string
	httpClient *http.Client
}

func NewClient(baseURL, coinID string, requestTimeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		coinID:  coinID,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// FetchPrice returns the current USD price of the configured coin.
func (c *Client) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	requestURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(c.coinID))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating price request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching price from CoinGecko: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("%w: status code %d", ErrHTTPResponse, response.StatusCode)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decoding response body: %v", ErrInvalidResponse, err)
	}

	quotes, ok := payload[c.coinID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: coin %q not in response", ErrMissingUSDPrice, c.coinID)
	}
	usd, ok := quotes["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: coin %q has no usd quote", ErrMissingUSDPrice, c.coinID)
	}
	if !usd.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: usd price must be positive", ErrMissingUSDPrice)
	}

	return usd, nil
}
