// Package telegram talks to the Telegram Bot API for sending alerts and long
// polling chat commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chainwatch/go-whale-monitor/business/domain/command"
	"github.com/pkg/errors"
)

var (
	ErrHTTPResponse = errors.New("error in HTTP response")
	ErrAPIResponse  = errors.New("telegram API returned an error")
)

// Client is a minimal Bot API client. Messages are sent as HTML with link
// previews disabled.
type Client struct {
	baseURL     string
	token       string
	pollTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(baseURL, token string, pollTimeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		pollTimeout: pollTimeout,
		httpClient: &http.Client{
			// long polls hold the connection open for pollTimeout
			Timeout: pollTimeout + 10*time.Second,
		},
	}
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage delivers one HTML message to a chat.
func (c *Client) SendMessage(ctx context.Context, destination, text string) error {
	payload := map[string]any{
		"chat_id":                  destination,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	_, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return fmt.Errorf("sending message to chat %s: %w", destination, err)
	}
	return nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// PollUpdates long-polls for chat updates with an id of at least offset.
// Updates without a text message are skipped but still advance the offset
// through their id.
func (c *Client) PollUpdates(ctx context.Context, offset int64) ([]command.Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	result, err := c.call(ctx, "getUpdates", payload)
	if err != nil {
		return nil, fmt.Errorf("polling updates: %w", err)
	}

	var raw []update
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}

	updates := make([]command.Update, 0, len(raw))
	for _, u := range raw {
		if u.Message == nil || u.Message.Text == "" {
			updates = append(updates, command.Update{ID: u.UpdateID})
			continue
		}
		updates = append(updates, command.Update{
			ID:     u.UpdateID,
			ChatID: strconv.FormatInt(u.Message.Chat.ID, 10),
			Text:   u.Message.Text,
		})
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", method, err)
	}

	requestURL := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer response.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", ErrHTTPResponse, method, err)
	}
	if !parsed.Ok {
		return nil, fmt.Errorf("%w: %s", ErrAPIResponse, parsed.Description)
	}
	return parsed.Result, nil
}
