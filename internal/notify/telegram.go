package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers messages through the Telegram Bot API.
// Subscriber IDs are chat IDs.
type TelegramSender struct {
	token   string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a sender for the given bot token. A missing
// token is a construction-time error.
func NewTelegramSender(token string, timeout time.Duration) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		token:   token,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetAPIBase overrides the Telegram API base URL. Intended for tests.
func (t *TelegramSender) SetAPIBase(base string) {
	t.apiBase = base
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts one message to one chat via the sendMessage method.
func (t *TelegramSender) SendMessage(ctx context.Context, subscriberID string, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: subscriberID, Text: text})
	if err != nil {
		return fmt.Errorf("telegram: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send to %s: %w", subscriberID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var apiResp sendMessageResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("telegram: parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram: send to %s failed (HTTP %d): %s", subscriberID, resp.StatusCode, apiResp.Description)
	}
	return nil
}
