// Package mailer is a thin client for the transactional email API used for
// notification fan-out. Delivery is best effort; the caller decides whether a
// send failure matters.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Sender delivers one email. Satisfied by Client and by test fakes.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Client posts messages to the email vendor's REST API.
type Client struct {
	baseURL     string
	apiKey      string
	fromAddress string
	httpClient  *http.Client
}

// NewClient creates a mailer client. A zero timeout falls back to the default.
func NewClient(baseURL, apiKey, fromAddress string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		fromAddress: fromAddress,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send delivers a single plain-text message.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	reqBody, err := json.Marshal(sendRequest{
		From:    c.fromAddress,
		To:      to,
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email send to %s failed: %w", to, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned %d for %s", resp.StatusCode, to)
	}
	return nil
}
