// Package convai is a thin client for the conversational-AI vendor's
// conversation API. The pipeline uses it to fetch the finished transcript
// after the conversation-ended webhook arrives.
package convai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

const defaultRequestTimeout = 15 * time.Second

// Client calls the vendor's REST API. One attempt per call; the webhook
// redelivery is the retry mechanism, not this client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a vendor client. A zero timeout falls back to the default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchTranscript fetches the conversation detail and extracts the transcript.
// The vendor has shipped several response shapes; the transcript is looked up at
// the top level, under "conversation", and under "data", in that order, and
// may be either a plain string or an array of role/message segments.
// A response with no transcript in any location returns
// apperrors.ErrTranscriptNotReady: the conversation exists but transcription
// has not finished.
func (c *Client) FetchTranscript(ctx context.Context, conversationID string) (string, error) {
	url := fmt.Sprintf("%s/conversations/%s", c.baseURL, conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build transcript request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: transcript fetch for %s: %w", apperrors.ErrUpstream, conversationID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading transcript response: %w", apperrors.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: conversation API returned %d for %s",
			apperrors.ErrUpstream, resp.StatusCode, conversationID)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: malformed conversation response: %w", apperrors.ErrUpstream, err)
	}

	logger.FromContext(ctx).Debug("Fetched conversation detail",
		zap.String("conversation_id", conversationID),
		zap.String("response_size", utils.ByteCountSI(len(body))))

	for _, candidate := range []interface{}{
		payload["transcript"],
		nested(payload, "conversation", "transcript"),
		nested(payload, "data", "transcript"),
	} {
		if transcript, ok := renderTranscript(candidate); ok {
			return transcript, nil
		}
	}

	return "", fmt.Errorf("%w: conversation %s", apperrors.ErrTranscriptNotReady, conversationID)
}

// nested returns payload[outer][inner] when outer is an object.
func nested(payload map[string]interface{}, outer, inner string) interface{} {
	obj, ok := payload[outer].(map[string]interface{})
	if !ok {
		return nil
	}
	return obj[inner]
}

// renderTranscript normalizes the two vendor transcript shapes to plain text.
func renderTranscript(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	case []interface{}:
		lines := make([]string, 0, len(v))
		for _, entry := range v {
			seg, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			text, _ := seg["message"].(string)
			if text == "" {
				text, _ = seg["text"].(string)
			}
			if text == "" {
				continue
			}
			role, _ := seg["role"].(string)
			if role == "" {
				role = "speaker"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", role, text))
		}
		if len(lines) == 0 {
			return "", false
		}
		return strings.Join(lines, "\n"), true
	default:
		return "", false
	}
}
