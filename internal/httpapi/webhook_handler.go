package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/usecase"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// terminalEventTypes are the webhook event types that mean the conversation
// is over and a transcript should exist. The vendor has renamed these across
// API versions; all spellings stay accepted. The value reports whether the
// event already guarantees a finalized transcript: end-of-call events race
// transcript finalization and get a grace period, transcription-ready events
// do not.
var terminalEventTypes = map[string]bool{
	"conversation.ended":              false,
	"conversation_ended":              false,
	"ended":                           false,
	"conversation.completed":          false,
	"completed":                       false,
	"application.transcription_ready": true,
	"transcription_ready":             true,
}

// WebhookHandler receives conversation lifecycle webhooks from the
// conversational-AI vendor.
type WebhookHandler struct {
	intake *usecase.IntakeService
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(intake *usecase.IntakeService) *WebhookHandler {
	return &WebhookHandler{intake: intake}
}

// HandleConversationWebhook is POST /webhooks/conversation. Non-terminal
// events are acknowledged and ignored. Terminal events run the full pipeline
// synchronously; a not-yet-ready transcript is also acknowledged with 200 so
// the vendor's redelivery acts as the retry schedule.
func (h *WebhookHandler) HandleConversationWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apperrors.ErrBadRequest)
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		observer.IncWebhooksFailed("convai", "unknown")
		c.JSON(http.StatusBadRequest, errorBody{Error: "request body is not valid JSON"})
		return
	}

	eventType := findEventType(payload)
	observer.IncWebhooksReceived("convai", eventType)
	log := logger.FromContext(c.Request.Context()).With(zap.String("event_type", eventType))

	transcriptReady, terminal := terminalEventTypes[eventType]
	if !terminal {
		log.Info("Ignoring non-terminal conversation webhook")
		c.JSON(http.StatusOK, gin.H{"message": "Webhook received"})
		return
	}

	conversationID := findConversationID(payload)
	if conversationID == "" {
		observer.IncWebhooksFailed("convai", eventType)
		log.Warn("Terminal webhook carries no conversation id",
			zap.Strings("payload_keys", topLevelKeys(payload)))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "no conversation id found in webhook payload",
			"payload_keys": topLevelKeys(payload),
		})
		return
	}

	result, err := h.intake.ProcessConversationEnded(c.Request.Context(), conversationID, transcriptReady)
	if err != nil {
		if apperrors.IsTranscriptNotReadyError(err) {
			observer.IncWebhooksProcessed("convai", eventType)
			c.JSON(http.StatusOK, gin.H{
				"message":         "Transcript not ready yet, waiting for redelivery",
				"conversation_id": conversationID,
			})
			return
		}
		observer.IncWebhooksFailed("convai", eventType)
		respondError(c, err)
		return
	}

	observer.IncWebhooksProcessed("convai", eventType)
	c.JSON(http.StatusOK, gin.H{
		"message": "Transcript stored and lead extraction triggered",
		"result":  result,
	})
}

// findEventType finds the event type under the keys the vendor has used.
func findEventType(payload map[string]interface{}) string {
	for _, key := range []string{"event_type", "type", "event"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// findConversationID finds the conversation id at the top level or nested
// under the containers different webhook versions have used.
func findConversationID(payload map[string]interface{}) string {
	if id := idFromObject(payload); id != "" {
		return id
	}
	for _, container := range []string{"data", "conversation", "payload", "object", "properties"} {
		if obj, ok := payload[container].(map[string]interface{}); ok {
			if id := idFromObject(obj); id != "" {
				return id
			}
		}
	}
	return ""
}

func idFromObject(obj map[string]interface{}) string {
	for _, key := range []string{"conversation_id", "conversationId", "id"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func topLevelKeys(payload map[string]interface{}) []string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
