package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
	storagemock "github.com/casefunnel/lead-intake/internal/storage/mock"
	"github.com/casefunnel/lead-intake/internal/usecase"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()
}

type stubFetcher struct {
	transcript string
	err        error
}

func (s *stubFetcher) FetchTranscript(_ context.Context, _ string) (string, error) {
	return s.transcript, s.err
}

type stubCompletion struct {
	output string
	err    error
}

func (s *stubCompletion) Complete(_ context.Context, _, _ string) (string, error) {
	return s.output, s.err
}

const stubExtraction = `{
	"case_category": "immigration",
	"location": "Miami, FL",
	"urgency_score": 6,
	"contact_name": "Luis Prieto",
	"contact_email": "luis@example.com",
	"contact_phone": "",
	"summary": "Visa overstay, needs status adjustment advice."
}`

type webhookTestEnv struct {
	conversations *storagemock.ConversationRepoMock
	leads         *storagemock.LeadRepoMock
	firms         *storagemock.FirmRepoMock
	fetcher       *stubFetcher
	router        *gin.Engine
}

func newWebhookTestEnv(t *testing.T) *webhookTestEnv {
	t.Helper()
	return newWebhookTestEnvWithDelay(t, 0)
}

func newWebhookTestEnvWithDelay(t *testing.T, transcriptDelay time.Duration) *webhookTestEnv {
	t.Helper()
	env := &webhookTestEnv{
		conversations: new(storagemock.ConversationRepoMock),
		leads:         new(storagemock.LeadRepoMock),
		firms:         new(storagemock.FirmRepoMock),
		fetcher:       &stubFetcher{transcript: "agent: hello\nuser: I overstayed my visa"},
	}
	matches := new(storagemock.MatchRepoMock)
	allocator := usecase.NewAllocator(env.firms, matches, env.leads,
		usecase.EligibilityScorer{}, noopSubmitter{}, noopPublisher{})
	intake := usecase.NewIntakeService(env.conversations, env.leads, env.fetcher,
		usecase.NewExtractor(&stubCompletion{output: stubExtraction}), allocator, nil, transcriptDelay)

	env.router = gin.New()
	env.router.Use(RequestID())
	env.router.POST("/webhooks/conversation", NewWebhookHandler(intake).HandleConversationWebhook)
	return env
}

type noopSubmitter struct{}

func (noopSubmitter) SubmitTask(_ usecase.NotificationTask) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context, _ string, _ interface{}) {}

func postWebhook(router *gin.Engine, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/conversation", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_NonTerminalEventAcknowledged(t *testing.T) {
	env := newWebhookTestEnv(t)

	rec := postWebhook(env.router, `{"event_type": "conversation.started", "conversation_id": "conv_1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Webhook received")
	env.conversations.AssertNotCalled(t, "FindByExternalID", mock.Anything, mock.Anything)
}

func TestWebhook_TerminalEventRunsPipeline(t *testing.T) {
	env := newWebhookTestEnv(t)
	conversation := model.NewConversation(&model.Conversation{ExternalID: "conv_done"})

	env.conversations.On("FindByExternalID", mock.Anything, "conv_done").Return(conversation, nil)
	env.conversations.On("SetTranscript", mock.Anything, "conv_done", mock.Anything).Return(conversation, nil)
	env.leads.On("FindByConversationID", mock.Anything, conversation.ID).Return(nil, apperrors.ErrNotFound)
	env.conversations.On("ApplyExtraction", mock.Anything, "conv_done", mock.Anything, mock.Anything).Return(nil)
	env.leads.On("Save", mock.Anything, mock.AnythingOfType("model.Lead")).Return(nil)
	env.firms.On("FindEligible", mock.Anything, "immigration").Return([]model.LawFirm{}, nil)

	rec := postWebhook(env.router, `{"event_type": "conversation.ended", "conversation_id": "conv_done"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lead extraction triggered")

	var body struct {
		Result struct {
			LeadID string `json:"lead_id"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Result.LeadID)
}

func TestWebhook_AcceptsAlternatePayloadShapes(t *testing.T) {
	env := newWebhookTestEnv(t)
	conversation := model.NewConversation(&model.Conversation{ExternalID: "conv_nested"})

	env.conversations.On("FindByExternalID", mock.Anything, "conv_nested").Return(conversation, nil)
	env.conversations.On("SetTranscript", mock.Anything, "conv_nested", mock.Anything).Return(conversation, nil)
	env.leads.On("FindByConversationID", mock.Anything, conversation.ID).Return(nil, apperrors.ErrNotFound)
	env.conversations.On("ApplyExtraction", mock.Anything, "conv_nested", mock.Anything, mock.Anything).Return(nil)
	env.leads.On("Save", mock.Anything, mock.AnythingOfType("model.Lead")).Return(nil)
	env.firms.On("FindEligible", mock.Anything, mock.Anything).Return([]model.LawFirm{}, nil)

	rec := postWebhook(env.router,
		`{"type": "transcription_ready", "data": {"conversationId": "conv_nested"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_TranscriptionReadySkipsGraceDelay(t *testing.T) {
	delay := 500 * time.Millisecond
	for _, eventType := range []string{"application.transcription_ready", "transcription_ready"} {
		t.Run(eventType, func(t *testing.T) {
			env := newWebhookTestEnvWithDelay(t, delay)
			conversation := model.NewConversation(&model.Conversation{ExternalID: "conv_ready"})

			env.conversations.On("FindByExternalID", mock.Anything, "conv_ready").Return(conversation, nil)
			env.conversations.On("SetTranscript", mock.Anything, "conv_ready", mock.Anything).Return(conversation, nil)
			env.leads.On("FindByConversationID", mock.Anything, conversation.ID).Return(nil, apperrors.ErrNotFound)
			env.conversations.On("ApplyExtraction", mock.Anything, "conv_ready", mock.Anything, mock.Anything).Return(nil)
			env.leads.On("Save", mock.Anything, mock.AnythingOfType("model.Lead")).Return(nil)
			env.firms.On("FindEligible", mock.Anything, mock.Anything).Return([]model.LawFirm{}, nil)

			start := time.Now()
			rec := postWebhook(env.router,
				`{"event_type": "`+eventType+`", "conversation_id": "conv_ready"}`)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Less(t, time.Since(start), delay)
		})
	}
}

func TestWebhook_TerminalEventWithoutIDRejected(t *testing.T) {
	env := newWebhookTestEnv(t)

	rec := postWebhook(env.router, `{"event_type": "conversation.ended", "foo": "bar"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no conversation id")
	assert.Contains(t, rec.Body.String(), "payload_keys")
}

func TestWebhook_InvalidJSONRejected(t *testing.T) {
	env := newWebhookTestEnv(t)

	rec := postWebhook(env.router, `{broken`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_TranscriptNotReadyAcknowledged(t *testing.T) {
	env := newWebhookTestEnv(t)
	env.fetcher.transcript = ""
	env.fetcher.err = apperrors.ErrTranscriptNotReady

	rec := postWebhook(env.router, `{"event_type": "conversation.ended", "conversation_id": "conv_wait"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")
}

func TestWebhook_UpstreamFailureIs502(t *testing.T) {
	env := newWebhookTestEnv(t)
	env.fetcher.transcript = ""
	env.fetcher.err = apperrors.ErrUpstream

	rec := postWebhook(env.router, `{"event_type": "conversation.ended", "conversation_id": "conv_down"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFindConversationID(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"top level snake", `{"conversation_id": "c1"}`, "c1"},
		{"top level camel", `{"conversationId": "c2"}`, "c2"},
		{"bare id", `{"id": "c3"}`, "c3"},
		{"under data", `{"data": {"conversation_id": "c4"}}`, "c4"},
		{"under conversation", `{"conversation": {"id": "c5"}}`, "c5"},
		{"under object", `{"object": {"conversationId": "c6"}}`, "c6"},
		{"missing", `{"event_type": "ended"}`, ""},
		{"blank ignored", `{"conversation_id": "  "}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tc.payload), &payload))
			assert.Equal(t, tc.want, findConversationID(payload))
		})
	}
}
