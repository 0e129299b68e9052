package convai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	logger.Log = zaptest.NewLogger(t).Named("test")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("xi-api-key"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetchTranscript_TopLevelString(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"transcript":"agent: hi\nvisitor: I need a lawyer"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	transcript, err := client.FetchTranscript(context.Background(), "conv_1")

	assert.NoError(t, err)
	assert.Equal(t, "agent: hi\nvisitor: I need a lawyer", transcript)
}

func TestFetchTranscript_NestedUnderConversation(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"conversation":{"transcript":"hello there"}}`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	transcript, err := client.FetchTranscript(context.Background(), "conv_2")

	assert.NoError(t, err)
	assert.Equal(t, "hello there", transcript)
}

func TestFetchTranscript_NestedUnderData(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"data":{"transcript":"from data"}}`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	transcript, err := client.FetchTranscript(context.Background(), "conv_3")

	assert.NoError(t, err)
	assert.Equal(t, "from data", transcript)
}

func TestFetchTranscript_SegmentArray(t *testing.T) {
	body := `{"transcript":[
		{"role":"agent","message":"How can I help?"},
		{"role":"user","text":"I was rear-ended last week"},
		{"role":"agent"}
	]}`
	srv := newTestServer(t, http.StatusOK, body)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	transcript, err := client.FetchTranscript(context.Background(), "conv_4")

	assert.NoError(t, err)
	assert.Equal(t, "agent: How can I help?\nuser: I was rear-ended last week", transcript)
}

func TestFetchTranscript_NotReady(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"status":"processing","conversation":{"id":"conv_5"}}`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	transcript, err := client.FetchTranscript(context.Background(), "conv_5")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTranscriptNotReady)
	assert.Empty(t, transcript)
}

func TestFetchTranscript_EmptyStringNotReady(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"transcript":"   "}`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	_, err := client.FetchTranscript(context.Background(), "conv_6")

	assert.ErrorIs(t, err, apperrors.ErrTranscriptNotReady)
}

func TestFetchTranscript_UpstreamError(t *testing.T) {
	srv := newTestServer(t, http.StatusBadGateway, `{"error":"unavailable"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	_, err := client.FetchTranscript(context.Background(), "conv_7")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.NotErrorIs(t, err, apperrors.ErrTranscriptNotReady)
}

func TestFetchTranscript_MalformedBody(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `not json`)
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	_, err := client.FetchTranscript(context.Background(), "conv_8")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}
