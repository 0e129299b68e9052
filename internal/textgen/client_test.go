package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/casefunnel/lead-intake/internal/apperrors"
)

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"case_category\":\"other\"}"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", time.Second)
	out, err := client.Complete(context.Background(), "You extract leads.", "transcript text")

	assert.NoError(t, err)
	assert.Equal(t, `{"case_category":"other"}`, out)
}

func TestComplete_APIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", time.Second)
	_, err := client.Complete(context.Background(), "sys", "user")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestComplete_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", time.Second)
	_, err := client.Complete(context.Background(), "sys", "user")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", time.Second)
	_, err := client.Complete(context.Background(), "sys", "user")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}
