package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func testClient(srv *httptest.Server) *HTTPClient {
	cfg := DefaultHTTPConfig("test-key")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	return NewHTTPClient(cfg)
}

func TestComplete(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.1, req.Temperature)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Write([]byte(completionBody("  hello  ")))
	})

	out, err := testClient(srv).Complete(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out, "whitespace trimmed")
}

func TestCompleteWithSystem_SendsSystemMessage(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "you are terse", req.Messages[0].Content)

		w.Write([]byte(completionBody("ok")))
	})

	_, err := testClient(srv).CompleteWithSystem(context.Background(), "you are terse", "hi")
	require.NoError(t, err)
}

func TestComplete_MissingAPIKey(t *testing.T) {
	cfg := DefaultHTTPConfig("")
	client := NewHTTPClient(cfg)

	_, err := client.Complete(context.Background(), "hi")

	var oErr *Error
	require.ErrorAs(t, err, &oErr)
	assert.False(t, oErr.Retryable)
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("recovered")))
	})

	out, err := testClient(srv).Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request"}}`))
	})

	_, err := testClient(srv).Complete(context.Background(), "hi")

	var oErr *Error
	require.ErrorAs(t, err, &oErr)
	assert.Equal(t, int32(1), calls.Load(), "4xx other than 429 must not retry")
}

func TestComplete_ContextCanceledDuringBackoff(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := testClient(srv).Complete(ctx, "hi")

	var oErr *Error
	require.ErrorAs(t, err, &oErr)
	assert.ErrorIs(t, oErr.Err, context.DeadlineExceeded)
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := testClient(srv).Complete(context.Background(), "hi")
	assert.Error(t, err)
}

func TestSetModel(t *testing.T) {
	client := NewHTTPClient(DefaultHTTPConfig("k"))
	assert.Equal(t, "gpt-4o", client.Model())

	client.SetModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", client.Model())
}
