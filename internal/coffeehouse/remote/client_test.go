package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL: srv.URL,
		APIKey:  "engine-key",
		ClientConfig: coffeehouse.ClientConfig{
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
			RequestTimeout: time.Second,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func writeResults(w http.ResponseWriter, results any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "results": results})
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://engine"}, slog.Default())
	assert.Error(t, err)
}

func TestClient_Sentiment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nlp/sentiment", r.URL.Path)
		assert.Equal(t, "Bearer engine-key", r.Header.Get("Authorization"))

		var body textRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I love this", body.Input)

		writeResults(w, map[string]any{
			"label":       "positive",
			"predictions": map[string]float64{"positive": 0.9, "neutral": 0.07, "negative": 0.03},
		})
	})

	result, err := c.Sentiment(context.Background(), "I love this")
	require.NoError(t, err)
	assert.Equal(t, "positive", result.Label)
	assert.InDelta(t, 0.9, result.Predictions["positive"], 1e-9)
}

func TestClient_RetriesUnavailable(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeResults(w, map[string]any{"tokens": []coffeehouse.Token{{Text: "Hi", Tag: "UH"}}})
	})

	tokens, err := c.PartOfSpeech(context.Background(), "Hi")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "UH", tokens[0].Tag)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_UnavailableAfterRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":false,"error":{"type":"not_ready","message":"warming up"}}`))
	})

	_, err := c.Emotion(context.Background(), "hello")
	assert.ErrorIs(t, err, coffeehouse.ErrUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NonRetryableErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"session not found", http.StatusNotFound, `{"status":false,"error":{"type":"session_not_found"}}`, coffeehouse.ErrSessionNotFound},
		{"unauthorized", http.StatusUnauthorized, `{}`, coffeehouse.ErrUnauthorized},
		{"bad input", http.StatusBadRequest, `{"status":false,"error":{"message":"too long"}}`, coffeehouse.ErrInvalidInput},
		{"language", http.StatusOK, `{"status":false,"error":{"type":"language_unidentifiable"}}`, coffeehouse.ErrLanguageUnidentifiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Think(context.Background(), "abc", "hello")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_DetectLanguageEmptyLabel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeResults(w, map[string]any{"label": "", "predictions": map[string]float64{}})
	})

	_, err := c.DetectLanguage(context.Background(), "???")
	assert.ErrorIs(t, err, coffeehouse.ErrLanguageUnidentifiable)
}

func TestClient_CreateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lydia/create_session", r.URL.Path)
		writeResults(w, map[string]any{
			"session_id": "0123456789abcdef0123456789abcdef",
			"language":   "en",
			"available":  true,
			"expires":    1700003600,
			"created":    1700000000,
		})
	})

	session, err := c.CreateSession(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", session.ID)
	assert.True(t, session.Available)
	assert.Equal(t, int64(1700003600), session.Expires.Unix())
}

func TestClient_ClassifyNSFW(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body imageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "image/png", body.ContentType)
		assert.Equal(t, "AQID", body.Data)
		writeResults(w, coffeehouse.NSFWResult{SafePrediction: 0.8, UnsafePrediction: 0.2})
	})

	result, err := c.ClassifyNSFW(context.Background(), []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.False(t, result.IsNSFW)
	assert.InDelta(t, 0.8, result.SafePrediction, 1e-9)
}
