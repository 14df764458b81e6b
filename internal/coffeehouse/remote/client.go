// Package remote implements the CoffeeHouse engine and Lydia interfaces over
// the engine's JSON HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
	"github.com/intellivoid/coffeehouse-api/internal/metrics"
)

const (
	// DefaultBaseURL is the address of a locally running engine
	DefaultBaseURL = "http://127.0.0.1:5600"

	// MaxResponseSize caps how much of an engine response is read (8MB)
	MaxResponseSize = 8 * 1024 * 1024
)

// Config contains configuration for the remote client
type Config struct {
	BaseURL      string
	APIKey       string
	ClientConfig coffeehouse.ClientConfig
}

// Client implements coffeehouse.Engine and coffeehouse.Lydia
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new remote engine client
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("engine URL must be http or https: %q", config.BaseURL)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	// Set defaults
	if config.ClientConfig.MaxRetries == 0 {
		config.ClientConfig.MaxRetries = 3
	}
	if config.ClientConfig.RetryBaseDelay == 0 {
		config.ClientConfig.RetryBaseDelay = 200 * time.Millisecond
	}
	if config.ClientConfig.RequestTimeout == 0 {
		config.ClientConfig.RequestTimeout = 30 * time.Second
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.ClientConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// =============================================================================
// NLP
// =============================================================================

// Sentiment classifies text as positive, neutral or negative
func (c *Client) Sentiment(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	return c.classify(ctx, "nlp/sentiment", text)
}

// Emotion classifies the dominant emotion of text
func (c *Client) Emotion(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	return c.classify(ctx, "nlp/emotion", text)
}

// DetectLanguage identifies the language of text
func (c *Client) DetectLanguage(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	result, err := c.classify(ctx, "nlp/language_detection", text)
	if err != nil {
		return nil, err
	}
	if result.Label == "" {
		return nil, coffeehouse.WrapError("nlp/language_detection", coffeehouse.ErrLanguageUnidentifiable)
	}
	return result, nil
}

// SpamPrediction classifies text as ham or spam
func (c *Client) SpamPrediction(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	return c.classify(ctx, "nlp/spam_prediction", text)
}

// NamedEntities extracts named entities from text
func (c *Client) NamedEntities(ctx context.Context, text string) ([]coffeehouse.Entity, error) {
	var out struct {
		Entities []coffeehouse.Entity `json:"entities"`
	}
	if err := c.call(ctx, "nlp/named_entities", textRequest{Input: text}, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// PartOfSpeech tags each token of text
func (c *Client) PartOfSpeech(ctx context.Context, text string) ([]coffeehouse.Token, error) {
	var out struct {
		Tokens []coffeehouse.Token `json:"tokens"`
	}
	if err := c.call(ctx, "nlp/pos_tagging", textRequest{Input: text}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// SplitSentences splits text into sentences
func (c *Client) SplitSentences(ctx context.Context, text string) ([]coffeehouse.Sentence, error) {
	var out struct {
		Sentences []coffeehouse.Sentence `json:"sentences"`
	}
	if err := c.call(ctx, "nlp/sentence_split", textRequest{Input: text}, &out); err != nil {
		return nil, err
	}
	return out.Sentences, nil
}

// ClassifyNSFW scores an image for unsafe content
func (c *Client) ClassifyNSFW(ctx context.Context, image []byte, contentType string) (*coffeehouse.NSFWResult, error) {
	req := imageRequest{
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(image),
	}
	var out coffeehouse.NSFWResult
	if err := c.call(ctx, "image/nsfw_classification", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) classify(ctx context.Context, operation, text string) (*coffeehouse.Classification, error) {
	var out coffeehouse.Classification
	if err := c.call(ctx, operation, textRequest{Input: text}, &out); err != nil {
		return nil, err
	}
	if out.Predictions == nil {
		out.Predictions = map[string]float64{}
	}
	return &out, nil
}

// =============================================================================
// Lydia
// =============================================================================

// CreateSession starts a conversation in the given language
func (c *Client) CreateSession(ctx context.Context, language string) (*coffeehouse.Session, error) {
	var out sessionResponse
	if err := c.call(ctx, "lydia/create_session", sessionRequest{Language: language}, &out); err != nil {
		return nil, err
	}
	return &coffeehouse.Session{
		ID:        out.SessionID,
		Language:  out.Language,
		Available: out.Available,
		Expires:   time.Unix(out.Expires, 0).UTC(),
		CreatedAt: time.Unix(out.Created, 0).UTC(),
	}, nil
}

// Think sends input to a session and returns the bot's reply
func (c *Client) Think(ctx context.Context, sessionID, input string) (*coffeehouse.ThinkResult, error) {
	var out coffeehouse.ThinkResult
	if err := c.call(ctx, "lydia/think", thinkRequest{SessionID: sessionID, Input: input}, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		out.SessionID = sessionID
	}
	return &out, nil
}

// =============================================================================
// Transport
// =============================================================================

// call posts body to the operation endpoint, retrying transient failures,
// and decodes the results object into out.
func (c *Client) call(ctx context.Context, operation string, body, out any) error {
	start := time.Now()

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return coffeehouse.WrapError(operation, fmt.Errorf("marshal request: %w", err))
	}

	raw, err := c.executeWithRetry(ctx, operation, bodyBytes)
	metrics.EngineCall(operation, callStatus(err), time.Since(start))
	if err != nil {
		return coffeehouse.WrapError(operation, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return coffeehouse.WrapError(operation, fmt.Errorf("parse results: %w", err))
	}
	return nil
}

// executeWithRetry executes a request with exponential backoff retry
func (c *Client) executeWithRetry(ctx context.Context, operation string, body []byte) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.ClientConfig.MaxRetries; attempt++ {
		results, err := c.executeRequest(ctx, operation, body)
		if err == nil {
			return results, nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !coffeehouse.IsRetryable(err) {
			return nil, err
		}

		if attempt >= c.config.ClientConfig.MaxRetries {
			break
		}

		delay := c.config.ClientConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		c.logger.Info("Retrying engine request",
			"operation", operation,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// executeRequest executes a single request. The body is rebuilt from bytes
// on every attempt.
func (c *Client) executeRequest(ctx context.Context, operation string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, coffeehouse.ErrTimeout
		}
		// Network errors are typically retryable
		return nil, coffeehouse.ErrUnavailable
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var envelope apiResponse
	_ = json.Unmarshal(respBytes, &envelope)

	if resp.StatusCode != http.StatusOK || !envelope.Status {
		return nil, mapHTTPError(resp.StatusCode, envelope)
	}
	return envelope.Results, nil
}

// mapHTTPError maps engine status codes to coffeehouse errors
func mapHTTPError(statusCode int, envelope apiResponse) error {
	switch envelope.Error.Type {
	case "session_not_found":
		return coffeehouse.ErrSessionNotFound
	case "language_unidentifiable":
		return coffeehouse.ErrLanguageUnidentifiable
	case "not_ready":
		return coffeehouse.ErrUnavailable
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return coffeehouse.ErrUnauthorized
	case http.StatusNotFound:
		return coffeehouse.ErrSessionNotFound
	case http.StatusTooManyRequests:
		return coffeehouse.ErrRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return coffeehouse.ErrTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", coffeehouse.ErrInvalidInput, envelope.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return coffeehouse.ErrUnavailable
	case http.StatusOK:
		return fmt.Errorf("engine reported failure: %s", envelope.Error.Message)
	default:
		return fmt.Errorf("engine error (status %d): %s", statusCode, envelope.Error.Message)
	}
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, coffeehouse.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, coffeehouse.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// API request/response types

type textRequest struct {
	Input string `json:"input"`
}

type imageRequest struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

type sessionRequest struct {
	Language string `json:"language"`
}

type thinkRequest struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Available bool   `json:"available"`
	Expires   int64  `json:"expires"`
	Created   int64  `json:"created"`
}

type apiResponse struct {
	Status  bool            `json:"status"`
	Results json.RawMessage `json:"results"`
	Error   apiError        `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
