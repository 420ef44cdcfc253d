// ABOUTME: HTTP collaborator that opens a Chat Completions SSE stream and feeds it to a fresh Aggregator.
// ABOUTME: Request bodies are built by the caller; Do retries the whole request with a new Aggregator per attempt.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultChatPath = "/chat/completions"

// Streamer posts streaming chat-completion requests to an OpenAI-compatible endpoint.
type Streamer struct {
	BaseURL    string
	Path       string
	APIKey     string
	Headers    map[string]string
	HTTPClient *http.Client
	Retry      RetryPolicy
	Logger     *zap.Logger

	// AggregatorOptions are applied to every Aggregator created by Do.
	AggregatorOptions []AggregatorOption
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithStreamerHTTPClient replaces the default HTTP client.
func WithStreamerHTTPClient(c *http.Client) StreamerOption {
	return func(s *Streamer) { s.HTTPClient = c }
}

// WithStreamerPath overrides the chat completions path.
func WithStreamerPath(path string) StreamerOption {
	return func(s *Streamer) { s.Path = path }
}

// WithStreamerHeader sets a header sent with every request.
func WithStreamerHeader(key, value string) StreamerOption {
	return func(s *Streamer) { s.Headers[key] = value }
}

// WithStreamerRetry sets the retry policy used by Do.
func WithStreamerRetry(p RetryPolicy) StreamerOption {
	return func(s *Streamer) { s.Retry = p }
}

// WithStreamerLogger sets the logger for request and retry logging.
func WithStreamerLogger(l *zap.Logger) StreamerOption {
	return func(s *Streamer) { s.Logger = l }
}

// WithStreamerAggregatorOptions sets options applied to each Aggregator.
func WithStreamerAggregatorOptions(opts ...AggregatorOption) StreamerOption {
	return func(s *Streamer) { s.AggregatorOptions = opts }
}

// NewStreamer returns a Streamer for baseURL, the API root including any
// version segment (for example https://api.openai.com/v1), authenticated with apiKey.
func NewStreamer(baseURL, apiKey string, opts ...StreamerOption) *Streamer {
	s := &Streamer{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Path:       defaultChatPath,
		APIKey:     apiKey,
		Headers:    make(map[string]string),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Retry:      NoRetryPolicy(),
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream sends body and returns the response stream as an EventSource.
// body must already request streaming; it is sent as JSON unchanged.
func (s *Streamer) Stream(ctx context.Context, body any) (EventSource, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+s.Path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-ID", requestID)
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{SDKError: SDKError{Message: "send request", Cause: err}}
	}
	s.Logger.Debug("stream opened",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}
	return NewSSESource(resp.Body), nil
}

// Do opens the stream and collects it into a Message. A failed attempt is
// retried according to the Streamer's policy only when no event had been
// appended yet; every attempt uses a new Aggregator since aggregation state
// cannot resume across connections.
func (s *Streamer) Do(ctx context.Context, body any) (*Message, error) {
	var msg *Message
	err := Retry(ctx, s.retryPolicy(), func(attempt int) error {
		msg = nil
		agg := NewAggregator(append([]AggregatorOption{WithLogger(s.Logger)}, s.AggregatorOptions...)...)
		src, err := s.Stream(ctx, body)
		if err != nil {
			return err
		}
		defer src.Close()

		var collectErr error
		msg, collectErr = Collect(ctx, src, agg)
		if collectErr != nil && agg.Events() > 0 {
			return permanent{collectErr}
		}
		return collectErr
	})
	if p, ok := err.(permanent); ok {
		err = p.err
	}
	return msg, err
}

func (s *Streamer) retryPolicy() RetryPolicy {
	p := s.Retry
	if p.OnRetry == nil {
		p.OnRetry = func(err error, attempt int, delay time.Duration) {
			s.Logger.Warn("retrying stream request",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}
	return p
}

// permanent marks an error that must not be retried even if its cause is
// retryable: events were already folded into a discarded aggregation.
type permanent struct{ err error }

func (p permanent) Error() string     { return p.err.Error() }
func (p permanent) Unwrap() error     { return p.err }
func (p permanent) IsRetryable() bool { return false }

// errorFromResponse builds a typed error from a non-200 response.
func errorFromResponse(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &NetworkError{SDKError: SDKError{Message: "read error response", Cause: err}}
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	message := fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	var code string
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		message = body.Error.Message
		code = body.Error.Type
		if c, ok := body.Error.Code.(string); ok && c != "" {
			code = c
		}
	}

	var retryAfter *float64
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			retryAfter = &secs
		}
	}
	return ErrorFromStatusCode(resp.StatusCode, message, code, json.RawMessage(raw), retryAfter)
}
