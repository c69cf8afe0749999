package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const apiURL = "https://api.anthropic.com/v1/messages"

// Extractor is the extraction call contract. Implementations are treated as
// fallible remote calls; nothing they return is trusted before validation.
type Extractor interface {
	Extract(ctx context.Context, segmentText string, tc ThreadContext) (*Batch, error)
}

// ErrMalformedResponse marks a provider reply that was not valid batch JSON.
// It is retryable like any other provider failure.
var ErrMalformedResponse = errors.New("malformed extraction response")

// Client calls the model provider with a per-call timeout, a shared rate
// limiter, and capped exponential backoff with jitter.
type Client struct {
	apiKey      string
	model       string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// ClientOpts tunes the retry and rate behaviour; zero values pick defaults.
type ClientOpts struct {
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
	MaxRetries  int
	BaseBackoff time.Duration
}

func NewClient(apiKey, model string, opts ClientOpts, logger *slog.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 2
	}
	if opts.Burst == 0 {
		opts.Burst = 4
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	return &Client{
		apiKey:      apiKey,
		model:       model,
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.BaseBackoff,
		logger:      logger,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Extract runs one extraction call for a segment, retrying transient provider
// failures and malformed JSON up to the retry budget.
func (c *Client) Extract(ctx context.Context, segmentText string, tc ThreadContext) (*Batch, error) {
	user := fmt.Sprintf("Source platform: %s\nThread: %s\nContent:\n%s", tc.Platform, tc.ThreadID, segmentText)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := jitteredBackoff(c.baseBackoff, attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		batch, err := c.once(ctx, user)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("extraction attempt failed",
			"attempt", attempt+1,
			"thread", tc.ThreadID,
			"error", err,
		)
	}
	return nil, fmt.Errorf("extraction exhausted %d retries: %w", c.maxRetries, lastErr)
}

// jitteredBackoff doubles the base per attempt and adds up to half again in
// jitter. Sub-nanosecond jitter windows are skipped; rand.Int63n rejects a
// zero bound.
func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	backoff := base * time.Duration(1<<(attempt-1))
	if half := int64(backoff) / 2; half > 0 {
		backoff += time.Duration(rand.Int63n(half))
	}
	return backoff
}

func (c *Client) once(ctx context.Context, user string) (*Batch, error) {
	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	return ParseBatch(apiResp.Content[0].Text)
}

// ParseBatch decodes the model's JSON reply into a batch, defaulting any
// missing array to empty so downstream code never sees nil sections.
func ParseBatch(raw string) (*Batch, error) {
	raw = strings.TrimSpace(raw)
	// Models occasionally fence the JSON.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var b Batch
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if b.Decisions == nil {
		b.Decisions = []Candidate{}
	}
	if b.Risks == nil {
		b.Risks = []Candidate{}
	}
	if b.Actions == nil {
		b.Actions = []Candidate{}
	}
	if b.OpenQuestions == nil {
		b.OpenQuestions = []Candidate{}
	}
	if b.PeopleMap == nil {
		b.PeopleMap = map[string]PersonRef{}
	}
	return &b, nil
}
