// Package formatter sends one transcript chunk to an OpenAI-compatible chat
// completion API and returns its speaker-labeled rewrite. Every call retries
// throttling and transient failures with exponential backoff and classifies
// the final outcome into an apierr.Kind.
package formatter

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/alnah/speakerfmt/internal/apierr"
	"github.com/alnah/speakerfmt/internal/prompt"
	"github.com/alnah/speakerfmt/internal/report"
)

// Default client configuration.
const (
	DefaultMaxRetries = apierr.DefaultMaxAttempts
	DefaultBaseDelay  = apierr.DefaultBaseDelay
	DefaultMaxDelay   = apierr.DefaultMaxDelay

	// DefaultTimeout bounds a single API call, independently of backoff.
	DefaultTimeout = 2 * time.Minute
)

// chatCompleter is an internal interface for OpenAI chat completion.
// *openai.Client implements this implicitly.
// This allows injecting fakes in tests.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Compile-time interface compliance check.
var _ chatCompleter = (*openai.Client)(nil)

// Result is the outcome of formatting one chunk. It is all-or-nothing:
// Text is empty whenever Err is set.
type Result struct {
	ChunkIndex int
	Text       string
	Attempts   int
	Kind       apierr.Kind
	Err        error
}

// Succeeded reports whether the chunk was formatted.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Client formats chunks through the chat completion API.
type Client struct {
	client     chatCompleter
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
	limiter    *rate.Limiter
	reporter   report.Reporter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets the total number of attempts per chunk. Values < 1 mean one attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = max(n, 1)
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.baseDelay = base
		}
		if max > 0 {
			c.maxDelay = max
		}
	}
}

// WithTimeout bounds each API call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPace spaces consecutive API calls by at least interval. Zero disables pacing.
func WithPace(interval time.Duration) Option {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithReporter sets where attempt and retry events go.
func WithReporter(r report.Reporter) Option {
	return func(c *Client) {
		c.reporter = report.OrDiscard(r)
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint (including the /v1 suffix).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets the HTTP client used by the API client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// withChatCompleter sets a custom chat completer (for testing).
func withChatCompleter(cc chatCompleter) Option {
	return func(c *Client) {
		c.client = cc
	}
}

// New creates a Client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		timeout:    DefaultTimeout,
		reporter:   report.Discard,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Build the API client after options are applied (base URL may be customized).
	if c.client == nil {
		cfg := openai.DefaultConfig(apiKey)
		if c.baseURL != "" {
			cfg.BaseURL = c.baseURL
		}
		if c.httpClient != nil {
			cfg.HTTPClient = c.httpClient
		}
		c.client = openai.NewClientWithConfig(cfg)
	}
	return c
}

// FormatChunk formats one chunk. total is the number of chunks in the run and
// is only used to label events.
func (c *Client) FormatChunk(ctx context.Context, req prompt.Request, total int) Result {
	chunkNum := req.Chunk.Index + 1
	emit := func(level report.Level, msg string, attrs ...slog.Attr) {
		c.reporter.Emit(report.Event{Level: level, Chunk: chunkNum, Total: total, Message: msg, Attrs: attrs})
	}

	cfg := apierr.RetryConfig{
		MaxAttempts: c.maxRetries,
		BaseDelay:   c.baseDelay,
		MaxDelay:    c.maxDelay,
		OnAttempt: func(attempt, maxAttempts int) {
			emit(report.LevelDebug, "calling API", slog.Int("attempt", attempt), slog.Int("of", maxAttempts))
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			emit(report.LevelWarning, apierr.KindOf(err).String()+", retrying",
				slog.Int("attempt", attempt), slog.Int("of", c.maxRetries),
				slog.Duration("delay", delay), slog.String("error", err.Error()))
		},
	}

	chatReq := req.ChatRequest()
	text, attempts, err := apierr.RetryWithBackoff(ctx, cfg, func(ctx context.Context, _ int) (string, error) {
		return c.call(ctx, chatReq, emit)
	}, apierr.IsRetryable)

	res := Result{
		ChunkIndex: req.Chunk.Index,
		Attempts:   attempts,
		Kind:       apierr.KindOf(err),
		Err:        err,
	}
	if err == nil {
		res.Text = text
	}
	return res
}

// call performs one paced, time-bounded API request.
func (c *Client) call(ctx context.Context, req openai.ChatCompletionRequest, emit func(report.Level, string, ...slog.Attr)) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", classifyError(ctx, err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	resp, err := c.client.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return "", classifyError(ctx, err)
	}
	emit(report.LevelDebug, "API call completed", slog.Duration("took", c.now().Sub(start)))

	return extractText(resp)
}
