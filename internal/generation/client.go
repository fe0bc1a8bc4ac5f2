package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"craefto/internal/services"
	"craefto/internal/stage"
)

const (
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryAttempts  = 3
	defaultBaseURL        = "http://127.0.0.1:8000"
	defaultAudience       = "SaaS professionals"
	defaultStyle          = "professional"
	maxErrorBody          = 512
)

var (
	// ErrTransport marks network and decoding failures talking to the backend.
	ErrTransport = services.ErrTransport
	// ErrRejected marks a well-formed backend response that reported success=false.
	ErrRejected = services.ErrRejected
)

// Generator produces a content package for a topic.
type Generator interface {
	Generate(ctx context.Context, topic string, kind stage.Kind) (Result, error)
}

// Result mirrors the backend response envelope.
type Result struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Attempts  int             `json:"-"`
}

// Decode unmarshals the data payload into target.
func (r Result) Decode(target any) error {
	if len(r.Data) == 0 {
		return errors.New("generation result: empty data")
	}
	return json.Unmarshal(r.Data, target)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, topic string, kind stage.Kind) (Result, error)

// Generate calls fn.
func (fn GeneratorFunc) Generate(ctx context.Context, topic string, kind stage.Kind) (Result, error) {
	return fn(ctx, topic, kind)
}

// Config captures the runtime settings required to talk to the backend.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	TargetAudience string
	Style          string
}

// Client posts generation requests to the CRAEFTO backend.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a backend client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
			TargetAudience: strings.TrimSpace(cfg.TargetAudience),
			Style:          strings.TrimSpace(cfg.Style),
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.TargetAudience == "" {
		client.cfg.TargetAudience = defaultAudience
	}
	if client.cfg.Style == "" {
		client.cfg.Style = defaultStyle
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

// BaseURL reports the backend root the client talks to.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.cfg.BaseURL
}

type generateRequest struct {
	Topic            string `json:"topic"`
	ContentType      string `json:"content_type"`
	Style            string `json:"style,omitempty"`
	Tone             string `json:"tone,omitempty"`
	TargetAudience   string `json:"target_audience,omitempty"`
	IncludeHeroImage bool   `json:"include_hero_image"`
}

type envelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Errors    []string        `json:"errors"`
	Error     string          `json:"error"`
	Detail    json.RawMessage `json:"detail"`
	RequestID string          `json:"request_id"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("generation request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Generate requests a content package of the given kind. A response the
// backend produced, even a failing one, yields a Result with Success=false and
// a nil error; the error return is reserved for transport failures.
func (c *Client) Generate(ctx context.Context, topic string, kind stage.Kind) (Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Result{}, services.Wrap(services.ErrValidation, "content", "generate", "Topic is required", nil)
	}
	if !kind.Valid() {
		return Result{}, services.Wrap(services.ErrValidation, "content", "generate",
			fmt.Sprintf("Unsupported content kind %q", kind), nil)
	}
	payload := generateRequest{
		Topic:            topic,
		ContentType:      string(kind),
		Style:            c.cfg.Style,
		Tone:             c.cfg.Style,
		TargetAudience:   c.cfg.TargetAudience,
		IncludeHeroImage: kind == stage.KindBlog,
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "api", "generate", string(kind))
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "content", "build url",
			"Generation base_url is invalid", err)
	}
	return c.generateWithRetry(ctx, endpoint, payload)
}

func (c *Client) generateWithRetry(ctx context.Context, endpoint string, payload generateRequest) (Result, error) {
	attempts := c.retryAttempts()
	requestID := strings.TrimSpace(requestIDFromContext(ctx))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.sendOnce(ctx, endpoint, requestID, payload)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return c.finalResult(err, attempt)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return Result{Attempts: attempt}, fmt.Errorf("%w: generation retry: %w", ErrTransport, err)
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return c.finalResult(lastErr, attempts)
}

// finalResult converts the last attempt's failure into the caller-facing
// shape: backend status errors become rejected results, anything else is a
// transport error.
func (c *Client) finalResult(err error, attempts int) (Result, error) {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		result := Result{Success: false, Attempts: attempts}
		if env, ok := decodeEnvelope([]byte(statusErr.Body)); ok {
			result.Message = env.Message
			result.RequestID = env.RequestID
			result.Error = env.failureMessage()
		}
		if result.Error == "" {
			result.Error = fmt.Sprintf("backend returned http %d: %s", statusErr.StatusCode, truncate(statusErr.Body))
		}
		return result, nil
	}
	if errors.Is(err, ErrTransport) {
		return Result{Attempts: attempts}, err
	}
	return Result{Attempts: attempts}, fmt.Errorf("%w: %w", ErrTransport, err)
}

func (c *Client) sendOnce(ctx context.Context, endpoint, requestID string, payload generateRequest) (Result, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("generation request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Result{}, fmt.Errorf("generation request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("generation request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("generation request: read body (timeout=%s): %w", c.timeoutDuration(), err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return Result{}, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	env, ok := decodeEnvelope(body)
	if !ok || env.Success == nil {
		return Result{}, fmt.Errorf("%w: generation request: decode response: %s", ErrTransport, truncate(string(body)))
	}
	result := Result{
		Success:   *env.Success,
		Message:   strings.TrimSpace(env.Message),
		Data:      env.Data,
		RequestID: firstNonEmpty(env.RequestID, resp.Header.Get("X-Request-ID"), requestID),
	}
	if !result.Success {
		result.Error = env.failureMessage()
		if result.Error == "" {
			result.Error = "backend reported failure without detail"
		}
	}
	return result, nil
}

func decodeEnvelope(body []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, false
	}
	return env, true
}

// failureMessage picks the most specific failure text the backend supplied.
func (e envelope) failureMessage() string {
	for _, msg := range e.Errors {
		if trimmed := strings.TrimSpace(msg); trimmed != "" {
			return trimmed
		}
	}
	if detail := detailString(e.Detail); detail != "" {
		return detail
	}
	return firstNonEmpty(e.Error, e.Message)
}

// detailString accepts FastAPI style detail values, which are either a string
// or a list of validation objects carrying a msg field.
func detailString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if msg := strings.TrimSpace(item.Msg); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// HealthCheck verifies the backend answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "health")
	if err != nil {
		return fmt.Errorf("generation health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("generation health: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: generation health: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: generation health: http %d: %s", ErrTransport, resp.StatusCode, truncate(string(body)))
	}
	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		status := strings.ToLower(strings.TrimSpace(parsed.Status))
		if status != "" && status != "healthy" && status != "ok" {
			return fmt.Errorf("generation health: backend reports %q", parsed.Status)
		}
	}
	return nil
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil {
		return defaultHTTPTimeout
	}
	if c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c == nil {
		return 1
	}
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := defaultRetryBaseDelay
	maxDelay := defaultRetryMaxDelay
	if c != nil {
		if c.retryBaseDelay >= 0 {
			base = c.retryBaseDelay
		}
		if c.retryMaxDelay > 0 {
			maxDelay = c.retryMaxDelay
		}
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := defaultRetryMaxDelay
	if c != nil && c.retryMaxDelay > 0 {
		maxDelay = c.retryMaxDelay
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c != nil && c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := services.RequestIDFromContext(ctx)
	return id
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncate(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	runes := []rune(clean)
	if len(runes) > maxErrorBody {
		return string(runes[:maxErrorBody]) + "..."
	}
	return clean
}
