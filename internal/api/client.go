package api

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
)

var (
	// ErrAPIUnavailable reports that no daemon answered at the configured bind address.
	ErrAPIUnavailable = errors.New("daemon API unavailable")
	// ErrConflict matches 409 responses: a run is already active or still running.
	ErrConflict = errors.New("conflict")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
	State   *RunState
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon api returned status %d", e.Code)
	}
	return fmt.Sprintf("daemon api returned status %d: %s", e.Code, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Code == http.StatusConflict
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// LogQuery selects a page of the event log.
type LogQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	Tail   bool
	Level  string
	Source string
}

// NewClient builds a client for the daemon listening on bind. An empty bind
// yields a nil client whose methods return ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout - follow mode blocks waiting for events until caller cancels.
		http: &http.Client{},
	}, nil
}

// StartRun submits a new run. On 409 the returned state is the active run and
// the error matches ErrConflict.
func (c *Client) StartRun(ctx context.Context, topic, kind string) (RunState, error) {
	var resp StateResponse
	err := c.do(ctx, http.MethodPost, "/api/runs", nil, StartRunRequest{Topic: topic, Kind: kind}, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.State != nil {
			return *statusErr.State, err
		}
		return RunState{}, err
	}
	return resp.State, nil
}

// State fetches the current run snapshot.
func (c *Client) State(ctx context.Context) (RunState, error) {
	var resp StateResponse
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, nil, &resp); err != nil {
		return RunState{}, err
	}
	return resp.State, nil
}

// Reset clears a terminal run. It fails with ErrConflict while a run is active.
func (c *Client) Reset(ctx context.Context) (ActionResponse, error) {
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/reset", nil, nil, &resp)
	return resp, err
}

// Discard abandons the active run, if any.
func (c *Client) Discard(ctx context.Context) (ActionResponse, error) {
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/discard", nil, nil, &resp)
	return resp, err
}

// Logs fetches event log entries after q.Since.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if strings.TrimSpace(q.Level) != "" {
		values.Set("level", q.Level)
	}
	if strings.TrimSpace(q.Source) != "" {
		values.Set("source", q.Source)
	}
	var resp LogStreamResponse
	if err := c.do(ctx, http.MethodGet, "/api/logs", values, nil, &resp); err != nil {
		return LogStreamResponse{}, err
	}
	return resp, nil
}

// Content lists saved content packages, newest first.
func (c *Client) Content(ctx context.Context, kind string, limit int, withBody bool) ([]ContentPackage, error) {
	values := url.Values{}
	if strings.TrimSpace(kind) != "" {
		values.Set("kind", kind)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if withBody {
		values.Set("body", "1")
	}
	var resp ContentListResponse
	if err := c.do(ctx, http.MethodGet, "/api/content", values, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ContentItem fetches one saved package including its body.
func (c *Client) ContentItem(ctx context.Context, id string) (ContentPackage, error) {
	var resp ContentPackage
	if err := c.do(ctx, http.MethodGet, "/api/content/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return ContentPackage{}, err
	}
	return resp, nil
}

// History lists recorded runs, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]RunRecord, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var resp RunHistoryResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/history", values, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Status fetches daemon status including preflight results.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp); err != nil {
		return DaemonStatus{}, err
	}
	return resp, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (ActionResponse, error) {
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode}
		var payload ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
			statusErr.Message = payload.Error
			statusErr.State = payload.State
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
