// Package api is the HTTP client for the CodeCoach tutoring backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client issues request/response calls against the backend's /api routes.
type Client struct {
	baseURL    string
	http       *http.Client
	logger     *zap.Logger
	timeout    time.Duration
	feedbackV2 bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The client is not
// modified; WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithFeedbackV2 routes code feedback to /feedback_v2.
func WithFeedbackV2(on bool) Option {
	return func(c *Client) { c.feedbackV2 = on }
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// BaseURL returns the backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// StartSession creates a session on the backend.
func (c *Client) StartSession(ctx context.Context, req StartRequest) (*StartResponse, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/start_session", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, &TransportError{Op: "start session", Err: errors.New("response has no sessionId")}
	}
	return &resp, nil
}

// NextStage asks the backend to advance the session to its next stage.
func (c *Client) NextStage(ctx context.Context, sessionID string) (*TransitionResponse, error) {
	var resp TransitionResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "stage/next"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.NewStage == "" {
		return nil, &TransportError{Op: "next stage", Err: errors.New("response has no newStage")}
	}
	return &resp, nil
}

// Complete finishes the learning session and returns the summary.
func (c *Client) Complete(ctx context.Context, sessionID string) (*CompleteResponse, error) {
	var resp CompleteResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "complete"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Explain requests an explanation of concept. The concept travels as a
// single escaped path segment.
func (c *Client) Explain(ctx context.Context, sessionID, concept string) (*ExplainResponse, error) {
	var resp ExplainResponse
	p := sessionPath(sessionID, "explain/"+url.PathEscape(concept))
	if err := c.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Hint requests a hint for query.
func (c *Client) Hint(ctx context.Context, sessionID, query string) (*HintResponse, error) {
	var resp HintResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "hint"), HintRequest{HintRequest: query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Challenge requests a mini-challenge for the current stage.
func (c *Client) Challenge(ctx context.Context, sessionID string) (*ChallengeData, error) {
	var resp ChallengeResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "challenge"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.ChallengeData == nil {
		return nil, &BusinessError{Message: "no challenge returned"}
	}
	return resp.ChallengeData, nil
}

// CheckChallenge submits answer for the active challenge.
func (c *Client) CheckChallenge(ctx context.Context, sessionID, answer string) (*CheckResult, error) {
	var resp CheckResult
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "challenge/check"), CheckRequest{Answer: answer}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Feedback requests a review of code.
func (c *Client) Feedback(ctx context.Context, sessionID, code string) (*FeedbackResponse, error) {
	endpoint := "feedback"
	if c.feedbackV2 {
		endpoint = "feedback_v2"
	}
	var resp FeedbackResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, endpoint), FeedbackRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the server's view of the session's progress.
func (c *Client) Status(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "status"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func sessionPath(sessionID, rest string) string {
	return "/api/session/" + url.PathEscape(sessionID) + "/" + rest
}

type enveloped interface {
	envelope() *Envelope
}

// do sends body as JSON (when non-nil) and decodes the response into out.
// Non-2xx responses become *HTTPError, success:false becomes
// *BusinessError, and anything that prevents reading a response becomes
// *TransportError. Context cancellation is returned unwrapped.
func (c *Client) do(ctx context.Context, method, path string, body any, out enveloped) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "read " + path, Err: err}
	}

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return &HTTPError{Status: resp.StatusCode, Detail: eb.text()}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: "decode " + path, Err: err}
	}
	return out.envelope().failure()
}
