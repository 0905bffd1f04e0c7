package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// ErrServerClosed is returned by Conn.Read when the server ended the
// channel with a normal closure, as it does for an invalid session.
var ErrServerClosed = errors.New("stream closed by server")

// MalformedFrameError wraps a frame that could not be decoded.
type MalformedFrameError struct {
	Data []byte
	Err  error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %v", e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// Conn is one open chat channel.
type Conn interface {
	// Read blocks for the next inbound frame.
	Read(ctx context.Context) (Frame, error)
	// Send writes user text as a plain text frame.
	Send(ctx context.Context, text string) error
	Close() error
}

// Dialer opens a chat channel bound to a session.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// IDPlaceholder marks where the session id goes in a stream URL template.
const IDPlaceholder = "{id}"

// URLFromBase derives the stream URL template from the HTTP base URL:
// http becomes ws, https becomes wss, and /ws/chat/{id} is appended.
func URLFromBase(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	return u.String() + "/ws/chat/" + IDPlaceholder, nil
}

// WSDialer dials the chat websocket.
type WSDialer struct {
	template   string
	httpClient *http.Client
	readLimit  int64
}

// DialerOption configures a WSDialer.
type DialerOption func(*WSDialer)

// WithDialHTTPClient sets the client used for the websocket handshake.
func WithDialHTTPClient(hc *http.Client) DialerOption {
	return func(d *WSDialer) { d.httpClient = hc }
}

// WithReadLimit caps the size of one inbound frame in bytes.
func WithReadLimit(n int64) DialerOption {
	return func(d *WSDialer) {
		if n > 0 {
			d.readLimit = n
		}
	}
}

// NewWSDialer creates a dialer for template, which must contain {id}.
func NewWSDialer(template string, opts ...DialerOption) (*WSDialer, error) {
	if !strings.Contains(template, IDPlaceholder) {
		return nil, fmt.Errorf("stream url %q has no %s placeholder", template, IDPlaceholder)
	}
	d := &WSDialer{template: template, readLimit: 1 << 20}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// URL returns the channel URL for sessionID.
func (d *WSDialer) URL(sessionID string) string {
	return strings.ReplaceAll(d.template, IDPlaceholder, url.PathEscape(sessionID))
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, sessionID string) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, d.URL(sessionID), &websocket.DialOptions{HTTPClient: d.httpClient})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	c.SetReadLimit(d.readLimit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) (Frame, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return Frame{}, ErrServerClosed
		}
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &MalformedFrameError{Data: data, Err: err}
	}
	return f, nil
}

func (w *wsConn) Send(ctx context.Context, text string) error {
	return w.c.Write(ctx, websocket.MessageText, []byte(text))
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "session ended")
}
