package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransportError indicates the request never produced an HTTP response:
// the backend is unreachable, the connection broke, or the body could not
// be read or decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError indicates the backend answered with a non-2xx status. Detail
// holds the response body's "detail" field when present.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// BusinessError indicates the backend answered success:false.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

// IsSessionExpired reports whether err is a 404 from a session-scoped
// endpoint, which the backend uses to signal an unknown or expired session.
func IsSessionExpired(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

// Message converts err into the text shown in the error slot. HTTP errors
// use their detail, business failures their message; everything else,
// including transport failures, falls back to fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Detail != "" {
			return he.Detail
		}
		return fallback
	}
	var be *BusinessError
	if errors.As(err, &be) {
		if be.Message != "" {
			return be.Message
		}
		return fallback
	}
	return fallback
}

// IsCanceled reports whether err came from a canceled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
