package source

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error classes. Concrete errors wrap one of these so callers can branch
// with errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrNotFound             = errors.New("not found")
	ErrFileNotFound         = fmt.Errorf("dataset file %w", ErrNotFound)
	ErrAuth                 = errors.New("authentication failed")
	ErrRangeRejected        = errors.New("range rejected")
	ErrRateLimited          = errors.New("rate limited")
	ErrTransientHTTP        = errors.New("request failed")
	ErrParse                = errors.New("parse error")
	ErrCoverageInsufficient = errors.New("coverage insufficient")
)

// HTTPError is a non-2xx vendor response.
type HTTPError struct {
	Vendor string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Vendor, e.describe())
	if e.Body != "" {
		msg += ": " + truncate(e.Body, 200)
	}
	return msg
}

func (e *HTTPError) describe() string {
	switch e.Status {
	case http.StatusNotFound:
		return "symbol not found"
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("authentication failed with status %d", e.Status)
	case http.StatusTooManyRequests:
		return "rate limited"
	case http.StatusBadRequest:
		return "range rejected with status 400"
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Unwrap maps the status to its error class.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrRangeRejected
	}
	return ErrTransientHTTP
}

// Failure is one vendor's reason for not serving a request.
type Failure struct {
	Source string
	Err    error
}

// FallbackError aggregates every failure of a fallback chain.
type FallbackError struct {
	Request  string
	Failures []Failure
}

func (e *FallbackError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Source, f.Err))
	}
	return fmt.Sprintf("all sources failed for %s: %s", e.Request, strings.Join(parts, "; "))
}

func (e *FallbackError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
