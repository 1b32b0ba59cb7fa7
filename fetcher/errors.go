package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind labels why a feed could not be saved. The value is used as the
// error_type metric label.
type FailureKind string

const (
	KindTimeout     FailureKind = "timeout"
	KindConnection  FailureKind = "connection"
	KindForbidden   FailureKind = "forbidden"
	KindNotFound    FailureKind = "not_found"
	KindRateLimited FailureKind = "rate_limited"
	KindEmptyBody   FailureKind = "empty_body"
	KindWrite       FailureKind = "write"
	KindOther       FailureKind = "other"
)

// Retryable reports whether another request for the feed can succeed. Missing or
// forbidden feeds stay that way; a failed write is a local problem.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindForbidden, KindNotFound, KindEmptyBody, KindWrite:
		return false
	default:
		return true
	}
}

// FeedError is a failed download or save of one supplier feed.
type FeedError struct {
	Kind   FailureKind
	URL    string
	Status int
	Path   string
	Err    error
}

func (e *FeedError) Error() string {
	msg := fmt.Sprintf("feed %s: %s", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// classifyError maps a transport error or HTTP status to a FeedError.
func classifyError(feedURL string, err error, statusCode int) *FeedError {
	fe := &FeedError{Kind: KindOther, URL: feedURL, Status: statusCode, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = KindTimeout
	case errors.As(err, &opErr):
		fe.Kind = KindConnection
	case statusCode == http.StatusForbidden:
		fe.Kind = KindForbidden
	case statusCode == http.StatusNotFound:
		fe.Kind = KindNotFound
	case statusCode == http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
	}
	return fe
}

// kindOf returns the failure kind carried by err.
func kindOf(err error) FailureKind {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}
