package llm

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a failed classification call.
type ErrorKind int

const (
	// KindTransport covers network failures and non-throttling API errors.
	KindTransport ErrorKind = iota
	// KindRateLimit means the provider asked us to slow down.
	KindRateLimit
	// KindParseFailure means the response body was empty or not the
	// expected JSON.
	KindParseFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "transport"
	}
}

// Error is the only error shape that leaves a Provider.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int           // zero when no HTTP response was received
	RetryAfter time.Duration // zero when the provider gave no hint
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRateLimit reports whether err signals throttling, either as a tagged
// *Error or as an untyped error mentioning "rate limit".
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindRateLimit
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

// retryAfter returns the provider's wait hint carried by err, if any.
func retryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// classifyStatus builds an *Error from an HTTP status and message.
func classifyStatus(status int, msg string, header http.Header, cause error) *Error {
	kind := KindTransport
	if status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(msg), "rate limit") {
		kind = KindRateLimit
	}
	return &Error{
		Kind:       kind,
		Message:    msg,
		StatusCode: status,
		RetryAfter: parseRetryAfter(header),
		Err:        cause,
	}
}

func transportError(cause error) *Error {
	return classifyStatus(0, cause.Error(), nil, cause)
}

func parseFailure(msg string, cause error) *Error {
	return &Error{Kind: KindParseFailure, Message: msg, Err: cause}
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
