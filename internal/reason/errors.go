package reason

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a backend failure
type ErrorKind string

const (
	KindRateLimit  ErrorKind = "rate_limit"
	KindConnection ErrorKind = "connection"
	KindServer     ErrorKind = "server"
	KindClient     ErrorKind = "client"
	KindMalformed  ErrorKind = "malformed"
)

// BackendError is a classified backend failure
type BackendError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed
func (e *BackendError) Transient() bool {
	switch e.Kind {
	case KindRateLimit, KindConnection, KindServer:
		return true
	}
	return false
}

// IsTransient reports whether err is a retryable backend failure
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Transient()
}

// IsMalformed reports whether err is an unusable backend reply
func IsMalformed(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == KindMalformed
}

// statusError classifies a non-2xx HTTP status
func statusError(status int, err error) *BackendError {
	kind := KindClient
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == 529: // overloaded
		kind = KindRateLimit
	case status >= 500:
		kind = KindServer
	case status == http.StatusRequestTimeout:
		kind = KindConnection
	}
	return &BackendError{Kind: kind, StatusCode: status, Err: err}
}

// transportError classifies a failure to obtain any HTTP response. parent is
// the caller's context: when it is done the error is returned unclassified.
// A per-call timeout with a live parent counts as a connection failure.
func transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return &BackendError{Kind: KindConnection, Err: err}
}

// malformed wraps a reply that cannot be turned into a verdict
func malformed(format string, args ...any) *BackendError {
	return &BackendError{Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}

// openAIError classifies errors returned by the go-openai client
func openAIError(parent context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(reqErr.HTTPStatusCode, err)
	}
	return transportError(parent, err)
}
