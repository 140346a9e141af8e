package llm

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a model API failure so callers can decide whether to
// retry, back off, or surface the error to the user.
type Kind int

const (
	// KindUnknown is an unclassified failure. Not retried.
	KindUnknown Kind = iota
	// KindMissingCredentials means the API key is absent or rejected.
	KindMissingCredentials
	// KindSafetyBlocked means the provider refused the request on
	// policy grounds.
	KindSafetyBlocked
	// KindRateLimited means the provider throttled the request.
	KindRateLimited
	// KindTransient covers server-side and connectivity failures that
	// are worth retrying.
	KindTransient
	// KindEmptyResponse means the call succeeded but carried no content.
	KindEmptyResponse
	// KindBadFormat means the response content could not be decoded
	// into the expected structure.
	KindBadFormat
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredentials:
		return "missing_credentials"
	case KindSafetyBlocked:
		return "safety_blocked"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindEmptyResponse:
		return "empty_response"
	case KindBadFormat:
		return "bad_format"
	default:
		return "unknown"
	}
}

// Error is a classified model API failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransient, KindEmptyResponse, KindBadFormat:
		return true
	default:
		return false
	}
}

// KindOf returns the classification of err, or KindUnknown if err is not
// a classified llm error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// Classify wraps an API transport error with a Kind derived from the
// provider's structured error response rather than its message text.
func Classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, Err: err}
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return &Error{Kind: KindMissingCredentials, Err: err}
		case apiErr.HTTPStatusCode == http.StatusForbidden:
			return &Error{Kind: KindSafetyBlocked, Err: err}
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return &Error{Kind: KindTransient, Err: err}
		default:
			return &Error{Kind: KindUnknown, Err: err}
		}
	}
	// No structured response at all: the request never reached the
	// provider (DNS, TLS, timeouts), so treat it as transient.
	return &Error{Kind: KindTransient, Err: err}
}
