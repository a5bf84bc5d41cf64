package classify

import (
	"errors"
	"fmt"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// Kind is the closed set of classifier failures
type Kind int

const (
	KindAPIError Kind = iota
	KindRateLimit
	KindEmptyResponse
	KindInvalidResponse
	KindIncompleteAttributes
)

// maxDetail bounds the API error detail carried into outcomes and logs
const maxDetail = 100

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindEmptyResponse:
		return "empty_response"
	case KindInvalidResponse:
		return "invalid_response"
	case KindIncompleteAttributes:
		return "incomplete_attributes"
	default:
		return "api_error"
	}
}

// Outcome maps the kind onto the pipeline outcome it terminates with
func (k Kind) Outcome() model.Outcome {
	switch k {
	case KindRateLimit:
		return model.OutcomeRateLimit
	case KindEmptyResponse:
		return model.OutcomeEmptyResponse
	case KindInvalidResponse:
		return model.OutcomeInvalidResponse
	case KindIncompleteAttributes:
		return model.OutcomeIncompleteAttributes
	default:
		return model.OutcomeAPIError
	}
}

// Error is a typed classifier failure
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RateLimited builds a KindRateLimit error around err
func RateLimited(err error) *Error {
	return &Error{Kind: KindRateLimit, Detail: truncate(errText(err)), Err: err}
}

// APIError builds a KindAPIError error around err
func APIError(err error) *Error {
	return &Error{Kind: KindAPIError, Detail: truncate(errText(err)), Err: err}
}

// KindOf returns the kind of err; errors that are not *Error are API errors
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindAPIError
}

// wrapBackend makes sure a backend failure reaches callers as *Error
func wrapBackend(err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return APIError(err)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxDetail {
		return s
	}
	return string(r[:maxDetail])
}
