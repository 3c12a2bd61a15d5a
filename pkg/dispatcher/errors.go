package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed round trip.
type ErrorKind int

const (
	// KindTransport is a connection failure or a non-200 response.
	KindTransport ErrorKind = iota + 1

	// KindTimeout means the total wait bound expired.
	KindTimeout

	// KindExecution means the remote side reported a failure in its body.
	KindExecution

	// KindParse means the response body was not the expected JSON.
	KindParse

	// KindConfig means the request could not be issued as configured.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindExecution:
		return "execution"
	case KindParse:
		return "parse"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("RunPod API key not set")

// Error is the single error type returned by Dispatcher operations.
type Error struct {
	Kind ErrorKind

	// StatusCode and Body are set for non-200 responses.
	StatusCode int
	Body       string

	Err error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error: status %d", e.Kind, e.StatusCode)
	}
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// cause returns the text of the underlying failure.
func (e *Error) cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Body != "" {
		return e.Body
	}
	return e.Kind.String() + " error"
}

// Classify maps any error to a *Error. An existing *Error anywhere in the
// chain is returned as is. Deadline and network timeouts become
// KindTimeout, JSON decoding failures KindParse, and everything else
// KindTransport. Classify(nil) returns nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var de *Error
	if errors.As(err, &de) {
		return de
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindParse, Err: err}
	}

	if errors.Is(err, ErrMissingAPIKey) {
		return &Error{Kind: KindConfig, Err: err}
	}

	return &Error{Kind: KindTransport, Err: err}
}
