package collect

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a collection failure. The kind decides how far the
// failure escalates: transport errors retry within a strategy, parse errors
// fall through to the next strategy, authentication errors abort the run.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindTransport      ErrorKind = "transport"
	KindParse          ErrorKind = "parse"
	KindValidation     ErrorKind = "validation"
)

// CollectError is a classified failure encountered along the fallback chain.
type CollectError struct {
	Kind     ErrorKind
	Strategy string
	Err      error
}

func (e *CollectError) Error() string {
	if e.Strategy == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Strategy, e.Err)
}

func (e *CollectError) Unwrap() error {
	return e.Err
}

func authError(format string, args ...any) *CollectError {
	return &CollectError{Kind: KindAuthentication, Err: fmt.Errorf(format, args...)}
}

func transportError(strategy string, err error) *CollectError {
	return &CollectError{Kind: KindTransport, Strategy: strategy, Err: err}
}

func parseError(strategy string, err error) *CollectError {
	return &CollectError{Kind: KindParse, Strategy: strategy, Err: err}
}

// classify wraps an arbitrary strategy error with the right kind. Timeouts
// and connection failures are transport-class; everything else that is not
// already classified counts as parse-class and is not retried.
func classify(strategy string, err error) *CollectError {
	var classified *CollectError
	if errors.As(err, &classified) {
		return classified
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return transportError(strategy, err)
	}

	return parseError(strategy, err)
}
