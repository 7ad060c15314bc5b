package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrStreamClosed is returned when the server ends the response body.
var ErrStreamClosed = errors.New("stream closed by server")

// StatusError is returned when the feed answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream status %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("stream status %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// FaultClass groups transport faults for logs and metrics. Every class is
// retried; the class never stops the ingestor.
type FaultClass int

const (
	// FaultTransport covers dial, TLS and read errors.
	FaultTransport FaultClass = iota
	// FaultClosed is a clean end of the response body.
	FaultClosed
	// FaultTimeout is the per-request timeout or another network timeout.
	FaultTimeout
	// FaultThrottled is a 429 or a 5xx from the feed.
	FaultThrottled
	// FaultFatal is a 401/403: the credential is wrong and retrying will not
	// help until an operator fixes it.
	FaultFatal
)

// String returns the metrics label for the class.
func (fc FaultClass) String() string {
	switch fc {
	case FaultTransport:
		return "transport"
	case FaultClosed:
		return "closed"
	case FaultTimeout:
		return "timeout"
	case FaultThrottled:
		return "throttled"
	case FaultFatal:
		return "fatal"
	default:
		return "transport"
	}
}

// ClassifyFault maps a stream error to its FaultClass.
func ClassifyFault(err error) FaultClass {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
			return FaultFatal
		case se.Code == http.StatusTooManyRequests || se.Code >= 500:
			return FaultThrottled
		}
		return FaultTransport
	}
	if errors.Is(err, ErrStreamClosed) {
		return FaultClosed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FaultTimeout
	}
	return FaultTransport
}
