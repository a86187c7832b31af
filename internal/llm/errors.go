package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transport failure so the invoker can apply a
// different retry policy per kind.
type ErrorKind int

const (
	// KindTimeout covers deadline expiry on the full round trip.
	KindTimeout ErrorKind = iota
	// KindConnection covers dial/reset/EOF style network failures.
	KindConnection
	// KindHTTPStatus covers non-2xx responses from the endpoint.
	KindHTTPStatus
	// KindDecode covers an unreadable response envelope.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// TransportError is the single failure type the transport produces.
type TransportError struct {
	Kind   ErrorKind
	Status int // set for KindHTTPStatus
	Cause  error
}

func (e *TransportError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("transport %s: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == KindTimeout
}
