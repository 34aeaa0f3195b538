package discovery

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration        = errors.New("configuration error")
	ErrTransportUnavailable = errors.New("anonymizing transport unavailable")
	ErrTransport            = errors.New("transport error")
	ErrParse                = errors.New("parse error")
)

type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Reason }

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

type TransportUnavailableError struct {
	Attempts int
	Err      error
}

func (e *TransportUnavailableError) Error() string {
	return fmt.Sprintf("anonymizing transport unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportUnavailableError) Unwrap() []error { return []error{ErrTransportUnavailable, e.Err} }

// TransportError is a single failed request. It is absorbed into the results.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

type ParseError struct {
	Bytes int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable response (%d bytes): %v", e.Bytes, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrTransportUnavailable)
}
