// Package errors defines the typed failures produced while delivering a
// command to a device.
//
// Every error renders through Diagnostic, so callers always see the same
// shape regardless of which phase gave up:
//
//	<host>: <phase> (<underlying error>)
//
// Recoverable failures (ConnectError, TransportError) are consumed by the
// session retry loop and only surface wrapped inside an ExhaustedError.
// ResolutionError, BindError, ReplyTooLargeError and ValidationError are
// terminal and returned as-is.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Phase descriptions used in diagnostics.
const (
	PhaseResolve      = "cannot resolve"
	PhaseConnect      = "cannot connect"
	PhaseBind         = "cannot bind local socket"
	PhaseSend         = "write error"
	PhaseReceive      = "read error"
	PhaseNoAttempts   = "no more attempts"
	PhaseNoWrites     = "no more write attempts"
	PhaseReplyTooLong = "reply too large"
)

// ErrEmptyReply reports a first read that returned no data.
var ErrEmptyReply = stderrors.New("no data received")

// Diagnostic formats a failure as "<host>: <phase> (<err>)".
//
// A nil err renders as "unknown error" so the output never loses its
// parenthesised cause.
func Diagnostic(host, phase string, err error) string {
	cause := "unknown error"
	if err != nil {
		cause = err.Error()
	}
	return fmt.Sprintf("%s: %s (%s)", host, phase, cause)
}

// NetworkError reports a failed socket operation inside the transport
// layer. Session errors wrap it so the diagnostic names both the phase and
// the socket call that failed.
type NetworkError struct {
	Operation string
	Err       error
	Details   string
}

func (e *NetworkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ResolutionError reports that the host name could not be turned into an
// address. It is never retried.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return Diagnostic(e.Host, PhaseResolve, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ConnectError reports that no channel could be established within the
// configured number of connect attempts.
type ConnectError struct {
	Host      string
	Transport string
	Attempts  int
	Err       error
}

func (e *ConnectError) Error() string {
	return Diagnostic(e.Host, e.phase(), e.Err)
}

func (e *ConnectError) phase() string {
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("%s using %s after %d %s", PhaseConnect, e.Transport, e.Attempts, noun)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// BindError reports that a local UDP socket could not be bound. This is a
// local resource fault and ends the call immediately.
type BindError struct {
	Host string
	Err  error
}

func (e *BindError) Error() string {
	return Diagnostic(e.Host, PhaseBind, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// TransportError reports a send or receive failure on an established
// channel.
//
// Op is PhaseSend or PhaseReceive.
type TransportError struct {
	Host      string
	Op        string
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return Diagnostic(e.Host, fmt.Sprintf("%s using %s", e.Op, e.Transport), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedError reports that every outer attempt was consumed. Err holds
// the last recoverable failure.
//
// The diagnostic names the host and phase once; a wrapped ConnectError or
// TransportError contributes only its cause.
type ExhaustedError struct {
	Host  string
	Phase string
	Err   error
}

func (e *ExhaustedError) Error() string {
	return Diagnostic(e.Host, e.Phase, Cause(e.Err))
}

// Cause strips the host and phase carried by a ConnectError or
// TransportError and returns the socket error underneath. Any other error
// is returned unchanged.
func Cause(err error) error {
	var connErr *ConnectError
	if stderrors.As(err, &connErr) {
		return connErr.Err
	}
	var transportErr *TransportError
	if stderrors.As(err, &transportErr) {
		return transportErr.Err
	}
	return err
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// ReplyTooLargeError reports a reply that would not fit in the configured
// reply capacity.
type ReplyTooLargeError struct {
	Host  string
	Limit int
}

func (e *ReplyTooLargeError) Error() string {
	return Diagnostic(e.Host, PhaseReplyTooLong, fmt.Errorf("exceeds %d bytes", e.Limit))
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}

// IsTerminal reports whether err must end the call without further
// attempts.
func IsTerminal(err error) bool {
	var resolveErr *ResolutionError
	var bindErr *BindError
	var sizeErr *ReplyTooLargeError
	var validErr *ValidationError
	return stderrors.As(err, &resolveErr) ||
		stderrors.As(err, &bindErr) ||
		stderrors.As(err, &sizeErr) ||
		stderrors.As(err, &validErr)
}
