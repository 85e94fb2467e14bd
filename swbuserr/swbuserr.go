// Package swbuserr defines the closed error-code enumeration used on the
// wire (spec §6) and the three error families the core distinguishes
// internally (spec §7): input errors, routing errors and infrastructure
// errors. Only infrastructure errors are ever returned as a Go error from
// the core's public operations; input and routing errors are always
// resolved into a Response message instead.
package swbuserr

import "github.com/pkg/errors"

// Code is the closed error-code enumeration carried in Response messages.
type Code int32

// The error codes named in spec §6. UnknownError is the fallback used when
// decoding an error code that isn't in this enumeration (e.g. received from
// a newer peer).
const (
	Ok Code = iota
	InvalidArgs
	NoRoute
	Unreachable
	ResourceExhausted
	Timeout
	UnknownError
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case InvalidArgs:
		return "InvalidArgs"
	case NoRoute:
		return "NoRoute"
	case Unreachable:
		return "Unreachable"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Timeout:
		return "Timeout"
	default:
		return "UnknownError"
	}
}

// InfraError wraps an unrecoverable failure of the core itself: a closed
// connection proxy, a full queue under a fail-fast policy, or a
// serialization failure. It is the only family ever propagated as a Go
// error from send()/queue_message(); input and routing failures are always
// resolved into a Response.
type InfraError struct {
	cause error
}

// NewInfraError wraps cause as an infrastructure error.
func NewInfraError(cause error) *InfraError {
	return &InfraError{cause: errors.WithStack(cause)}
}

func (e *InfraError) Error() string { return "swbus: infrastructure error: " + e.cause.Error() }

func (e *InfraError) Unwrap() error { return e.cause }

// QueueFull is returned by a connection proxy's TryQueue when the bounded
// send queue is saturated and the caller has not asked for blocking
// semantics.
var QueueFull = errors.New("swbus: send queue full")

// QueueClosed is returned when enqueuing onto a connection whose writer
// task has already stopped draining the queue.
var QueueClosed = errors.New("swbus: send queue closed")
