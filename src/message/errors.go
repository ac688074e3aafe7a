package message

import "fmt"

// Error codes understood by the harness. Codes below 1000 are reserved by the
// protocol; 0 to 14 and 20 to 22 and 30 are the ones in use.
const (
	Timeout                = 0
	NodeNotFound           = 1
	NotSupported           = 10
	TemporarilyUnavailable = 11
	MalformedRequest       = 12
	Crash                  = 13
	Abort                  = 14
	KeyDoesNotExist        = 20
	KeyAlreadyExists       = 21
	PreconditionFailed     = 22
	TxnConflict            = 30
)

// Error is the body of an error reply.
type Error struct {
	Header
	Code int    `json:"code"`
	Text string `json:"text"`
}

// MessageType implements Body.
func (Error) MessageType() string { return ErrorType }

// RPCError is a failure reported by a remote node or service.
type RPCError struct {
	Code int
	Text string
}

// NewRPCError ...
func NewRPCError(code int, format string, args ...interface{}) *RPCError {
	return &RPCError{
		Code: code,
		Text: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d (%s): %s", e.Code, CodeName(e.Code), e.Text)
}

// ErrorCode implements Coder.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// Body converts the error into an error reply body.
func (e *RPCError) Body() *Error {
	return &Error{Code: e.Code, Text: e.Text}
}

// Coder is implemented by errors that know which protocol code describes them.
// Handler errors implementing it are reported with that code instead of Crash.
type Coder interface {
	ErrorCode() int
}

// IsDefinite reports whether an error code guarantees the request had no
// effect. Timeouts and crashes leave the outcome unknown.
func IsDefinite(code int) bool {
	switch code {
	case Timeout, Crash:
		return false
	default:
		return true
	}
}

// CodeName returns the conventional name of an error code.
func CodeName(code int) string {
	switch code {
	case Timeout:
		return "timeout"
	case NodeNotFound:
		return "node-not-found"
	case NotSupported:
		return "not-supported"
	case TemporarilyUnavailable:
		return "temporarily-unavailable"
	case MalformedRequest:
		return "malformed-request"
	case Crash:
		return "crash"
	case Abort:
		return "abort"
	case KeyDoesNotExist:
		return "key-does-not-exist"
	case KeyAlreadyExists:
		return "key-already-exists"
	case PreconditionFailed:
		return "precondition-failed"
	case TxnConflict:
		return "txn-conflict"
	default:
		return "unknown"
	}
}
