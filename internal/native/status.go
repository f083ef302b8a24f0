package native

import "fmt"

// Code is a canonical runtime result code.
type Code int

const (
	OK                 Code = 0
	Cancelled          Code = 1
	Unknown            Code = 2
	InvalidArgument    Code = 3
	DeadlineExceeded   Code = 4
	NotFound           Code = 5
	AlreadyExists      Code = 6
	PermissionDenied   Code = 7
	ResourceExhausted  Code = 8
	FailedPrecondition Code = 9
	Aborted            Code = 10
	OutOfRange         Code = 11
	Unimplemented      Code = 12
	Internal           Code = 13
	Unavailable        Code = 14
	DataLoss           Code = 15
	Unauthenticated    Code = 16
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Cancelled:
		return "CANCELLED"
	case Unknown:
		return "UNKNOWN"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	case NotFound:
		return "NOT_FOUND"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Aborted:
		return "ABORTED"
	case OutOfRange:
		return "OUT_OF_RANGE"
	case Unimplemented:
		return "UNIMPLEMENTED"
	case Internal:
		return "INTERNAL"
	case Unavailable:
		return "UNAVAILABLE"
	case DataLoss:
		return "DATA_LOSS"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Status is the transient result record runtime entry points write into.
// Callers allocate one, pass it to a call, and inspect it afterwards.
type Status struct {
	code Code
	msg  string
}

func NewStatus() *Status {
	return &Status{}
}

// Set overwrites the status. Entry points call it on both success and
// failure so a reused Status never carries a stale message.
func (s *Status) Set(code Code, msg string) {
	s.code = code
	s.msg = msg
}

func (s *Status) setOK() {
	s.code = OK
	s.msg = ""
}

func (s *Status) Code() Code {
	return s.code
}

func (s *Status) Message() string {
	return s.msg
}

// Err returns nil if the status holds OK, else an error describing it.
func (s *Status) Err() error {
	if s == nil || s.code == OK {
		return nil
	}
	return (*statusError)(s)
}

type statusError Status

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}
