// Package ipcerr defines the POSIX-errno-like completion code taxonomy
// carried on ChannelEnd envelopes and returned by daemon-side operations.
package ipcerr

import "fmt"

// Code is a completion code. Zero means success; all other values mirror
// POSIX errno numbers closely enough that callers familiar with errno can
// reason about them, but the numeric values are this module's own and are
// not guaranteed to equal the host platform's errno.
type Code int32

// The subset of the POSIX errno taxonomy that spec.md §6 requires.
const (
	OK          Code = 0
	ENOMEM      Code = 12
	EINVAL      Code = 22
	EEXIST      Code = 17
	ETIMEDOUT   Code = 110
	EBUSY       Code = 16
	ENOTCONN    Code = 107
	ESHUTDOWN   Code = 108
	ECANCELED   Code = 125
	ENOSYS      Code = 38
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ENOMEM:
		return "ENOMEM"
	case EINVAL:
		return "EINVAL"
	case EEXIST:
		return "EEXIST"
	case ETIMEDOUT:
		return "ETIMEDOUT"
	case EBUSY:
		return "EBUSY"
	case ENOTCONN:
		return "ENOTCONN"
	case ESHUTDOWN:
		return "ESHUTDOWN"
	case ECANCELED:
		return "ECANCELED"
	case ENOSYS:
		return "ENOSYS"
	default:
		return fmt.Sprintf("errno(%d)", int32(c))
	}
}

// codedError pairs a Code with a human-readable description so that it can
// flow through normal Go error handling while still being recoverable with
// CodeOf at the point where a ChannelEnd needs to be emitted.
type codedError struct {
	code Code
	msg  string
}

func (e *codedError) Error() string { return e.msg }

// New returns an error carrying the given completion code.
func New(code Code, format string, args ...interface{}) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...)}
}

// WithCode attaches a completion code to an existing error, preserving its
// message. If err is nil, WithCode returns nil.
func WithCode(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, msg: err.Error()}
}

// CodeOf extracts the completion code carried by err, or EINVAL if err is
// non-nil but carries no code, or OK if err is nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var ce *codedError
	if ok := asCodedError(err, &ce); ok {
		return ce.code
	}
	return EINVAL
}

func asCodedError(err error, target **codedError) bool {
	for err != nil {
		if ce, ok := err.(*codedError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
