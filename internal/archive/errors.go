package archive

import (
	"errors"
	"fmt"
	"syscall"
)

// Error codes reported to archive callers. The values match the error table
// of the data-management systems that load the C library.
const (
	// SyncToArchErr reports any failure on the write path.
	SyncToArchErr int64 = -1140000

	// UnixFileOpenErr is the base code for a local open failure; errno is subtracted from it.
	UnixFileOpenErr int64 = -510000
)

// Error is a failed archive operation with the code handed to C callers.
type Error struct {
	Op   string
	Code int64
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or SyncToArchErr when err is not an *Error.
func CodeOf(err error) int64 {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return SyncToArchErr
}

func syncErr(op string, err error) error {
	return &Error{Op: op, Code: SyncToArchErr, Err: err}
}

// openErr encodes errno into the local open failure code.
func openErr(op string, err error) error {
	code := UnixFileOpenErr
	var errno syscall.Errno
	if errors.As(err, &errno) {
		code -= int64(errno)
	}
	return &Error{Op: op, Code: code, Err: err}
}
