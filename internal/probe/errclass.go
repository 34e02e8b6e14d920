package probe

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrorClass buckets filesystem errors into the categories the probes
// assert on. Expected-negative probes pass only when the observed class
// matches; a different class is a failure even though an error occurred.
type ErrorClass int

const (
	// ClassNone means no error.
	ClassNone ErrorClass = iota

	// ClassPermission covers EACCES, EPERM, and EROFS: the classes a
	// read-only mount may legitimately reject a write with.
	ClassPermission

	// ClassNotFound covers ENOENT.
	ClassNotFound

	// ClassWouldBlock covers EWOULDBLOCK/EAGAIN from non-blocking lock
	// attempts.
	ClassWouldBlock

	// ClassOther is every error that fits no bucket above.
	ClassOther
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassPermission:
		return "permission"
	case ClassNotFound:
		return "not-found"
	case ClassWouldBlock:
		return "would-block"
	default:
		return "other"
	}
}

// Class maps err onto its ErrorClass. Wrapped errors are unwrapped via
// errors.Is, so *fs.PathError around a raw errno classifies correctly.
func Class(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, unix.EACCES),
		errors.Is(err, unix.EPERM),
		errors.Is(err, unix.EROFS),
		errors.Is(err, os.ErrPermission):
		return ClassPermission
	case errors.Is(err, unix.ENOENT), errors.Is(err, os.ErrNotExist):
		return ClassNotFound
	case errors.Is(err, unix.EWOULDBLOCK):
		return ClassWouldBlock
	default:
		return ClassOther
	}
}
