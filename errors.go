package arcstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat is returned when no format is registered under a name.
	ErrUnknownFormat = errors.New("unknown format")

	// ErrNoMatch is returned by Identify if no format recognizes the stream.
	ErrNoMatch = errors.New("no formats matched")

	// ErrNotSupported is returned when a format cannot perform the requested
	// operation, like writing a read-only format.
	ErrNotSupported = errors.New("operation not supported by format")

	// ErrFormat is the root of every malformed-archive error.
	ErrFormat = errors.New("malformed archive")

	// ErrInvalidState is returned when a stream operation is called in a
	// state that does not permit it: writing without an open entry,
	// finishing with an entry still open, or using a failed stream.
	ErrInvalidState = errors.New("invalid stream state")

	// ErrSizeMismatch is returned when the payload written for an entry
	// does not match the size the entry declared.
	ErrSizeMismatch = fmt.Errorf("%w: payload length does not match entry size", ErrInvalidState)

	// ErrClosed is returned by operations on a closed stream.
	ErrClosed = fmt.Errorf("%w: stream closed", ErrInvalidState)
)

// FormatError describes a malformed header, bad magic, bad checksum
// or truncated entry. It matches ErrFormat with errors.Is.
type FormatError struct {
	Format string
	Msg    string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Format, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is reports ErrFormat as a match so callers can test for any format error.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func formatErr(format, msg string, args ...any) error {
	return &FormatError{Format: format, Msg: fmt.Sprintf(msg, args...)}
}

// IsFormatError returns true if err is, or wraps, a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IllegalPathError is used to indicate that an entry would be
// extracted outside of the destination directory.
type IllegalPathError struct {
	AbsolutePath string
	Filename     string
}

func (err *IllegalPathError) Error() string {
	return fmt.Sprintf("illegal file path: %s", err.Filename)
}

// IsIllegalPathError returns true if the provided error is of
// the type IllegalPathError.
func IsIllegalPathError(err error) bool {
	var ipe *IllegalPathError
	return err != nil && errors.As(err, &ipe)
}
