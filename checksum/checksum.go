// Package checksum provides a reader that verifies the length and
// checksum of the stream it wraps once the declared length is reached.
package checksum

import (
	"errors"
	"fmt"
	"hash"
	"io"
)

var (
	// ErrStream classifies every failure of a Reader as a stream error.
	// Both errors below wrap it.
	ErrStream = errors.New("checksum: stream error")

	// ErrPrematureEOF is returned when the wrapped stream ends before
	// the declared number of bytes was read.
	ErrPrematureEOF = fmt.Errorf("%w: premature EOF: %w", ErrStream, io.ErrUnexpectedEOF)

	// ErrChecksumMismatch is returned when the checksum of the bytes
	// read does not equal the expected value.
	ErrChecksumMismatch = fmt.Errorf("%w: verification failed", ErrStream)
)

// Reader updates a running checksum with every byte it returns and
// verifies it against an expected value once the declared size has been
// read. After an error the Reader is terminal and returns that error.
//
// Skip does not consume input: a checksum can only be verified over bytes
// that were actually read, so callers that need progress must use Read.
type Reader struct {
	h         hash.Hash32
	r         io.Reader
	remaining int64
	expected  int64

	err    error
	closed bool
	one    [1]byte
}

// NewReader returns a Reader over r that expects size bytes whose
// checksum under h is expected. The Reader owns r: Close closes it if
// it is an io.Closer.
func NewReader(h hash.Hash32, r io.Reader, size, expected int64) *Reader {
	return &Reader{h: h, r: r, remaining: size, expected: expected}
}

// Value returns the checksum of the bytes read so far.
func (c *Reader) Value() int64 { return int64(c.h.Sum32()) }

// Remaining returns how many bytes are left before verification.
func (c *Reader) Remaining() int64 { return c.remaining }

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.remaining <= 0 {
		if err := c.verify(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.remaining -= int64(n)
	}
	if verr := c.verify(); verr != nil {
		return n, verr
	}
	if err == io.EOF {
		if c.remaining > 0 {
			c.err = ErrPrematureEOF
			return n, c.err
		}
		return n, nil
	}
	if err != nil {
		c.err = err
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (c *Reader) ReadByte() (byte, error) {
	for {
		n, err := c.Read(c.one[:])
		if n == 1 {
			return c.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Skip returns 0 without consuming input.
func (c *Reader) Skip(n int64) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return 0, nil
}

// verify checks the checksum once the declared size is reached. A
// negative size can never be matched by the count of bytes read.
func (c *Reader) verify() error {
	if c.remaining > 0 {
		return nil
	}
	if c.remaining < 0 {
		c.err = fmt.Errorf("%w: length mismatch, %d bytes beyond the declared size", ErrChecksumMismatch, -c.remaining)
		return c.err
	}
	if actual := c.Value(); actual != c.expected {
		c.err = fmt.Errorf("%w: got %d, expected %d", ErrChecksumMismatch, actual, c.expected)
		return c.err
	}
	return nil
}

// Close closes the wrapped reader if it is an io.Closer. It is safe to
// call more than once.
func (c *Reader) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if cl, ok := c.r.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
