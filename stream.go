package arcstream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mholt/arcstream/internal/iox"
)

type streamState int

const (
	stateInit streamState = iota
	stateEntry
	stateBetween
	stateDone
)

func discardLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// archiveReader adapts a readDriver to the ArchiveReader interface.
// All read shapes funnel into Read so they return identical content.
type archiveReader struct {
	format string
	d      readDriver
	src    io.Reader
	br     *bufio.Reader

	state  streamState
	err    error
	closed bool
	n      int64
	one    [1]byte
}

func newArchiveReader(format string, src io.Reader, open func(br *bufio.Reader) readDriver) *archiveReader {
	br, ok := src.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(src)
	}
	return &archiveReader{
		format: format,
		d:      open(br),
		src:    src,
		br:     br,
	}
}

func (r *archiveReader) check() error {
	if r.closed {
		return ErrClosed
	}
	if r.err != nil {
		return fmt.Errorf("%w: %s stream failed earlier: %w", ErrInvalidState, r.format, r.err)
	}
	return nil
}

func (r *archiveReader) fail(err error) error {
	r.err = err
	r.state = stateDone
	return err
}

func (r *archiveReader) Next() (Entry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if r.state == stateDone {
		return nil, io.EOF
	}
	e, err := r.d.next()
	if err == io.EOF {
		r.state = stateDone
		return nil, io.EOF
	}
	if err != nil {
		return nil, r.fail(err)
	}
	r.state = stateEntry
	return e, nil
}

func (r *archiveReader) Read(p []byte) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	switch r.state {
	case stateInit:
		return 0, r.fail(fmt.Errorf("%w: read before Next", ErrInvalidState))
	case stateDone:
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.d.read(p)
	r.n += int64(n)
	if err != nil && err != io.EOF {
		return n, r.fail(err)
	}
	return n, err
}

func (r *archiveReader) ReadByte() (byte, error) {
	for {
		n, err := r.Read(r.one[:])
		if n == 1 {
			return r.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (r *archiveReader) ReadSection(p []byte, off, n int) (int, error) {
	if off < 0 || n < 0 || off+n > len(p) {
		return 0, r.fail(fmt.Errorf("%w: section [%d:%d] out of range for buffer of %d bytes", ErrInvalidState, off, off+n, len(p)))
	}
	return r.Read(p[off : off+n])
}

func (r *archiveReader) Skip(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	skipped, err := io.CopyN(io.Discard, r, n)
	if err == io.EOF {
		err = nil
	}
	return skipped, err
}

func (r *archiveReader) Available() int {
	if r.closed || r.err != nil || r.state != stateEntry {
		return 0
	}
	rem := r.d.remaining()
	if rem <= 0 {
		return 0
	}
	if buffered := int64(r.br.Buffered()); buffered < rem {
		return int(buffered)
	}
	return int(rem)
}

func (r *archiveReader) BytesRead() int64 { return r.n }

func (r *archiveReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.state = stateDone
	var errs []error
	if c, ok := r.d.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := r.src.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// archiveWriter adapts a writeDriver to the ArchiveWriter interface.
// Any error, calls out of order included, leaves it failed; only Close
// still works afterwards.
type archiveWriter struct {
	format string
	d      writeDriver
	cw     *iox.CountingWriter
	dst    io.Writer

	state    streamState
	err      error
	finished bool // trailer written
	closed   bool
	one      [1]byte
}

func newArchiveWriter(format string, dst io.Writer, open func(w io.Writer) writeDriver) *archiveWriter {
	cw := &iox.CountingWriter{W: dst}
	return &archiveWriter{
		format: format,
		d:      open(cw),
		cw:     cw,
		dst:    dst,
	}
}

func (w *archiveWriter) check() error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return fmt.Errorf("%w: %s stream failed earlier: %w", ErrInvalidState, w.format, w.err)
	}
	return nil
}

func (w *archiveWriter) fail(err error) error {
	w.err = err
	w.state = stateDone
	return err
}

func (w *archiveWriter) PutEntry(e Entry) error {
	if err := w.check(); err != nil {
		return err
	}
	switch {
	case e == nil:
		return w.fail(fmt.Errorf("%w: nil entry", ErrInvalidState))
	case w.state == stateEntry:
		return w.fail(fmt.Errorf("%w: previous entry is still open", ErrInvalidState))
	case w.state == stateDone:
		return w.fail(fmt.Errorf("%w: archive already finished", ErrInvalidState))
	}
	if err := w.d.putEntry(e); err != nil {
		return w.fail(err)
	}
	w.state = stateEntry
	return nil
}

func (w *archiveWriter) Write(p []byte) (int, error) {
	if err := w.check(); err != nil {
		return 0, err
	}
	if w.state != stateEntry {
		return 0, w.fail(fmt.Errorf("%w: no open entry", ErrInvalidState))
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := w.d.write(p)
	if err != nil {
		return n, w.fail(err)
	}
	return n, nil
}

func (w *archiveWriter) WriteByte(c byte) error {
	w.one[0] = c
	_, err := w.Write(w.one[:])
	return err
}

func (w *archiveWriter) WriteSection(p []byte, off, n int) (int, error) {
	if off < 0 || n < 0 || off+n > len(p) {
		return 0, w.fail(fmt.Errorf("%w: section [%d:%d] out of range for buffer of %d bytes", ErrInvalidState, off, off+n, len(p)))
	}
	return w.Write(p[off : off+n])
}

func (w *archiveWriter) CloseEntry() error {
	if err := w.check(); err != nil {
		return err
	}
	if w.state != stateEntry {
		return w.fail(fmt.Errorf("%w: no open entry", ErrInvalidState))
	}
	if err := w.d.closeEntry(); err != nil {
		return w.fail(err)
	}
	w.state = stateBetween
	return nil
}

func (w *archiveWriter) Finish() error {
	if err := w.check(); err != nil {
		return err
	}
	switch w.state {
	case stateEntry:
		return w.fail(fmt.Errorf("%w: archive contains an unclosed entry", ErrInvalidState))
	case stateDone:
		return nil
	}
	if err := w.d.finish(); err != nil {
		return w.fail(err)
	}
	w.state = stateDone
	w.finished = true
	return nil
}

func (w *archiveWriter) BytesWritten() int64 { return w.cw.N }

func (w *archiveWriter) Close() error {
	if w.closed {
		return nil
	}
	var errs []error
	switch {
	case w.err == nil && w.state != stateDone:
		errs = append(errs, w.Finish())
	case w.err != nil && !w.finished:
		errs = append(errs, fmt.Errorf("%s archive is incomplete: %w", w.format, w.err))
	}
	w.closed = true
	if c, ok := w.dst.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Interface guards
var (
	_ ArchiveReader = (*archiveReader)(nil)
	_ ArchiveWriter = (*archiveWriter)(nil)
)
