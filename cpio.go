package arcstream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/mholt/arcstream/checksum"
	"github.com/mholt/arcstream/internal/iox"
)

func init() {
	RegisterFormat(Cpio{})
}

// CpioFormat is the header variant of a cpio archive.
type CpioFormat int

// Header variants. The zero value selects CpioNewASCII.
const (
	CpioNewASCII CpioFormat = iota // "070701"
	CpioCRC                        // "070702", new ASCII with a payload checksum
	CpioOldASCII                   // "070707", portable octal
)

func (f CpioFormat) magic() string {
	switch f {
	case CpioCRC:
		return "070702"
	case CpioOldASCII:
		return "070707"
	}
	return "070701"
}

// Cpio is the cpio archive format.
type Cpio struct {
	// Format is the header variant written. Readers accept all variants.
	Format CpioFormat

	// BlockSize is the record size the archive is padded to after the
	// trailer. Zero means 512.
	BlockSize int

	// EntryEncoding is the charset of stored names. Empty stores the
	// UTF-8 bytes of the name.
	EntryEncoding string

	Logger *slog.Logger
}

func (Cpio) Name() string { return "cpio" }

func (Cpio) Match(header []byte) bool {
	if len(header) < 6 {
		return false
	}
	switch string(header[:6]) {
	case "070701", "070702", "070707":
		return true
	}
	return false
}

func (c Cpio) configure(opts factoryOptions) Format {
	if opts.encoding != "" {
		c.EntryEncoding = opts.encoding
	}
	if opts.logger != nil {
		c.Logger = opts.logger
	}
	return c
}

func (c Cpio) NewEntry(name string, size int64) Entry {
	e := NewCpioEntry(name, size)
	e.Format = c.Format
	return e
}

func (c Cpio) OpenArchiveWriter(w io.Writer) (ArchiveWriter, error) {
	block := c.BlockSize
	if block == 0 {
		block = cpioBlockSize
	}
	if block < 0 {
		return nil, fmt.Errorf("cpio: invalid block size %d", block)
	}
	return newArchiveWriter(c.Name(), w, func(dst io.Writer) writeDriver {
		return &cpioWriter{
			w:      &iox.CountingWriter{W: dst},
			format: c.Format,
			block:  int64(block),
			names:  newNameCodec(c.EntryEncoding),
			log:    discardLogger(c.Logger),
			inode:  1,
		}
	}), nil
}

func (c Cpio) OpenArchiveReader(r io.Reader) (ArchiveReader, error) {
	return newArchiveReader(c.Name(), r, func(br *bufio.Reader) readDriver {
		return &cpioReader{
			br:    br,
			names: newNameCodec(c.EntryEncoding),
			log:   discardLogger(c.Logger),
		}
	}), nil
}

// CpioEntry is a member of a cpio archive.
type CpioEntry struct {
	entryHeader
	Format    CpioFormat
	Inode     int64
	Mode      int64
	UID       int64
	GID       int64
	NLink     int64
	DevMajor  int64
	DevMinor  int64
	RDevMajor int64
	RDevMinor int64

	// Checksum is the sum of all payload bytes, used by CpioCRC.
	Checksum uint32
}

// NewCpioEntry returns a regular file entry with mode 0644, one link and
// the current time as modification time.
func NewCpioEntry(name string, size int64) *CpioEntry {
	e := &CpioEntry{entryHeader: newEntryHeader(name, size), NLink: 1}
	e.Mode = e.typ.modeBits() | 0o644
	if e.IsDir() {
		e.Mode = modeDir | 0o755
		e.NLink = 2
	}
	e.modTime = time.Now().Truncate(time.Second)
	return e
}

const (
	cpioBlockSize    = 512
	cpioNewHeaderLen = 110
	cpioOldHeaderLen = 76
	cpioTrailer      = "TRAILER!!!"
)

// byteSum is the checksum of the "070702" format: the unsigned 32-bit
// sum of all payload bytes.
type byteSum uint32

func (s *byteSum) Write(p []byte) (int, error) {
	for _, b := range p {
		*s += byteSum(b)
	}
	return len(p), nil
}

func (s *byteSum) Sum(b []byte) []byte {
	v := uint32(*s)
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (s *byteSum) Reset()         { *s = 0 }
func (s *byteSum) Size() int      { return 4 }
func (s *byteSum) BlockSize() int { return 1 }
func (s *byteSum) Sum32() uint32  { return uint32(*s) }

type cpioWriter struct {
	w      *iox.CountingWriter
	format CpioFormat
	block  int64
	names  nameCodec
	log    *slog.Logger

	inode   int64
	size    int64
	written int64
	sum     byteSum
	want    uint32
}

func (cw *cpioWriter) putEntry(e Entry) error {
	if e.Size() < 0 {
		return fmt.Errorf("%w: cpio entry %q needs a size", ErrInvalidState, e.Name())
	}
	ce, ok := e.(*CpioEntry)
	if !ok {
		ce = NewCpioEntry(e.Name(), e.Size())
		ce.SetType(e.Type())
		ce.Mode = e.Type().modeBits() | 0o644
		if e.IsDir() {
			ce.Mode = modeDir | 0o755
		}
		ce.modTime = e.ModTime()
	}
	h := *ce
	h.name = e.Name()
	h.size = e.Size()
	if h.Inode == 0 {
		h.Inode = cw.inode
		cw.inode++
	}
	if h.NLink == 0 {
		h.NLink = 1
	}
	if err := cw.writeHeader(&h); err != nil {
		return err
	}
	cw.size = h.size
	cw.written = 0
	cw.sum = 0
	cw.want = h.Checksum
	return nil
}

func (cw *cpioWriter) writeHeader(e *CpioEntry) error {
	name, err := cw.names.encode("cpio", e.name)
	if err != nil {
		return err
	}
	name = append(name, 0)
	var mtime int64
	if !e.modTime.IsZero() {
		mtime = e.modTime.Unix()
	}

	var hdr bytes.Buffer
	hdr.WriteString(cw.format.magic())
	if cw.format == CpioOldASCII {
		for _, f := range []struct {
			v     int64
			width int
		}{
			{e.DevMajor<<8 | e.DevMinor&0xff, 6},
			{e.Inode, 6},
			{e.Mode, 6},
			{e.UID, 6},
			{e.GID, 6},
			{e.NLink, 6},
			{e.RDevMajor<<8 | e.RDevMinor&0xff, 6},
			{mtime, 11},
			{int64(len(name)), 6},
			{e.size, 11},
		} {
			if err := cpioField(&hdr, f.v, f.width, 8); err != nil {
				return err
			}
		}
		if _, err := cw.w.Write(hdr.Bytes()); err != nil {
			return err
		}
		_, err := cw.w.Write(name)
		return err
	}

	var check int64
	if cw.format == CpioCRC {
		check = int64(e.Checksum)
	}
	for _, v := range []int64{
		e.Inode, e.Mode, e.UID, e.GID, e.NLink, mtime, e.size,
		e.DevMajor, e.DevMinor, e.RDevMajor, e.RDevMinor,
		int64(len(name)), check,
	} {
		if err := cpioField(&hdr, v, 8, 16); err != nil {
			return err
		}
	}
	if _, err := cw.w.Write(hdr.Bytes()); err != nil {
		return err
	}
	if _, err := cw.w.Write(name); err != nil {
		return err
	}
	return cw.pad(4)
}

func (cw *cpioWriter) pad(align int64) error {
	if cw.format == CpioOldASCII {
		return nil
	}
	return iox.WriteZeros(cw.w, iox.PadLen(cw.w.N, align))
}

func cpioField(buf *bytes.Buffer, v int64, width, base int) error {
	if v < 0 {
		return formatErr("cpio", "negative header value %d", v)
	}
	s := strconv.FormatInt(v, base)
	if base == 16 {
		s = string(bytes.ToUpper([]byte(s)))
	}
	if len(s) > width {
		return formatErr("cpio", "value %d does not fit a %d digit header field", v, width)
	}
	for i := len(s); i < width; i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(s)
	return nil
}

func (cw *cpioWriter) write(p []byte) (int, error) {
	if cw.written+int64(len(p)) > cw.size {
		return 0, fmt.Errorf("%w: %d bytes exceed declared size %d", ErrSizeMismatch, cw.written+int64(len(p)), cw.size)
	}
	n, err := cw.w.Write(p)
	cw.written += int64(n)
	cw.sum.Write(p[:n])
	return n, err
}

func (cw *cpioWriter) closeEntry() error {
	if cw.written != cw.size {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, cw.written, cw.size)
	}
	if cw.format == CpioCRC && uint32(cw.sum) != cw.want {
		return formatErr("cpio", "payload checksum %d does not match entry checksum %d", uint32(cw.sum), cw.want)
	}
	return cw.pad(4)
}

func (cw *cpioWriter) finish() error {
	trailer := &CpioEntry{entryHeader: entryHeader{name: cpioTrailer}, NLink: 1}
	if err := cw.writeHeader(trailer); err != nil {
		return err
	}
	return iox.WriteZeros(cw.w, iox.PadLen(cw.w.N, cw.block))
}

type cpioReader struct {
	br    *bufio.Reader
	names nameCodec
	log   *slog.Logger

	cr     *iox.CountingReader
	body   bodyReader
	check  *checksum.Reader
	format CpioFormat
	done   bool
}

func (cr *cpioReader) next() (Entry, error) {
	if cr.done {
		return nil, io.EOF
	}
	if cr.cr == nil {
		cr.cr = &iox.CountingReader{R: cr.br}
	}
	if err := cr.body.skipRest(); err != nil {
		return nil, err
	}
	cr.check = nil
	if cr.body.r != nil {
		if err := cr.align(); err != nil {
			return nil, err
		}
	}

	magic := make([]byte, 6)
	if err := readHeader(cr.cr, magic, "cpio"); err != nil {
		if err == io.EOF {
			return nil, formatErr("cpio", "missing trailer")
		}
		return nil, err
	}
	var e *CpioEntry
	var err error
	switch string(magic) {
	case "070701":
		e, err = cr.readNew(CpioNewASCII)
	case "070702":
		e, err = cr.readNew(CpioCRC)
	case "070707":
		e, err = cr.readOld()
	default:
		return nil, formatErr("cpio", "invalid magic %q", magic)
	}
	if err != nil {
		return nil, err
	}
	if e.name == cpioTrailer {
		cr.done = true
		return nil, io.EOF
	}

	cr.format = e.Format
	cr.body = bodyReader{r: cr.cr, format: "cpio", left: e.size}
	if e.Format == CpioCRC {
		var sum byteSum
		cr.check = checksum.NewReader(&sum, &cr.body, e.size, int64(e.Checksum))
	}
	return e, nil
}

// align skips the padding after a new ASCII header or payload.
func (cr *cpioReader) align() error {
	if cr.format == CpioOldASCII {
		return nil
	}
	if err := iox.Discard(cr.cr, iox.PadLen(cr.cr.N, 4)); err != nil {
		return &FormatError{Format: "cpio", Msg: "truncated padding", Err: err}
	}
	return nil
}

func (cr *cpioReader) readNew(format CpioFormat) (*CpioEntry, error) {
	var hdr [cpioNewHeaderLen - 6]byte
	if err := readHeader(cr.cr, hdr[:], "cpio"); err != nil {
		if err == io.EOF {
			err = formatErr("cpio", "truncated header")
		}
		return nil, err
	}
	var v [13]int64
	for i := range v {
		n, err := strconv.ParseUint(string(hdr[i*8:i*8+8]), 16, 32)
		if err != nil {
			return nil, formatErr("cpio", "invalid hex field %q", hdr[i*8:i*8+8])
		}
		v[i] = int64(n)
	}
	e := &CpioEntry{
		Format:    format,
		Inode:     v[0],
		Mode:      v[1],
		UID:       v[2],
		GID:       v[3],
		NLink:     v[4],
		DevMajor:  v[7],
		DevMinor:  v[8],
		RDevMajor: v[9],
		RDevMinor: v[10],
		Checksum:  uint32(v[12]),
	}
	if err := cr.readName(e, v[11]); err != nil {
		return nil, err
	}
	e.size = v[6]
	e.modTime = time.Unix(v[5], 0)
	e.typ = typeFromMode(e.Mode)
	cr.format = format
	if err := cr.align(); err != nil {
		return nil, err
	}
	return e, nil
}

func (cr *cpioReader) readOld() (*CpioEntry, error) {
	var hdr [cpioOldHeaderLen - 6]byte
	if err := readHeader(cr.cr, hdr[:], "cpio"); err != nil {
		if err == io.EOF {
			err = formatErr("cpio", "truncated header")
		}
		return nil, err
	}
	widths := []int{6, 6, 6, 6, 6, 6, 6, 11, 6, 11}
	v := make([]int64, len(widths))
	off := 0
	for i, w := range widths {
		n, err := strconv.ParseInt(string(hdr[off:off+w]), 8, 64)
		if err != nil || n < 0 {
			return nil, formatErr("cpio", "invalid octal field %q", hdr[off:off+w])
		}
		v[i] = n
		off += w
	}
	e := &CpioEntry{
		Format:    CpioOldASCII,
		DevMajor:  v[0] >> 8,
		DevMinor:  v[0] & 0xff,
		Inode:     v[1],
		Mode:      v[2],
		UID:       v[3],
		GID:       v[4],
		NLink:     v[5],
		RDevMajor: v[6] >> 8,
		RDevMinor: v[6] & 0xff,
	}
	if err := cr.readName(e, v[8]); err != nil {
		return nil, err
	}
	e.size = v[9]
	e.modTime = time.Unix(v[7], 0)
	e.typ = typeFromMode(e.Mode)
	cr.format = CpioOldASCII
	return e, nil
}

func (cr *cpioReader) readName(e *CpioEntry, size int64) error {
	if size <= 0 || size > 1<<16 {
		return formatErr("cpio", "invalid name size %d", size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(cr.cr, raw); err != nil {
		return &FormatError{Format: "cpio", Msg: "truncated name", Err: err}
	}
	if raw[size-1] != 0 {
		return formatErr("cpio", "name is not NUL terminated")
	}
	raw = raw[:size-1]
	if bytes.IndexByte(raw, 0) >= 0 {
		return formatErr("cpio", "name contains NUL")
	}
	name, err := cr.names.decode("cpio", raw)
	if err != nil {
		return err
	}
	if typeFromMode(e.Mode) == TypeDir && name != "" && name[len(name)-1] != '/' {
		name += "/"
	}
	e.name = name
	return nil
}

func (cr *cpioReader) read(p []byte) (int, error) {
	if cr.check != nil {
		return cr.check.Read(p)
	}
	return cr.body.Read(p)
}

func (cr *cpioReader) remaining() int64 { return cr.body.left }

// Interface guards
var (
	_ Archival     = Cpio{}
	_ configurable = Cpio{}
)
