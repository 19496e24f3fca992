package arcstream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

func init() {
	RegisterFormat(Ar{})
}

// ArLongFileMode selects how the ar writer handles names that do not fit
// the 16-byte name field.
type ArLongFileMode int

const (
	// ArLongFileError rejects names longer than 16 bytes or
	// containing spaces.
	ArLongFileError ArLongFileMode = iota

	// ArLongFileBSD stores long names BSD style: the name field holds
	// "#1/<len>" and the name is prepended to the payload.
	ArLongFileBSD
)

// Ar is the Unix ar archive format.
type Ar struct {
	LongFileMode ArLongFileMode

	// EntryEncoding is the charset of stored names. Empty stores the
	// UTF-8 bytes of the name.
	EntryEncoding string

	Logger *slog.Logger
}

func (Ar) Name() string { return "ar" }

func (Ar) Match(header []byte) bool {
	return bytes.HasPrefix(header, arMagic)
}

func (a Ar) configure(opts factoryOptions) Format {
	if opts.encoding != "" {
		a.EntryEncoding = opts.encoding
	}
	if opts.logger != nil {
		a.Logger = opts.logger
	}
	return a
}

func (Ar) NewEntry(name string, size int64) Entry {
	return NewArEntry(name, size)
}

func (a Ar) OpenArchiveWriter(w io.Writer) (ArchiveWriter, error) {
	return newArchiveWriter(a.Name(), w, func(cw io.Writer) writeDriver {
		return &arWriter{
			w:     cw,
			mode:  a.LongFileMode,
			names: newNameCodec(a.EntryEncoding),
			log:   discardLogger(a.Logger),
		}
	}), nil
}

func (a Ar) OpenArchiveReader(r io.Reader) (ArchiveReader, error) {
	return newArchiveReader(a.Name(), r, func(br *bufio.Reader) readDriver {
		return &arReader{
			br:    br,
			names: newNameCodec(a.EntryEncoding),
			log:   discardLogger(a.Logger),
		}
	}), nil
}

// ArEntry is a member of an ar archive.
type ArEntry struct {
	entryHeader
	UID  int
	GID  int
	Mode int64
}

// NewArEntry returns an entry with the current time as modification
// time. Its mode is 0644, or 0755 for directories.
func NewArEntry(name string, size int64) *ArEntry {
	e := &ArEntry{entryHeader: newEntryHeader(name, size), Mode: modeRegular | 0o644}
	if e.IsDir() {
		e.Mode = modeDir | 0o755
	}
	e.modTime = time.Now().Truncate(time.Second)
	return e
}

const (
	arHeaderLen  = 60
	arNameLen    = 16
	arBSDPrefix  = "#1/"
	arGNUNames   = "//"
	arGNUSymbols = "/"
)

var (
	arMagic      = []byte("!<arch>\n")
	arHeaderTerm = []byte("`\n")
)

type arWriter struct {
	w     io.Writer
	mode  ArLongFileMode
	names nameCodec
	log   *slog.Logger

	wroteMagic bool
	size       int64 // payload declared for the current entry
	written    int64
	prefix     int64 // BSD long name bytes preceding the payload
}

func (aw *arWriter) putEntry(e Entry) error {
	if e.Size() < 0 {
		return fmt.Errorf("%w: ar entry %q needs a size", ErrInvalidState, e.Name())
	}
	name, err := aw.names.encode("ar", e.Name())
	if err != nil {
		return err
	}

	field := name
	aw.prefix = 0
	if len(name) > arNameLen || bytes.IndexByte(name, ' ') >= 0 {
		if aw.mode != ArLongFileBSD {
			return formatErr("ar", "entry name %q is too long", e.Name())
		}
		field = []byte(arBSDPrefix + strconv.Itoa(len(name)))
		aw.prefix = int64(len(name))
	}

	uid, gid, mode := 0, 0, e.Type().modeBits()|0o644
	if e.IsDir() {
		mode = modeDir | 0o755
	}
	if ae, ok := e.(*ArEntry); ok {
		uid, gid, mode = ae.UID, ae.GID, ae.Mode
		if typeFromMode(mode) != e.Type() {
			// SetType was called after the mode was filled in
			mode = e.Type().modeBits() | mode&0o7777
		}
	}
	var mtime int64
	if t := e.ModTime(); !t.IsZero() {
		mtime = t.Unix()
	}

	var hdr bytes.Buffer
	hdr.Grow(arHeaderLen)
	fields := []struct {
		val   string
		width int
	}{
		{string(field), arNameLen},
		{strconv.FormatInt(mtime, 10), 12},
		{strconv.Itoa(uid), 6},
		{strconv.Itoa(gid), 6},
		{strconv.FormatInt(mode, 8), 8},
		{strconv.FormatInt(e.Size()+aw.prefix, 10), 10},
	}
	for _, f := range fields {
		if len(f.val) > f.width {
			return formatErr("ar", "value %s does not fit a %d byte header field", f.val, f.width)
		}
		hdr.WriteString(f.val)
		hdr.WriteString(strings.Repeat(" ", f.width-len(f.val)))
	}
	hdr.Write(arHeaderTerm)

	if !aw.wroteMagic {
		if _, err := aw.w.Write(arMagic); err != nil {
			return err
		}
		aw.wroteMagic = true
	}
	if _, err := aw.w.Write(hdr.Bytes()); err != nil {
		return err
	}
	if aw.prefix > 0 {
		if _, err := aw.w.Write(name); err != nil {
			return err
		}
	}
	aw.size = e.Size()
	aw.written = 0
	return nil
}

func (aw *arWriter) write(p []byte) (int, error) {
	if aw.written+int64(len(p)) > aw.size {
		return 0, fmt.Errorf("%w: %d bytes exceed declared size %d", ErrSizeMismatch, aw.written+int64(len(p)), aw.size)
	}
	n, err := aw.w.Write(p)
	aw.written += int64(n)
	return n, err
}

func (aw *arWriter) closeEntry() error {
	if aw.written != aw.size {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, aw.written, aw.size)
	}
	if (aw.prefix+aw.size)%2 != 0 {
		_, err := aw.w.Write([]byte{'\n'})
		return err
	}
	return nil
}

func (aw *arWriter) finish() error {
	if aw.wroteMagic {
		return nil
	}
	aw.wroteMagic = true
	_, err := aw.w.Write(arMagic)
	return err
}

type arReader struct {
	br    *bufio.Reader
	names nameCodec
	log   *slog.Logger

	started   bool
	body      bodyReader
	pad       int64
	longNames []byte // GNU "//" member
	hdr       [arHeaderLen]byte
}

func (ar *arReader) next() (Entry, error) {
	if err := ar.body.skipRest(); err != nil {
		return nil, err
	}
	if err := skipPadding(ar.br, ar.pad); err != nil {
		return nil, err
	}
	ar.pad = 0

	if !ar.started {
		magic := make([]byte, len(arMagic))
		if err := readHeader(ar.br, magic, "ar"); err != nil {
			if err == io.EOF {
				return nil, formatErr("ar", "empty stream")
			}
			return nil, err
		}
		if !bytes.Equal(magic, arMagic) {
			return nil, formatErr("ar", "invalid magic %q", magic)
		}
		ar.started = true
	}

	for {
		if err := readHeader(ar.br, ar.hdr[:], "ar"); err != nil {
			return nil, err
		}
		if !bytes.Equal(ar.hdr[58:60], arHeaderTerm) {
			return nil, formatErr("ar", "invalid header terminator %q", ar.hdr[58:60])
		}
		size, err := arNumber(ar.hdr[48:58], 10)
		if err != nil {
			return nil, err
		}
		pad := size % 2
		field := strings.TrimRight(string(ar.hdr[:arNameLen]), " ")

		switch {
		case field == arGNUNames:
			ar.longNames = make([]byte, size)
			if _, err := io.ReadFull(ar.br, ar.longNames); err != nil {
				return nil, &FormatError{Format: "ar", Msg: "truncated name table", Err: err}
			}
			if err := skipPadding(ar.br, pad); err != nil {
				return nil, err
			}
			continue
		case field == arGNUSymbols || field == "/SYM64/" || field == "__.SYMDEF" || field == "__.SYMDEF SORTED":
			ar.log.Debug("skipping ar symbol table", "member", field, "size", size)
			if err := (&bodyReader{r: ar.br, format: "ar", left: size + pad}).skipRest(); err != nil {
				return nil, err
			}
			continue
		}

		var rawName []byte
		switch {
		case strings.HasPrefix(field, arBSDPrefix):
			n, err := strconv.ParseInt(field[len(arBSDPrefix):], 10, 64)
			if err != nil || n < 0 || n > size {
				return nil, formatErr("ar", "invalid BSD name length %q", field)
			}
			rawName = make([]byte, n)
			if _, err := io.ReadFull(ar.br, rawName); err != nil {
				return nil, &FormatError{Format: "ar", Msg: "truncated name", Err: err}
			}
			rawName = bytes.TrimRight(rawName, "\x00")
			size -= n
		case len(field) > 1 && field[0] == '/' && isDigits(field[1:]):
			off, _ := strconv.Atoi(field[1:])
			if off >= len(ar.longNames) {
				return nil, formatErr("ar", "name offset %d outside name table of %d bytes", off, len(ar.longNames))
			}
			rawName = ar.longNames[off:]
			if end := bytes.IndexByte(rawName, '\n'); end >= 0 {
				rawName = rawName[:end]
			}
			rawName = bytes.TrimSuffix(rawName, []byte("/"))
		default:
			rawName = []byte(strings.TrimSuffix(field, "/"))
		}

		name, err := ar.names.decode("ar", rawName)
		if err != nil {
			return nil, err
		}
		mtime, err := arNumber(ar.hdr[16:28], 10)
		if err != nil {
			return nil, err
		}
		uid, err := arNumber(ar.hdr[28:34], 10)
		if err != nil {
			return nil, err
		}
		gid, err := arNumber(ar.hdr[34:40], 10)
		if err != nil {
			return nil, err
		}
		mode, err := arNumber(ar.hdr[40:48], 8)
		if err != nil {
			return nil, err
		}

		typ := typeFromMode(mode)
		if typ == TypeDir && !strings.HasSuffix(name, "/") {
			name += "/"
		}
		e := &ArEntry{
			entryHeader: entryHeader{name: name, size: size, typ: typ, modTime: time.Unix(mtime, 0)},
			UID:         int(uid),
			GID:         int(gid),
			Mode:        mode,
		}
		ar.body = bodyReader{r: ar.br, format: "ar", left: size}
		ar.pad = pad
		return e, nil
	}
}

func (ar *arReader) read(p []byte) (int, error) { return ar.body.Read(p) }

func (ar *arReader) remaining() int64 { return ar.body.left }

// arNumber parses a space padded numeric header field. Blank fields are 0.
func arNumber(field []byte, base int) (int64, error) {
	s := strings.TrimSpace(string(field))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, base, 64)
	if err != nil || n < 0 {
		return 0, formatErr("ar", "invalid numeric field %q", s)
	}
	return n, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// Interface guards
var (
	_ Archival     = Ar{}
	_ configurable = Ar{}
)
