package arcstream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	fastxz "github.com/therootcompany/xz"
	"github.com/ulikunitz/xz"

	"github.com/mholt/arcstream/checksum"
	"github.com/mholt/arcstream/internal/iox"
	"github.com/mholt/arcstream/zipenc"
)

func init() {
	RegisterFormat(Zip{})
}

// ZipMethod is a zip compression method.
type ZipMethod uint16

// Compression methods.
// see https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT.
const (
	ZipStore   ZipMethod = 0
	ZipDeflate ZipMethod = 8
	ZipBZIP2   ZipMethod = 12
	ZipZSTD    ZipMethod = 93
	ZipXZ      ZipMethod = 95
)

// UnicodeExtraPolicy controls when the writer adds an Info-ZIP Unicode
// path extra field (0x7075) holding the UTF-8 name.
type UnicodeExtraPolicy int

const (
	UnicodeExtraNever UnicodeExtraPolicy = iota
	UnicodeExtraAlways
	UnicodeExtraNotEncodable
)

// Zip is the zip archive format, written and read as a stream. Entries
// compressed with DEFLATE are streamed and followed by a data descriptor;
// entries using any other method are held in memory until CloseEntry so
// their sizes and CRC can go into the local header.
type Zip struct {
	// EntryEncoding is the charset of entry names and comments.
	// Empty means UTF-8. Names flagged as UTF-8 are always read as UTF-8.
	EntryEncoding string

	// FallbackToUTF8 stores names the charset cannot encode as UTF-8
	// instead of escaping them.
	FallbackToUTF8 bool

	// UnicodeExtra selects when a Unicode path extra field is written.
	// It is never written for names stored as UTF-8.
	UnicodeExtra UnicodeExtraPolicy

	// DEFLATE compression level. If 0, DefaultCompression is assumed
	// rather than no compression.
	CompressionLevel int

	Logger *slog.Logger
}

func (Zip) Name() string { return "zip" }

func (Zip) Match(header []byte) bool {
	for _, sig := range [][]byte{
		[]byte("PK\x03\x04"), // local file header
		[]byte("PK\x05\x06"), // empty archive
		[]byte("PK\x07\x08"), // spanned archive marker
	} {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	return false
}

func (z Zip) configure(opts factoryOptions) Format {
	if opts.encoding != "" {
		z.EntryEncoding = opts.encoding
	}
	if opts.logger != nil {
		z.Logger = opts.logger
	}
	return z
}

func (Zip) NewEntry(name string, size int64) Entry {
	return NewZipEntry(name, size)
}

func (z Zip) encoding() zipenc.Encoding {
	if z.EntryEncoding == "" {
		return zipenc.UTF8
	}
	return zipenc.Lookup(z.EntryEncoding)
}

func (z Zip) OpenArchiveWriter(w io.Writer) (ArchiveWriter, error) {
	return z.openWriter(z.Name(), w, false), nil
}

func (z Zip) openWriter(format string, w io.Writer, jar bool) ArchiveWriter {
	return newArchiveWriter(format, w, func(dst io.Writer) writeDriver {
		return &zipWriter{
			z:   z,
			jar: jar,
			w:   &iox.CountingWriter{W: dst},
			enc: z.encoding(),
			log: discardLogger(z.Logger),
		}
	})
}

func (z Zip) OpenArchiveReader(r io.Reader) (ArchiveReader, error) {
	return z.openReader(z.Name(), r, false), nil
}

func (z Zip) openReader(format string, r io.Reader, jar bool) ArchiveReader {
	return newArchiveReader(format, r, func(br *bufio.Reader) readDriver {
		return &zipReader{
			br:  br,
			jar: jar,
			enc: z.encoding(),
			log: discardLogger(z.Logger),
		}
	})
}

// ZipEntry is a member of a zip archive.
type ZipEntry struct {
	entryHeader
	Method         ZipMethod
	CRC32          uint32
	CompressedSize int64

	// Extra holds extra fields as stored in the local header. Fields the
	// writer manages itself (zip64, Unicode path, jar marker) are
	// dropped from it when writing.
	Extra   []byte
	Comment string

	// ExternalAttrs carries the unix mode in its upper 16 bits.
	ExternalAttrs uint32

	// RawName is the name as stored in the archive. Set by readers.
	RawName []byte
	Flags   uint16
}

// NewZipEntry returns a DEFLATE entry with the current time as
// modification time. Directories are stored.
func NewZipEntry(name string, size int64) *ZipEntry {
	e := &ZipEntry{entryHeader: newEntryHeader(name, size), Method: ZipDeflate, CompressedSize: SizeUnknown}
	if e.IsDir() {
		e.Method = ZipStore
	}
	e.modTime = time.Now().Truncate(time.Second)
	return e
}

const (
	zipLocalSig      = 0x04034b50
	zipCentralSig    = 0x02014b50
	zipDescriptorSig = 0x08074b50
	zipEOCDSig       = 0x06054b50
	zip64EOCDSig     = 0x06064b50

	zipFlagEncrypted  = 0x1
	zipFlagDescriptor = 0x8
	zipFlagEFS        = 0x800

	zipExtraZip64       = 0x0001
	zipExtraUnicodePath = 0x7075
	zipExtraJarMarker   = 0xCAFE

	zipLocalHeaderLen   = 30
	zipCentralHeaderLen = 46
	zipMadeByUnix       = 3 << 8
	uint32max           = 1<<32 - 1
	uint16max           = 1<<16 - 1
)

var le = binary.LittleEndian

func zipVersionNeeded(m ZipMethod, dir bool) uint16 {
	switch m {
	case ZipDeflate:
		return 20
	case ZipBZIP2:
		return 46
	case ZipZSTD, ZipXZ:
		return 63
	}
	if dir {
		return 20
	}
	return 10
}

// dosDateTime converts t to MS-DOS date and time. Times before 1980,
// including the zero time, map to 1980-01-01 00:00. Fields are taken
// in UTC.
func dosDateTime(t time.Time) (date, tm uint16) {
	t = t.UTC()
	if t.IsZero() || t.Year() < 1980 {
		return 1<<5 | 1, 0
	}
	if t.Year() > 2107 {
		t = time.Date(2107, 12, 31, 23, 59, 58, 0, t.Location())
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	tm = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, tm
}

func timeFromDOS(date, tm uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(tm>>11),
		int(tm>>5&0x3f),
		int(tm&0x1f)*2,
		0,
		time.UTC,
	)
}

// forEachExtra calls fn for each well-formed field of a zip extra block.
// It reports whether the whole block was well-formed.
func forEachExtra(extra []byte, fn func(id uint16, data []byte)) bool {
	for len(extra) >= 4 {
		id := le.Uint16(extra)
		size := int(le.Uint16(extra[2:]))
		if len(extra) < 4+size {
			return false
		}
		fn(id, extra[4:4+size])
		extra = extra[4+size:]
	}
	return len(extra) == 0
}

func appendExtra(b []byte, id uint16, data []byte) []byte {
	b = le.AppendUint16(b, id)
	b = le.AppendUint16(b, uint16(len(data)))
	return append(b, data...)
}

// zipRecord is what the writer remembers of an entry for the central
// directory.
type zipRecord struct {
	name     []byte
	extra    []byte
	comment  []byte
	flags    uint16
	method   ZipMethod
	version  uint16
	date     uint16
	time     uint16
	crc      uint32
	csize    int64
	usize    int64
	offset   int64
	extAttrs uint32
}

type zipWriter struct {
	z   Zip
	jar bool
	w   *iox.CountingWriter
	enc zipenc.Encoding
	log *slog.Logger

	dir   []zipRecord
	cur   zipRecord
	size  int64
	usize int64
	crc   hash.Hash32
	fw    *flate.Writer
	cw    *iox.CountingWriter // compressed bytes of a streamed entry
	buf   bytes.Buffer        // payload of an entry written on close
}

func (zw *zipWriter) putEntry(e Entry) error {
	var ze *ZipEntry
	switch v := e.(type) {
	case *ZipEntry:
		ze = v
	case *JarEntry:
		ze = &v.ZipEntry
	}

	rec := zipRecord{method: ZipDeflate, offset: zw.w.N}
	mode := e.Type().modeBits() | 0o644
	if e.IsDir() {
		mode = modeDir | 0o755
	}
	rec.extAttrs = uint32(mode) << 16
	if e.IsDir() {
		rec.extAttrs |= 0x10
	}
	var userExtra []byte
	if ze != nil {
		rec.method = ze.Method
		userExtra = ze.Extra
		if ze.ExternalAttrs != 0 {
			rec.extAttrs = ze.ExternalAttrs
		}
		if ze.Comment != "" {
			c, err := zw.enc.Encode(ze.Comment)
			if err != nil {
				return fmt.Errorf("zip: comment of %q: %w", e.Name(), err)
			}
			rec.comment = c
		}
	}
	if e.IsDir() {
		rec.method = ZipStore
	}
	switch rec.method {
	case ZipStore, ZipDeflate, ZipBZIP2, ZipZSTD, ZipXZ:
	default:
		return fmt.Errorf("%w: zip compression method %d", ErrNotSupported, rec.method)
	}
	if e.Size() > uint32max {
		return fmt.Errorf("%w: zip entry %q exceeds 4 GiB", ErrNotSupported, e.Name())
	}

	name, utf8, err := zw.encodeName(e.Name())
	if err != nil {
		return err
	}
	rec.name = name
	if utf8 {
		rec.flags |= zipFlagEFS
	}

	var extra []byte
	if zw.jar && len(zw.dir) == 0 {
		extra = appendExtra(extra, zipExtraJarMarker, nil)
	}
	if !utf8 && (zw.z.UnicodeExtra == UnicodeExtraAlways ||
		zw.z.UnicodeExtra == UnicodeExtraNotEncodable && !zw.enc.CanEncode(e.Name())) {
		data := []byte{1}
		data = le.AppendUint32(data, crc32.ChecksumIEEE(name))
		data = append(data, e.Name()...)
		extra = appendExtra(extra, zipExtraUnicodePath, data)
	}
	if !forEachExtra(userExtra, func(id uint16, data []byte) {
		switch id {
		case zipExtraZip64, zipExtraUnicodePath, zipExtraJarMarker:
			return
		}
		extra = appendExtra(extra, id, data)
	}) {
		zw.log.Debug("dropping malformed tail of zip extra field", "entry", e.Name())
	}
	rec.extra = extra
	if len(rec.name) > uint16max || len(rec.extra) > uint16max || len(rec.comment) > uint16max {
		return formatErr("zip", "name, extra field or comment of %q is too long", e.Name())
	}

	rec.version = zipVersionNeeded(rec.method, e.IsDir())
	rec.date, rec.time = dosDateTime(e.ModTime())

	zw.cur = rec
	zw.size = e.Size()
	zw.usize = 0
	zw.crc = crc32.NewIEEE()
	zw.buf.Reset()

	if rec.method == ZipDeflate {
		zw.cur.flags |= zipFlagDescriptor
		if err := zw.writeLocal(&zw.cur); err != nil {
			return err
		}
		level := zw.z.CompressionLevel
		if level == 0 {
			level = flate.DefaultCompression
		}
		zw.cw = &iox.CountingWriter{W: zw.w}
		fw, err := flate.NewWriter(zw.cw, level)
		if err != nil {
			return fmt.Errorf("zip: %w", err)
		}
		zw.fw = fw
	}
	return nil
}

// encodeName returns the stored name and whether it is UTF-8.
func (zw *zipWriter) encodeName(name string) ([]byte, bool, error) {
	if zw.z.FallbackToUTF8 && !zw.enc.CanEncode(name) {
		return []byte(name), true, nil
	}
	b, err := zw.enc.Encode(name)
	if err != nil {
		return nil, false, fmt.Errorf("zip: entry name %q: %w", name, err)
	}
	return b, zipenc.IsUTF8(zw.enc), nil
}

func (zw *zipWriter) writeLocal(rec *zipRecord) error {
	b := make([]byte, zipLocalHeaderLen, zipLocalHeaderLen+len(rec.name)+len(rec.extra))
	le.PutUint32(b[0:], zipLocalSig)
	le.PutUint16(b[4:], rec.version)
	le.PutUint16(b[6:], rec.flags)
	le.PutUint16(b[8:], uint16(rec.method))
	le.PutUint16(b[10:], rec.time)
	le.PutUint16(b[12:], rec.date)
	if rec.flags&zipFlagDescriptor == 0 {
		le.PutUint32(b[14:], rec.crc)
		le.PutUint32(b[18:], uint32(rec.csize))
		le.PutUint32(b[22:], uint32(rec.usize))
	}
	le.PutUint16(b[26:], uint16(len(rec.name)))
	le.PutUint16(b[28:], uint16(len(rec.extra)))
	b = append(b, rec.name...)
	b = append(b, rec.extra...)
	_, err := zw.w.Write(b)
	return err
}

func (zw *zipWriter) write(p []byte) (int, error) {
	if zw.size >= 0 && zw.usize+int64(len(p)) > zw.size {
		return 0, fmt.Errorf("%w: %d bytes exceed declared size %d", ErrSizeMismatch, zw.usize+int64(len(p)), zw.size)
	}
	if zw.usize+int64(len(p)) > uint32max {
		return 0, fmt.Errorf("%w: zip entry exceeds 4 GiB", ErrNotSupported)
	}
	var n int
	var err error
	if zw.fw != nil {
		n, err = zw.fw.Write(p)
	} else {
		n, err = zw.buf.Write(p)
	}
	zw.crc.Write(p[:n])
	zw.usize += int64(n)
	return n, err
}

func (zw *zipWriter) closeEntry() error {
	if zw.size >= 0 && zw.usize != zw.size {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, zw.usize, zw.size)
	}
	rec := &zw.cur
	rec.crc = zw.crc.Sum32()
	rec.usize = zw.usize

	if zw.fw != nil {
		if err := zw.fw.Close(); err != nil {
			return fmt.Errorf("zip: compressing: %w", err)
		}
		zw.fw = nil
		rec.csize = zw.cw.N
		if rec.csize > uint32max {
			return fmt.Errorf("%w: compressed zip entry exceeds 4 GiB", ErrNotSupported)
		}
		d := make([]byte, 0, 16)
		d = le.AppendUint32(d, zipDescriptorSig)
		d = le.AppendUint32(d, rec.crc)
		d = le.AppendUint32(d, uint32(rec.csize))
		d = le.AppendUint32(d, uint32(rec.usize))
		if _, err := zw.w.Write(d); err != nil {
			return err
		}
	} else {
		data, err := compressZipPayload(rec.method, zw.buf.Bytes())
		if err != nil {
			return err
		}
		rec.csize = int64(len(data))
		if rec.csize > uint32max {
			return fmt.Errorf("%w: compressed zip entry exceeds 4 GiB", ErrNotSupported)
		}
		if err := zw.writeLocal(rec); err != nil {
			return err
		}
		if _, err := zw.w.Write(data); err != nil {
			return err
		}
		zw.buf.Reset()
	}
	zw.dir = append(zw.dir, *rec)
	return nil
}

func compressZipPayload(m ZipMethod, data []byte) ([]byte, error) {
	var out bytes.Buffer
	switch m {
	case ZipStore:
		return data, nil
	case ZipBZIP2:
		bw, err := bzip2.NewWriter(&out, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, err
		}
		if _, err := bw.Write(data); err != nil {
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
	case ZipZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case ZipXZ:
		xw, err := xz.NewWriter(&out)
		if err != nil {
			return nil, err
		}
		if _, err := xw.Write(data); err != nil {
			return nil, err
		}
		if err := xw.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: zip compression method %d", ErrNotSupported, m)
	}
	return out.Bytes(), nil
}

func (zw *zipWriter) finish() error {
	start := zw.w.N
	for i := range zw.dir {
		rec := &zw.dir[i]
		b := make([]byte, zipCentralHeaderLen, zipCentralHeaderLen+len(rec.name)+len(rec.extra)+len(rec.comment))
		le.PutUint32(b[0:], zipCentralSig)
		le.PutUint16(b[4:], zipMadeByUnix|63)
		le.PutUint16(b[6:], rec.version)
		le.PutUint16(b[8:], rec.flags)
		le.PutUint16(b[10:], uint16(rec.method))
		le.PutUint16(b[12:], rec.time)
		le.PutUint16(b[14:], rec.date)
		le.PutUint32(b[16:], rec.crc)
		le.PutUint32(b[20:], uint32(rec.csize))
		le.PutUint32(b[24:], uint32(rec.usize))
		le.PutUint16(b[28:], uint16(len(rec.name)))
		le.PutUint16(b[30:], uint16(len(rec.extra)))
		le.PutUint16(b[32:], uint16(len(rec.comment)))
		// disk number start and internal attributes stay zero
		le.PutUint32(b[38:], rec.extAttrs)
		if rec.offset > uint32max {
			return fmt.Errorf("%w: zip archive exceeds 4 GiB", ErrNotSupported)
		}
		le.PutUint32(b[42:], uint32(rec.offset))
		b = append(b, rec.name...)
		b = append(b, rec.extra...)
		b = append(b, rec.comment...)
		if _, err := zw.w.Write(b); err != nil {
			return err
		}
	}
	end := zw.w.N
	if len(zw.dir) > uint16max || end > uint32max {
		return fmt.Errorf("%w: zip archive needs zip64 records", ErrNotSupported)
	}

	b := make([]byte, 22)
	le.PutUint32(b[0:], zipEOCDSig)
	le.PutUint16(b[8:], uint16(len(zw.dir)))
	le.PutUint16(b[10:], uint16(len(zw.dir)))
	le.PutUint32(b[12:], uint32(end-start))
	le.PutUint32(b[16:], uint32(start))
	_, err := zw.w.Write(b)
	return err
}

type zipReader struct {
	br  *bufio.Reader
	jar bool
	enc zipenc.Encoding
	log *slog.Logger

	cur  *zipBody
	done bool
}

// zipBody is the payload of the entry being read.
type zipBody struct {
	payload io.Reader // decompressed and verified; nil if the method is unsupported
	decomp  io.Reader // drained to its end before the next header
	raw     *bodyReader
	closer  io.Closer
	method  ZipMethod

	size int64
	n    int64
}

func (b *zipBody) read(p []byte) (int, error) {
	if b.payload == nil {
		return 0, fmt.Errorf("%w: zip compression method %d", ErrNotSupported, b.method)
	}
	n, err := b.payload.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *zipBody) finish() error {
	if b.closer != nil {
		defer b.closer.Close()
	}
	if b.payload != nil {
		if _, err := io.Copy(io.Discard, b.payload); err != nil {
			return err
		}
	}
	if b.decomp != nil {
		if _, err := io.Copy(io.Discard, b.decomp); err != nil {
			return &FormatError{Format: "zip", Msg: "decompressing", Err: err}
		}
	}
	if b.raw != nil {
		return b.raw.skipRest()
	}
	return nil
}

func (zr *zipReader) next() (Entry, error) {
	if zr.done {
		return nil, io.EOF
	}
	if zr.cur != nil {
		cur := zr.cur
		zr.cur = nil
		if err := cur.finish(); err != nil {
			return nil, err
		}
	}

	var sig [4]byte
	if err := readHeader(zr.br, sig[:], "zip"); err != nil {
		if err == io.EOF {
			zr.done = true
		}
		return nil, err
	}
	switch le.Uint32(sig[:]) {
	case zipLocalSig:
	case zipCentralSig, zipEOCDSig, zip64EOCDSig:
		zr.done = true
		return nil, io.EOF
	default:
		return nil, formatErr("zip", "unexpected signature %#08x", le.Uint32(sig[:]))
	}

	var hdr [zipLocalHeaderLen - 4]byte
	if err := readHeader(zr.br, hdr[:], "zip"); err != nil {
		if err == io.EOF {
			err = formatErr("zip", "truncated header")
		}
		return nil, err
	}
	flags := le.Uint16(hdr[2:])
	method := ZipMethod(le.Uint16(hdr[4:]))
	crc := le.Uint32(hdr[10:])
	csize := int64(le.Uint32(hdr[14:]))
	usize := int64(le.Uint32(hdr[18:]))
	rawName := make([]byte, le.Uint16(hdr[22:]))
	extra := make([]byte, le.Uint16(hdr[24:]))
	if _, err := io.ReadFull(zr.br, rawName); err != nil {
		return nil, &FormatError{Format: "zip", Msg: "truncated name", Err: err}
	}
	if _, err := io.ReadFull(zr.br, extra); err != nil {
		return nil, &FormatError{Format: "zip", Msg: "truncated extra field", Err: err}
	}
	if flags&zipFlagEncrypted != 0 {
		return nil, fmt.Errorf("%w: encrypted zip entry %q", ErrNotSupported, rawName)
	}

	var zip64 bool
	var unicodeName []byte
	var unicodeCRC uint32
	if !forEachExtra(extra, func(id uint16, data []byte) {
		switch id {
		case zipExtraZip64:
			zip64 = true
			if usize == uint32max && len(data) >= 8 {
				usize = int64(le.Uint64(data))
				data = data[8:]
			}
			if csize == uint32max && len(data) >= 8 {
				csize = int64(le.Uint64(data))
			}
		case zipExtraUnicodePath:
			if len(data) >= 5 && data[0] == 1 {
				unicodeCRC = le.Uint32(data[1:])
				unicodeName = data[5:]
			}
		case zipExtraJarMarker:
		default:
			zr.log.Debug("ignoring zip extra field", "id", fmt.Sprintf("%#04x", id), "size", len(data))
		}
	}) {
		zr.log.Debug("malformed zip extra field", "entry", string(rawName))
	}

	var name string
	if flags&zipFlagEFS != 0 {
		name = string(rawName)
	} else {
		decoded, err := zr.enc.Decode(rawName)
		if err != nil {
			return nil, fmt.Errorf("zip: %w", err)
		}
		name = decoded
		if unicodeName != nil && unicodeCRC == crc32.ChecksumIEEE(rawName) {
			name = string(unicodeName)
		}
	}

	var je *JarEntry
	var e *ZipEntry
	if zr.jar {
		je = &JarEntry{}
		e = &je.ZipEntry
	} else {
		e = &ZipEntry{}
	}
	e.name = name
	e.typ = TypeFile
	if len(name) > 0 && name[len(name)-1] == '/' {
		e.typ = TypeDir
	}
	e.modTime = timeFromDOS(le.Uint16(hdr[8:]), le.Uint16(hdr[6:]))
	e.Method = method
	e.Flags = flags
	e.Extra = extra
	e.RawName = rawName

	descriptor := flags&zipFlagDescriptor != 0
	if descriptor {
		e.size, e.CompressedSize = SizeUnknown, SizeUnknown
	} else {
		e.size, e.CompressedSize, e.CRC32 = usize, csize, crc
	}

	body := &zipBody{method: method, size: e.size}
	switch method {
	case ZipStore:
		if descriptor {
			return nil, fmt.Errorf("%w: stored zip entry %q with a data descriptor", ErrNotSupported, name)
		}
		if csize != usize {
			return nil, formatErr("zip", "stored entry %q has compressed size %d and size %d", name, csize, usize)
		}
		body.raw = &bodyReader{r: zr.br, format: "zip", left: csize}
		body.payload = zipVerify(checksum.NewReader(crc32.NewIEEE(), body.raw, usize, int64(crc)))
	case ZipDeflate:
		var src io.Reader = zr.br
		if !descriptor {
			body.raw = &bodyReader{r: zr.br, format: "zip", left: csize}
			src = body.raw
		}
		fr := flate.NewReader(src)
		body.decomp, body.closer = fr, fr
		if descriptor {
			body.payload = &zipDescriptorReader{r: fr, br: zr.br, crc: crc32.NewIEEE(), zip64: zip64, entry: e}
		} else {
			body.payload = zipVerify(checksum.NewReader(crc32.NewIEEE(), fr, usize, int64(crc)))
		}
	case ZipBZIP2, ZipZSTD, ZipXZ:
		if descriptor {
			return nil, fmt.Errorf("%w: zip entry %q uses method %d with a data descriptor", ErrNotSupported, name, method)
		}
		body.raw = &bodyReader{r: zr.br, format: "zip", left: csize}
		dec, closer, err := openZipDecompressor(method, body.raw)
		if err != nil {
			return nil, &FormatError{Format: "zip", Msg: "entry " + name, Err: err}
		}
		body.decomp, body.closer = dec, closer
		body.payload = zipVerify(checksum.NewReader(crc32.NewIEEE(), dec, usize, int64(crc)))
	default:
		if descriptor {
			return nil, fmt.Errorf("%w: zip entry %q uses method %d with a data descriptor", ErrNotSupported, name, method)
		}
		zr.log.Debug("unsupported zip method; payload will be skipped", "entry", name, "method", method)
		body.raw = &bodyReader{r: zr.br, format: "zip", left: csize}
	}
	zr.cur = body

	if je != nil {
		return je, nil
	}
	return e, nil
}

func openZipDecompressor(m ZipMethod, r io.Reader) (io.Reader, io.Closer, error) {
	switch m {
	case ZipBZIP2:
		br, err := bzip2.NewReader(r, nil)
		return br, br, err
	case ZipZSTD:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		rc := zr.IOReadCloser()
		return rc, rc, nil
	case ZipXZ:
		xr, err := fastxz.NewReader(r, 0)
		return xr, nil, err
	}
	return nil, nil, fmt.Errorf("%w: zip compression method %d", ErrNotSupported, m)
}

// zipVerify reports checksum failures as format errors.
func zipVerify(r *checksum.Reader) io.Reader {
	return verifyReader{r}
}

type verifyReader struct{ *checksum.Reader }

func (v verifyReader) Read(p []byte) (int, error) {
	n, err := v.Reader.Read(p)
	if err != nil && err != io.EOF && !IsFormatError(err) {
		err = &FormatError{Format: "zip", Msg: "verifying entry", Err: err}
	}
	return n, err
}

// zipDescriptorReader computes the CRC of a streamed entry and checks it
// against the data descriptor that follows the compressed data.
type zipDescriptorReader struct {
	r     io.Reader
	br    *bufio.Reader
	crc   hash.Hash32
	n     int64
	zip64 bool
	entry *ZipEntry
	err   error
}

func (d *zipDescriptorReader) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	n, err := d.r.Read(p)
	d.crc.Write(p[:n])
	d.n += int64(n)
	switch {
	case err == io.EOF:
		if verr := d.verify(); verr != nil {
			d.err = verr
			return n, verr
		}
		d.err = io.EOF
	case err != nil:
		d.err = &FormatError{Format: "zip", Msg: "decompressing", Err: err}
		return n, d.err
	}
	return n, err
}

func (d *zipDescriptorReader) verify() error {
	head, err := d.br.Peek(4)
	if err != nil {
		return &FormatError{Format: "zip", Msg: "truncated data descriptor", Err: io.ErrUnexpectedEOF}
	}
	if le.Uint32(head) == zipDescriptorSig {
		d.br.Discard(4)
	}
	buf := make([]byte, 12)
	if d.zip64 {
		buf = make([]byte, 20)
	}
	if _, err := io.ReadFull(d.br, buf); err != nil {
		return &FormatError{Format: "zip", Msg: "truncated data descriptor", Err: err}
	}
	crc := le.Uint32(buf)
	var csize, usize int64
	if d.zip64 {
		csize, usize = int64(le.Uint64(buf[4:])), int64(le.Uint64(buf[12:]))
	} else {
		csize, usize = int64(le.Uint32(buf[4:])), int64(le.Uint32(buf[8:]))
	}
	if crc != d.crc.Sum32() {
		return &FormatError{Format: "zip", Msg: fmt.Sprintf("CRC mismatch for %q", d.entry.name), Err: checksum.ErrChecksumMismatch}
	}
	if usize != d.n {
		return formatErr("zip", "entry %q is %d bytes but its data descriptor says %d", d.entry.name, d.n, usize)
	}
	d.entry.CRC32 = crc
	d.entry.CompressedSize = csize
	d.entry.size = usize
	return nil
}

func (zr *zipReader) read(p []byte) (int, error) {
	if zr.cur == nil {
		return 0, io.EOF
	}
	return zr.cur.read(p)
}

func (zr *zipReader) remaining() int64 {
	if zr.cur == nil || zr.cur.size < 0 {
		return SizeUnknown
	}
	return zr.cur.size - zr.cur.n
}

func (zr *zipReader) Close() error {
	if zr.cur != nil && zr.cur.closer != nil {
		return zr.cur.closer.Close()
	}
	return nil
}

// Interface guards
var (
	_ Archival     = Zip{}
	_ configurable = Zip{}
	_ io.Closer    = (*zipReader)(nil)
)
