// Package zipenc maps zip entry names between Go strings and the bytes
// stored in an archive under a named charset.
//
// Encoding never loses information: a UTF-16 code unit the charset cannot
// represent is written as the escape %Uxxxx (four uppercase hex digits),
// itself encoded in the charset. Decoding does not reverse the escape.
package zipenc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultCharset is the charset used when a name cannot be resolved.
// Go strings are UTF-8, so UTF-8 is the platform default.
const DefaultCharset = "UTF-8"

// ErrUnencodable is returned by strict encodings for names the charset
// cannot represent.
var ErrUnencodable = errors.New("zipenc: name cannot be encoded")

// Encoding converts entry names to and from their stored form.
type Encoding interface {
	// CanEncode reports whether every character of name is
	// representable in the charset.
	CanEncode(name string) bool

	// Encode returns the stored form of name.
	Encode(name string) ([]byte, error)

	// Decode interprets data in the charset. Undecodable bytes become
	// U+FFFD.
	Decode(data []byte) (string, error)
}

// CharsetAccessor is implemented by encodings that expose the charset
// they were resolved to.
type CharsetAccessor interface {
	Charset() string
}

// UTF8 is the UTF-8 encoding.
var UTF8 Encoding = &charsetEncoding{charset: DefaultCharset, enc: unicode.UTF8}

type charsetEncoding struct {
	charset string
	enc     encoding.Encoding
	strict  bool
}

func (e *charsetEncoding) Charset() string { return e.charset }

func (e *charsetEncoding) encodable(r rune) bool {
	switch enc := e.enc.(type) {
	case *charmap.Charmap:
		_, ok := enc.EncodeRune(r)
		return ok
	}
	if e.enc == unicode.UTF8 {
		return true
	}
	_, err := e.enc.NewEncoder().String(string(r))
	return err == nil
}

func (e *charsetEncoding) CanEncode(name string) bool {
	for i := 0; i < len(name); {
		r, w := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && w == 1 {
			return false
		}
		if !e.encodable(r) {
			return false
		}
		i += w
	}
	return true
}

func (e *charsetEncoding) Encode(name string) ([]byte, error) {
	var sb strings.Builder
	sb.Grow(len(name))
	for i := 0; i < len(name); {
		r, w := utf8.DecodeRuneInString(name[i:])
		i += w
		if !(r == utf8.RuneError && w == 1) && e.encodable(r) {
			sb.WriteRune(r)
			continue
		}
		if e.strict {
			return nil, fmt.Errorf("%w: %U in %s", ErrUnencodable, r, e.charset)
		}
		writeEscape(&sb, r)
	}
	out, err := e.enc.NewEncoder().Bytes([]byte(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("zipenc: encoding %q as %s: %w", name, e.charset, err)
	}
	return out, nil
}

// writeEscape appends %Uxxxx for each UTF-16 code unit of r.
func writeEscape(sb *strings.Builder, r rune) {
	units := []rune{r}
	if r >= 0x10000 {
		r1, r2 := utf16.EncodeRune(r)
		units = []rune{r1, r2}
	}
	for _, u := range units {
		sb.WriteString("%U")
		hex := strings.ToUpper(strconv.FormatInt(int64(u), 16))
		for pad := 4 - len(hex); pad > 0; pad-- {
			sb.WriteByte('0')
		}
		sb.WriteString(hex)
	}
}

func (e *charsetEncoding) Decode(data []byte) (string, error) {
	out, err := e.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("zipenc: decoding as %s: %w", e.charset, err)
	}
	return string(out), nil
}

// Strict returns a copy of enc whose Encode fails with ErrUnencodable
// instead of escaping. Encodings not created by this package are
// returned unchanged.
func Strict(enc Encoding) Encoding {
	if ce, ok := enc.(*charsetEncoding); ok {
		cp := *ce
		cp.strict = true
		return &cp
	}
	return enc
}

// IsUTF8 reports whether enc encodes names as UTF-8.
func IsUTF8(enc Encoding) bool {
	ca, ok := enc.(CharsetAccessor)
	return ok && ca.Charset() == DefaultCharset
}

// Lookup returns the encoding for the named charset. Names are matched
// case-insensitively and the code page spellings Cp437, cp437, CP437,
// IBM437 and ibm437 are the same charset. Lookup never fails: names it
// cannot resolve yield the DefaultCharset encoding.
func Lookup(name string) Encoding {
	key := normalize(name)
	if enc, ok := cache.Get(key); ok {
		return enc
	}
	enc := resolve(key)
	cache.Add(key, enc)
	return enc
}

var cache = func() *lru.Cache[string, Encoding] {
	c, err := lru.New[string, Encoding](64)
	if err != nil {
		panic(err)
	}
	return c
}()

var codePageName = regexp.MustCompile(`^(?:CP|IBM|CCSID)[-_]?0*([0-9]+)$`)

// normalize uppercases name and collapses code page aliases to CP<n>.
func normalize(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	if m := codePageName.FindStringSubmatch(n); m != nil {
		return "CP" + m[1]
	}
	return n
}

type codePage struct {
	charset string
	cm      *charmap.Charmap
}

var codePages = map[string]codePage{
	"CP37":   {"IBM037", charmap.CodePage037},
	"CP437":  {"IBM437", charmap.CodePage437},
	"CP850":  {"IBM850", charmap.CodePage850},
	"CP852":  {"IBM852", charmap.CodePage852},
	"CP855":  {"IBM855", charmap.CodePage855},
	"CP858":  {"IBM00858", charmap.CodePage858},
	"CP860":  {"IBM860", charmap.CodePage860},
	"CP862":  {"IBM862", charmap.CodePage862},
	"CP863":  {"IBM863", charmap.CodePage863},
	"CP865":  {"IBM865", charmap.CodePage865},
	"CP866":  {"IBM866", charmap.CodePage866},
	"CP874":  {"x-IBM874", charmap.Windows874},
	"CP1047": {"IBM1047", charmap.CodePage1047},
	"CP1140": {"IBM01140", charmap.CodePage1140},
	"CP1250": {"windows-1250", charmap.Windows1250},
	"CP1251": {"windows-1251", charmap.Windows1251},
	"CP1252": {"windows-1252", charmap.Windows1252},
	"CP1253": {"windows-1253", charmap.Windows1253},
	"CP1254": {"windows-1254", charmap.Windows1254},
	"CP1255": {"windows-1255", charmap.Windows1255},
	"CP1256": {"windows-1256", charmap.Windows1256},
	"CP1257": {"windows-1257", charmap.Windows1257},
	"CP1258": {"windows-1258", charmap.Windows1258},
}

func resolve(key string) Encoding {
	if key == "UTF-8" || key == "UTF8" {
		return UTF8
	}
	if cp, ok := codePages[key]; ok {
		return &charsetEncoding{charset: cp.charset, enc: cp.cm}
	}
	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(key)
	}
	if err != nil || enc == nil {
		return UTF8
	}
	if enc == unicode.UTF8 {
		return UTF8
	}
	charset := key
	if canonical, err := ianaindex.IANA.Name(enc); err == nil {
		charset = canonical
	}
	return &charsetEncoding{charset: charset, enc: enc}
}
