package zipenc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mholt/arcstream/zipenc"
)

const (
	unencodable = "‖"

	// long enough to force the escape buffer to grow several times
	badString        = "‖―‖―‖―‖―‖―‖"
	badStringEscaped = "%U2016%U2015%U2016%U2015%U2016%U2015%U2016%U2015%U2016%U2015%U2016"
)

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func testSimpleEncoding(t *testing.T, name string, data []byte) {
	t.Helper()
	enc := zipenc.Lookup(name)
	require.NotNil(t, enc)

	decoded, err := enc.Decode(data)
	require.NoError(t, err)
	assert.True(t, enc.CanEncode(decoded))
	encoded, err := enc.Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, encoded)

	assert.False(t, enc.CanEncode(unencodable))
	want, err := enc.Encode("%U2016")
	require.NoError(t, err)
	got, err := enc.Encode(unencodable)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.False(t, enc.CanEncode(badString))
	want, err = enc.Encode(badStringEscaped)
	require.NoError(t, err)
	got, err = enc.Encode(badString)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCodePageAliases(t *testing.T) {
	for _, n := range []string{"437", "850"} {
		for _, prefix := range []string{"Cp", "cp", "CP", "IBM", "ibm"} {
			name := prefix + n
			t.Run(name, func(t *testing.T) {
				testSimpleEncoding(t, name, allBytes())
			})
		}
	}
}

func TestEBCDIC(t *testing.T) {
	testSimpleEncoding(t, "IBM1047", allBytes())
}

func TestCp1252(t *testing.T) {
	var data []byte
	for b := 0x20; b < 0x7f; b++ {
		data = append(data, byte(b))
	}
	for b := 0xa0; b <= 0xff; b++ {
		data = append(data, byte(b))
	}
	testSimpleEncoding(t, "Cp1252", data)
}

func TestAliasesShareCharset(t *testing.T) {
	want := zipenc.Lookup("Cp437").(zipenc.CharsetAccessor).Charset()
	for _, name := range []string{"cp437", "CP437", "IBM437", "ibm437", "cp-437"} {
		got := zipenc.Lookup(name).(zipenc.CharsetAccessor).Charset()
		assert.Equal(t, want, got, name)
	}
}

func TestUnknownCharset(t *testing.T) {
	enc := zipenc.Lookup("I-am-a-banana")
	require.NotNil(t, enc)
	ca, ok := enc.(zipenc.CharsetAccessor)
	require.True(t, ok)
	assert.Equal(t, zipenc.DefaultCharset, ca.Charset())
	assert.True(t, zipenc.IsUTF8(enc))
}

func TestUTF8(t *testing.T) {
	for _, name := range []string{"UTF-8", "utf8", "utf-8"} {
		assert.True(t, zipenc.IsUTF8(zipenc.Lookup(name)), name)
	}
	assert.True(t, zipenc.UTF8.CanEncode(badString))
	b, err := zipenc.UTF8.Encode("Ω‖")
	require.NoError(t, err)
	assert.Equal(t, []byte("Ω‖"), b)

	// invalid UTF-8 in a Go string cannot be stored as is
	assert.False(t, zipenc.UTF8.CanEncode("a\xffb"))
	b, err = zipenc.UTF8.Encode("a\xffb")
	require.NoError(t, err)
	assert.Equal(t, "a%UFFFDb", string(b))
}

func TestIANANames(t *testing.T) {
	enc := zipenc.Lookup("ISO-8859-1")
	assert.False(t, zipenc.IsUTF8(enc))
	b, err := enc.Encode("café")
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9}, b)
	s, err := enc.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "café", s)
}

func TestSurrogatePairEscape(t *testing.T) {
	enc := zipenc.Lookup("Cp437")
	b, err := enc.Encode("x\U0001F600")
	require.NoError(t, err)
	assert.Equal(t, "x%UD83D%UDE00", string(b))
}

func TestEscapePadding(t *testing.T) {
	enc := zipenc.Lookup("IBM1047")
	want, err := enc.Encode("%U0100")
	require.NoError(t, err)
	got, err := enc.Encode("Ā")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStrict(t *testing.T) {
	enc := zipenc.Strict(zipenc.Lookup("Cp850"))
	_, err := enc.Encode(unencodable)
	assert.ErrorIs(t, err, zipenc.ErrUnencodable)

	b, err := enc.Encode("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)

	// the looked up encoding itself is unchanged
	_, err = zipenc.Lookup("Cp850").Encode(unencodable)
	assert.NoError(t, err)
}
