package arcstream_test

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mholt/arcstream"
)

func TestIllegalPathErrorString(t *testing.T) {
	tests := []struct {
		instance *arcstream.IllegalPathError
		expected string
	}{
		{instance: &arcstream.IllegalPathError{Filename: "foo.txt"}, expected: "illegal file path: foo.txt"},
		{instance: &arcstream.IllegalPathError{AbsolutePath: "/tmp/bar.txt", Filename: "bar.txt"}, expected: "illegal file path: bar.txt"},
	}

	for i, test := range tests {
		test := test

		t.Run(fmt.Sprintf("Case %d", i), func(t *testing.T) {
			if test.expected != test.instance.Error() {
				t.Fatalf("Excepected '%s', but got '%s'", test.expected, test.instance.Error())
			}
		})
	}
}

func TestIsIllegalPathError(t *testing.T) {
	tests := []struct {
		instance error
		expected bool
	}{
		{instance: nil, expected: false},
		{instance: os.ErrNotExist, expected: false},
		{instance: fmt.Errorf("some error"), expected: false},
		{instance: errors.New("another error"), expected: false},
		{instance: &arcstream.IllegalPathError{Filename: "foo.txt"}, expected: true},
		{instance: fmt.Errorf("wrapped: %w", &arcstream.IllegalPathError{Filename: "foo.txt"}), expected: true},
	}

	for i, test := range tests {
		test := test

		t.Run(fmt.Sprintf("Case %d", i), func(t *testing.T) {
			actual := arcstream.IsIllegalPathError(test.instance)
			if actual != test.expected {
				t.Fatalf("Excepected '%v', but got '%v'", test.expected, actual)
			}
		})
	}
}

func TestFormatErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("reading: %w", &arcstream.FormatError{Format: "tar", Msg: "bad checksum", Err: io.ErrUnexpectedEOF})
	require.ErrorIs(t, err, arcstream.ErrFormat)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.True(t, arcstream.IsFormatError(err))
	require.False(t, arcstream.IsFormatError(io.EOF))
	require.Equal(t, "reading: tar: bad checksum: unexpected EOF", err.Error())

	require.ErrorIs(t, arcstream.ErrSizeMismatch, arcstream.ErrInvalidState)
	require.ErrorIs(t, arcstream.ErrClosed, arcstream.ErrInvalidState)
}
