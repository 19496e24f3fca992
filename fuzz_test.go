package arcstream

import (
	"bytes"
	"io"
	"testing"
)

func FuzzReaders(f *testing.F) {
	for _, format := range []string{"ar", "cpio", "tar", "zip"} {
		var buf bytes.Buffer
		w, err := CreateArchiveWriter(format, &buf)
		if err != nil {
			f.Fatal(err)
		}
		e, _ := CreateEntry(format, "seed.txt", 4)
		if err := w.PutEntry(e); err != nil {
			f.Fatal(err)
		}
		w.Write([]byte("seed"))
		w.CloseEntry()
		w.Close()
		f.Add(buf.Bytes())
	}

	f.Fuzz(func(t *testing.T, input []byte) {
		format, rest, err := Identify(bytes.NewReader(input))
		if err != nil {
			return
		}
		u, ok := format.(Unarchiver)
		if !ok {
			return
		}
		r, err := u.OpenArchiveReader(rest)
		if err != nil {
			return
		}
		defer r.Close()
		for i := 0; i < 64; i++ {
			if _, err := r.Next(); err != nil {
				return
			}
			if _, err := io.Copy(io.Discard, io.LimitReader(r, 1<<20)); err != nil {
				return
			}
		}
	})
}

func FuzzLz4(f *testing.F) {
	var buf bytes.Buffer
	w, _ := Lz4{}.OpenWriter(&buf)
	w.Write([]byte("hello hello hello"))
	w.Close()
	f.Add(buf.Bytes())

	f.Fuzz(func(t *testing.T, input []byte) {
		r, err := Lz4{}.OpenReader(bytes.NewReader(input))
		if err != nil {
			return
		}
		defer r.Close()
		io.Copy(io.Discard, io.LimitReader(r, 1<<20))
	})
}
