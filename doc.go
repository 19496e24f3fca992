// Package arcstream reads and writes archives as streams.
//
// An ArchiveWriter is fed one entry at a time: PutEntry writes the
// header, the write methods the payload, and CloseEntry finishes the
// member. An ArchiveReader hands out entries through Next and their
// payloads through its read methods. Neither needs to seek, so archives
// can be produced straight into a network connection or consumed from
// a pipe.
//
// Formats are looked up by name through a Factory or the package-level
// helpers:
//
//	w, err := arcstream.CreateArchiveWriter("zip", out)
//
// The ar, cpio, tar, zip and jar formats can be both read and written.
// Rar archives can only be read, and dump archives can only be
// identified and have entries created for them. Compression formats are
// kept separate; CompressedArchive combines the two, and Identify and
// DetectCompressor tell them apart by their leading bytes.
package arcstream
