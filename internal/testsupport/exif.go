package testsupport

import (
	"bytes"
	"encoding/binary"
	"testing"
)

const (
	tagExifIFDPointer = 0x8769
	tagUserComment    = 0x9286

	tiffLong      = 4
	tiffUndefined = 7
)

// EXIFUserComment returns a little-endian TIFF block whose EXIF sub-IFD holds a
// single ASCII UserComment. The result is the body of a PNG eXIf chunk, or of a
// JPEG APP1 segment after the "Exif\x00\x00" header.
func EXIFUserComment(comment string) []byte {
	value := append([]byte("ASCII\x00\x00\x00"), comment...)

	const (
		ifd0Offset = 8
		ifdSize    = 2 + 12 + 4
		exifOffset = ifd0Offset + ifdSize
		dataOffset = exifOffset + ifdSize
	)

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	_ = binary.Write(&buf, le, uint16(42))
	_ = binary.Write(&buf, le, uint32(ifd0Offset))

	writeIFD(&buf, tagExifIFDPointer, tiffLong, 1, exifOffset)
	writeIFD(&buf, tagUserComment, tiffUndefined, uint32(len(value)), dataOffset)
	buf.Write(value)
	return buf.Bytes()
}

// writeIFD writes a one-entry IFD with no successor.
func writeIFD(buf *bytes.Buffer, tag, kind uint16, count, value uint32) {
	le := binary.LittleEndian
	_ = binary.Write(buf, le, uint16(1))
	_ = binary.Write(buf, le, tag)
	_ = binary.Write(buf, le, kind)
	_ = binary.Write(buf, le, count)
	_ = binary.Write(buf, le, value)
	_ = binary.Write(buf, le, uint32(0))
}

// WriteJPEGWithEXIF writes a 1x1 JPEG with tiffBlock stored in an APP1 segment
// directly after the SOI marker.
func WriteJPEGWithEXIF(t testing.TB, path string, tiffBlock []byte) {
	t.Helper()

	WriteJPEG(t, path)
	data := []byte(ReadFile(t, path))

	body := append([]byte("Exif\x00\x00"), tiffBlock...)
	var segment bytes.Buffer
	segment.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&segment, binary.BigEndian, uint16(len(body)+2))
	segment.Write(body)

	var out bytes.Buffer
	out.Write(data[:2])
	out.Write(segment.Bytes())
	out.Write(data[2:])
	WriteBytes(t, path, out.Bytes())
}
