package testsupport

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// TextChunk is a PNG tEXt chunk written by WritePNG.
type TextChunk struct {
	Key   string
	Value string
}

// WritePNG writes a 1x1 PNG to path with the given tEXt chunks inserted before IEND.
func WritePNG(t testing.TB, path string, chunks ...TextChunk) {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, onePixel()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	data := buf.Bytes()

	// IEND is always the final 12 bytes
	body, iend := data[:len(data)-12], data[len(data)-12:]
	var out bytes.Buffer
	out.Write(body)
	for _, c := range chunks {
		out.Write(PNGChunk("tEXt", []byte(c.Key+"\x00"+c.Value)))
	}
	out.Write(iend)

	WriteBytes(t, path, out.Bytes())
}

// PNGChunk encodes a single PNG chunk with length and CRC.
func PNGChunk(kind string, data []byte) []byte {
	var out bytes.Buffer
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	out.Write(length[:])
	out.WriteString(kind)
	out.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	out.Write(sum[:])
	return out.Bytes()
}

// InsertPNGChunks splices raw encoded chunks before the IEND chunk of an existing PNG file.
func InsertPNGChunks(t testing.TB, path string, raw ...[]byte) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	body, iend := data[:len(data)-12], data[len(data)-12:]
	var out bytes.Buffer
	out.Write(body)
	for _, chunk := range raw {
		out.Write(chunk)
	}
	out.Write(iend)
	WriteBytes(t, path, out.Bytes())
}

// WriteJPEG writes a 1x1 JPEG without an EXIF block.
func WriteJPEG(t testing.TB, path string) {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, onePixel(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	WriteBytes(t, path, buf.Bytes())
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// RequireMissing fails the test if path exists.
func RequireMissing(t testing.TB, path string) {
	t.Helper()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be absent (stat err: %v)", path, err)
	}
}

// RequireExists fails the test if path does not exist.
func RequireExists(t testing.TB, path string) {
	t.Helper()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func onePixel() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	return img
}
