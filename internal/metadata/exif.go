package metadata

import (
	"bytes"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/text/encoding/unicode"

	"sidecar/internal/logging"
)

// readEXIF decodes an EXIF block and appends every tag to payload. Images
// without EXIF, or with an EXIF block goexif cannot parse at all, contribute
// nothing.
func readEXIF(r io.Reader, payload *Payload, logger *slog.Logger) {
	x, err := exif.Decode(r)
	if x == nil {
		if err != nil {
			logger.Debug("no exif block", logging.Error(err))
		}
		return
	}
	if err != nil {
		logger.Debug("exif decoded with recoverable errors", logging.Error(err))
	}
	walker := &exifWalker{}
	if err := x.Walk(walker); err != nil {
		logger.Debug("exif walk stopped early", logging.Error(err))
	}
	// goexif walks a map; sort for stable sidecar output
	sort.Slice(walker.fields, func(i, j int) bool { return walker.fields[i].Key < walker.fields[j].Key })
	for _, f := range walker.fields {
		payload.set(f.Key, f.Value)
	}
}

type exifWalker struct {
	fields []Field
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w.fields = append(w.fields, Field{Key: string(name), Value: exifValue(name, tag)})
	return nil
}

func exifValue(name exif.FieldName, tag *tiff.Tag) string {
	if name == exif.UserComment {
		if s, ok := decodeUserComment(tag.Val); ok {
			return s
		}
	}
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			return strings.TrimRight(s, "\x00 ")
		}
	}
	return tag.String()
}

// decodeUserComment handles the 8-byte character code prefix of the EXIF
// UserComment tag. Generators commonly store their JSON parameters here.
func decodeUserComment(val []byte) (string, bool) {
	if len(val) < 8 {
		return "", false
	}
	code, body := string(val[:8]), val[8:]
	switch {
	case strings.HasPrefix(code, "ASCII"):
		return strings.TrimRight(string(body), "\x00 "), true
	case strings.HasPrefix(code, "UNICODE"):
		endian := unicode.BigEndian
		if looksLittleEndian(body) {
			endian = unicode.LittleEndian
		}
		decoded, err := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder().Bytes(body)
		if err != nil {
			return "", false
		}
		return strings.TrimRight(string(decoded), "\x00 "), true
	case code == "\x00\x00\x00\x00\x00\x00\x00\x00":
		return strings.TrimRight(string(bytes.TrimRight(body, "\x00")), " "), true
	}
	return "", false
}

// looksLittleEndian guesses UTF-16 byte order from where the zero bytes of
// ASCII-range characters fall.
func looksLittleEndian(b []byte) bool {
	var even, odd int
	for i := 0; i+1 < len(b) && i < 256; i += 2 {
		if b[i] == 0 {
			even++
		}
		if b[i+1] == 0 {
			odd++
		}
	}
	return odd > even
}
