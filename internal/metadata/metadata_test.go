package metadata_test

import (
	"bytes"
	"compress/zlib"
	"errors"
	"path/filepath"
	"testing"

	"sidecar/internal/logging"
	"sidecar/internal/metadata"
	"sidecar/internal/testsupport"
)

func field(p metadata.Payload, key string) (string, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func compress(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPNGTextChunksInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	testsupport.WritePNG(t, path,
		testsupport.TextChunk{Key: "Software", Value: "painter 2.1"},
		testsupport.TextChunk{Key: "parameters", Value: `{"seed": 42, "steps": 20}`},
	)

	payload, err := metadata.NewExtractor(logging.NewNop()).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if payload.Format != "png" {
		t.Fatalf("expected png format, got %q", payload.Format)
	}
	if len(payload.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %+v", payload.Fields)
	}
	if payload.Fields[0].Key != "Software" || payload.Fields[1].Key != "parameters" {
		t.Fatalf("unexpected field order: %+v", payload.Fields)
	}

	raw, key, ok := payload.Structured()
	if !ok {
		t.Fatal("expected payload to be structured")
	}
	if key != "parameters" {
		t.Fatalf("expected structured key parameters, got %q", key)
	}
	if string(raw) != `{"seed": 42, "steps": 20}` {
		t.Fatalf("unexpected structured body: %s", raw)
	}
}

func TestExtractCompressedAndInternationalText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	testsupport.WritePNG(t, path)

	ztxt := append([]byte("Comment\x00\x00"), compress(t, "squeezed")...)
	itxt := append([]byte("Title\x00\x01\x00en\x00Titel\x00"), compress(t, "Grüße")...)
	plainITXt := []byte("Author\x00\x00\x00\x00\x00Zoë")
	testsupport.InsertPNGChunks(t, path,
		testsupport.PNGChunk("zTXt", ztxt),
		testsupport.PNGChunk("iTXt", itxt),
		testsupport.PNGChunk("iTXt", plainITXt),
	)

	payload, err := metadata.NewExtractor(logging.NewNop()).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	cases := map[string]string{
		"Comment": "squeezed",
		"Title":   "Grüße",
		"Author":  "Zoë",
	}
	for key, want := range cases {
		got, ok := field(payload, key)
		if !ok || got != want {
			t.Errorf("field %s = %q (present=%v), want %q", key, got, ok, want)
		}
	}
	if _, _, ok := payload.Structured(); ok {
		t.Fatal("plain text payload must not be structured")
	}
}

func TestExtractLatin1TEXt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	testsupport.WritePNG(t, path)
	testsupport.InsertPNGChunks(t, path, testsupport.PNGChunk("tEXt", []byte("Author\x00Zo\xeb")))

	payload, err := metadata.NewExtractor(logging.NewNop()).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got, _ := field(payload, "Author"); got != "Zoë" {
		t.Fatalf("expected latin-1 decoded author, got %q", got)
	}
}

func TestExtractSkipsMalformedTextChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	testsupport.WritePNG(t, path, testsupport.TextChunk{Key: "Good", Value: "yes"})
	testsupport.InsertPNGChunks(t, path, testsupport.PNGChunk("tEXt", []byte("no separator")))

	payload, err := metadata.NewExtractor(logging.NewNop()).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(payload.Fields) != 1 {
		t.Fatalf("expected malformed chunk to be skipped, got %+v", payload.Fields)
	}
}

func TestExtractSkipsChunkWithBadCRC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	testsupport.WritePNG(t, path, testsupport.TextChunk{Key: "Good", Value: "yes"})
	corrupted := testsupport.PNGChunk("tEXt", []byte("Bad\x00flipped"))
	corrupted[len(corrupted)-1] ^= 0xFF
	testsupport.InsertPNGChunks(t, path, corrupted)

	payload, err := metadata.NewExtractor(logging.NewNop()).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := field(payload, "Bad"); ok || len(payload.Fields) != 1 {
		t.Fatalf("expected chunk with bad crc to be skipped, got %+v", payload.Fields)
	}
}

func TestExtractEXIFUserComment(t *testing.T) {
	dir := t.TempDir()
	block := testsupport.EXIFUserComment(`{"prompt":"cat"}`)

	jpgPath := filepath.Join(dir, "photo.jpg")
	testsupport.WriteJPEGWithEXIF(t, jpgPath, block)
	pngPath := filepath.Join(dir, "photo.png")
	testsupport.WritePNG(t, pngPath)
	testsupport.InsertPNGChunks(t, pngPath, testsupport.PNGChunk("eXIf", block))

	extractor := metadata.NewExtractor(logging.NewNop())
	for _, path := range []string{jpgPath, pngPath} {
		payload, err := extractor.Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", path, err)
		}
		body, key, ok := payload.Structured()
		if !ok || key != "UserComment" || string(body) != `{"prompt":"cat"}` {
			t.Fatalf("%s: structured = (%s, %q, %v), fields %+v", path, body, key, ok, payload.Fields)
		}
	}
}

func TestExtractWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "plain.png")
	jpgPath := filepath.Join(dir, "plain.jpg")
	testsupport.WritePNG(t, pngPath)
	testsupport.WriteJPEG(t, jpgPath)

	extractor := metadata.NewExtractor(logging.NewNop())
	for _, path := range []string{pngPath, jpgPath} {
		payload, err := extractor.Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", path, err)
		}
		if !payload.Empty() {
			t.Fatalf("expected empty payload for %s, got %+v", path, payload.Fields)
		}
	}
}

func TestExtractUnreadable(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.png")
	testsupport.WriteBytes(t, garbage, []byte("definitely not an image"))

	extractor := metadata.NewExtractor(logging.NewNop())
	for _, path := range []string{garbage, filepath.Join(dir, "missing.png")} {
		_, err := extractor.Extract(path)
		if !errors.Is(err, metadata.ErrUnreadable) {
			t.Fatalf("expected ErrUnreadable for %s, got %v", path, err)
		}
	}
}

func TestPayloadStructuredRequiresObject(t *testing.T) {
	cases := []struct {
		name   string
		fields []metadata.Field
		want   bool
	}{
		{"number", []metadata.Field{{Key: "a", Value: "42"}}, false},
		{"array", []metadata.Field{{Key: "a", Value: "[1,2]"}}, false},
		{"broken", []metadata.Field{{Key: "a", Value: "{not json"}}, false},
		{"object after text", []metadata.Field{{Key: "a", Value: "hi"}, {Key: "b", Value: ` {"x":1} `}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, ok := metadata.Payload{Fields: tc.fields}.Structured()
			if ok != tc.want {
				t.Fatalf("Structured() = %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestPayloadText(t *testing.T) {
	p := metadata.Payload{Fields: []metadata.Field{{Key: "Software", Value: "x"}, {Key: "Comment", Value: "y z"}}}
	if got := string(p.Text()); got != "Software: x\nComment: y z\n" {
		t.Fatalf("unexpected text rendering: %q", got)
	}
}
