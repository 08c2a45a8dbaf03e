package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one metadata entry. Value holds a string for text chunks and EXIF
// strings, or the rendered tag value for numeric EXIF tags.
type Field struct {
	Key   string
	Value string
}

// Payload is the metadata extracted from a single image, in extraction order.
type Payload struct {
	// Format is the decoder name reported by image.DecodeConfig (png, jpeg, ...).
	Format string
	Fields []Field
}

// Empty reports whether no metadata was found.
func (p Payload) Empty() bool {
	return len(p.Fields) == 0
}

// set replaces an existing key in place or appends a new one.
func (p *Payload) set(key, value string) {
	for i := range p.Fields {
		if p.Fields[i].Key == key {
			p.Fields[i].Value = value
			return
		}
	}
	p.Fields = append(p.Fields, Field{Key: key, Value: value})
}

// Structured returns the first value, in extraction order, that parses as a JSON
// object, together with the key it was found under. Payloads without such a value
// are plain text.
func (p Payload) Structured() (json.RawMessage, string, bool) {
	for _, f := range p.Fields {
		trimmed := strings.TrimSpace(f.Value)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		raw := []byte(trimmed)
		if !json.Valid(raw) {
			continue
		}
		return json.RawMessage(raw), f.Key, true
	}
	return nil, "", false
}

// Text renders the payload as "key: value" lines.
func (p Payload) Text() []byte {
	var buf bytes.Buffer
	for _, f := range p.Fields {
		fmt.Fprintf(&buf, "%s: %s\n", f.Key, f.Value)
	}
	return buf.Bytes()
}
