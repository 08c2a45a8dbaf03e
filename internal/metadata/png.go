package metadata

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"

	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
	"golang.org/x/text/encoding/charmap"

	"sidecar/internal/logging"
)

// maxInflatedText bounds decompressed zTXt/iTXt payloads.
const maxInflatedText = 16 << 20

// readPNGChunks records text and eXIf chunks in file order. Chunks with a bad
// CRC or a malformed body are skipped; a stream that cannot be split is an error.
func readPNGChunks(r io.Reader, payload *Payload, logger *slog.Logger) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read png: %w", err)
	}
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return fmt.Errorf("split chunks: %w", err)
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return errors.New("unexpected png parse result")
	}

	for _, chunk := range cs.Chunks() {
		switch chunk.Type {
		case "tEXt", "zTXt", "iTXt", "eXIf":
		default:
			continue
		}
		if !validCRC(chunk) {
			logger.Debug("skipping png chunk with bad crc", logging.String("chunk", chunk.Type))
			continue
		}
		if err := decodeChunk(chunk.Type, chunk.Data, payload, logger); err != nil {
			logger.Debug("skipping malformed png chunk",
				logging.String("chunk", chunk.Type),
				logging.Error(err),
			)
		}
	}
	return nil
}

func validCRC(chunk *pngstructure.Chunk) bool {
	sum := crc32.NewIEEE()
	sum.Write([]byte(chunk.Type))
	sum.Write(chunk.Data)
	return sum.Sum32() == chunk.Crc
}

func decodeChunk(kind string, data []byte, payload *Payload, logger *slog.Logger) error {
	switch kind {
	case "tEXt":
		key, value, err := decodeTEXt(data)
		if err != nil {
			return err
		}
		payload.set(key, value)
	case "zTXt":
		key, value, err := decodeZTXt(data)
		if err != nil {
			return err
		}
		payload.set(key, value)
	case "iTXt":
		key, value, err := decodeITXt(data)
		if err != nil {
			return err
		}
		payload.set(key, value)
	case "eXIf":
		readEXIF(bytes.NewReader(data), payload, logger)
	}
	return nil
}

func splitKeyword(data []byte) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 1 || idx > 79 {
		return "", nil, errors.New("invalid keyword")
	}
	key, err := latin1(data[:idx])
	if err != nil {
		return "", nil, err
	}
	return key, data[idx+1:], nil
}

func decodeTEXt(data []byte) (string, string, error) {
	key, rest, err := splitKeyword(data)
	if err != nil {
		return "", "", err
	}
	value, err := latin1(rest)
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}

func decodeZTXt(data []byte) (string, string, error) {
	key, rest, err := splitKeyword(data)
	if err != nil {
		return "", "", err
	}
	if len(rest) < 1 || rest[0] != 0 {
		return "", "", errors.New("unsupported zTXt compression method")
	}
	inflated, err := inflate(rest[1:])
	if err != nil {
		return "", "", err
	}
	value, err := latin1(inflated)
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}

func decodeITXt(data []byte) (string, string, error) {
	key, rest, err := splitKeyword(data)
	if err != nil {
		return "", "", err
	}
	if len(rest) < 2 {
		return "", "", errors.New("truncated iTXt chunk")
	}
	compressed, method := rest[0] == 1, rest[1]
	rest = rest[2:]

	// language tag, then translated keyword, both NUL terminated
	for range 2 {
		idx := bytes.IndexByte(rest, 0)
		if idx < 0 {
			return "", "", errors.New("truncated iTXt chunk")
		}
		rest = rest[idx+1:]
	}

	if compressed {
		if method != 0 {
			return "", "", errors.New("unsupported iTXt compression method")
		}
		inflated, err := inflate(rest)
		if err != nil {
			return "", "", err
		}
		rest = inflated
	}
	return key, string(rest), nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflatedText+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(out) > maxInflatedText {
		return nil, errors.New("inflated text too large")
	}
	return out, nil
}

func latin1(b []byte) (string, error) {
	return charmap.ISO8859_1.NewDecoder().String(string(b))
}
