package metadata

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"sidecar/internal/logging"
)

// ErrUnreadable marks images that cannot be opened or whose header does not decode.
var ErrUnreadable = errors.New("unreadable image")

// Extractor reads embedded metadata from image files.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor returns an Extractor that logs recoverable decode problems at debug level.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logging.NewComponentLogger(logger, "metadata")}
}

// Extract returns the metadata embedded in the image at path. An image without
// metadata yields an empty payload and no error.
func (e *Extractor) Extract(path string) (Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: decode header: %w", ErrUnreadable, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Payload{}, fmt.Errorf("%w: rewind: %w", ErrUnreadable, err)
	}

	payload := Payload{Format: format}
	switch format {
	case "png":
		if err := readPNGChunks(f, &payload, e.logger); err != nil {
			return Payload{}, fmt.Errorf("%w: png chunks: %w", ErrUnreadable, err)
		}
	case "jpeg", "tiff":
		readEXIF(f, &payload, e.logger)
	default:
		e.logger.Debug("no metadata reader for image format",
			logging.String(logging.FieldPath, path),
			logging.String("format", format),
		)
	}
	return payload, nil
}
