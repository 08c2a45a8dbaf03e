package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateSidecar(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScan() error {
	for _, ext := range c.Scan.ImageExtensions {
		if isSidecarExtension(ext) {
			return fmt.Errorf("scan.image_extensions must not include sidecar extension %q", ext)
		}
		if strings.ContainsAny(ext, `/\`) {
			return fmt.Errorf("scan.image_extensions entry %q is not a file extension", ext)
		}
	}
	return nil
}

func (c *Config) validateSidecar() error {
	if c.Sidecar.Indent < 0 || c.Sidecar.Indent > maxIndent {
		return fmt.Errorf("sidecar.indent must be between 0 and %d", maxIndent)
	}
	if strings.ContainsAny(c.Sidecar.HistoryKey, "\r\n") {
		return errors.New("sidecar.history_key must be a single line")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q (use debug, info, warn, or error)", c.Logging.Level)
	}
}

func isSidecarExtension(ext string) bool {
	return ext == ".json" || ext == ".txt"
}
