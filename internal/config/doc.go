// Package config loads, normalizes, and validates sidecar configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes the knobs the
// batch runner and CLI need: which extensions count as images, how sidecar
// JSON is shaped, where the run journal and lock files live, and how logs are
// formatted.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extensions, and clear validation errors.
package config
