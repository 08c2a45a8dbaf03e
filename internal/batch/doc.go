// Package batch runs one pass over an image directory.
//
// A Runner collects the images under the root, then for each one optionally
// normalizes its filename (together with any existing sidecars), extracts its
// metadata, and hands the payload to the sidecar reconciler. Per-file failures
// are recorded on the Summary and never stop the run. With cleaning enabled
// the orphan cleaner runs after the last image.
//
// The run holds an advisory lock on the root for its whole duration and, when
// a journal is attached and the run is not a dry run, records every outcome.
package batch
