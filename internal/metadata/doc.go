// Package metadata extracts embedded metadata from image files.
//
// PNG text chunks (tEXt, zTXt, iTXt) and EXIF blocks (JPEG APP1, TIFF IFD0,
// PNG eXIf) become an ordered Payload. Payload.Structured is the classifier
// the sidecar reconciler uses to choose between a JSON and a plain-text
// sidecar.
package metadata
