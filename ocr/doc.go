// Package ocr recognizes text on rendered page images so search can cover
// scanned pages that carry no text layer. Engines are pluggable; the
// tesseract subpackage provides the gosseract-backed default.
package ocr
