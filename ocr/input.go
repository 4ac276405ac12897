package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strconv"
)

// InputOption mutates an OCR input.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets engine variables, copying the map.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// WithTesseractPSM sets tesseract's page segmentation mode.
func WithTesseractPSM(mode int) InputOption {
	return func(in *Input) { in.setMeta("tessedit_pageseg_mode", strconv.Itoa(mode)) }
}

// WithTesseractWhitelist restricts recognition to chars.
func WithTesseractWhitelist(chars string) InputOption {
	return func(in *Input) { in.setMeta("tessedit_char_whitelist", chars) }
}

func (in *Input) setMeta(k, v string) {
	if in.Metadata == nil {
		in.Metadata = make(map[string]string)
	}
	in.Metadata[k] = v
}

// InputFromImage PNG-encodes img as the input for page. The ID is derived
// from the page number.
func InputFromImage(page int, img image.Image, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode page %d: %w", page, err)
	}
	in := Input{
		ID:     fmt.Sprintf("page-%d", page),
		Image:  buf.Bytes(),
		Format: ImageFormatPNG,
		Page:   page,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
