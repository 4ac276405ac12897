package ocr

import "context"

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Region is a rectangle in image pixels, origin top-left.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is one page image submitted for recognition.
type Input struct {
	// ID is echoed back in the Result.
	ID    string
	Image []byte
	// Format declares the encoding of Image.
	Format ImageFormat
	// Page is the 1-based page number the image was rendered from.
	Page int
	// DPI of the image; zero means unknown.
	DPI       int
	Languages []string
	// Region restricts recognition to part of the image. Nil means all of it.
	Region *Region
	// Metadata carries engine variables (tesseract's tessedit_* and so on).
	Metadata map[string]string
}

// TextWord is a single recognized token.
type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// TextLine groups the words of one line.
type TextLine struct {
	Text       string
	Bounds     Region
	Words      []TextWord
	Confidence float64
}

// Result is the recognition output for one Input.
type Result struct {
	InputID   string
	Page      int
	PlainText string
	Lines     []TextLine
	Language  string
}

// Engine recognizes one image at a time.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine handles several images in one call.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}
