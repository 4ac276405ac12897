// Package render defines the narrow contract the editor consumes from a PDF
// rendering backend. The editor never parses or rasterizes PDF content
// itself; it asks a Document for page handles, asks a handle for a viewport
// at a given scale and rotation, and renders the page into an image of
// exactly that viewport's size.
package render

import (
	"context"
	"errors"
	"image"
)

// ErrPageRange is returned when a page number is outside 1..NumPages.
var ErrPageRange = errors.New("page number out of range")

// Viewport is the pixel geometry of a page rendered at Scale and Rotation.
type Viewport struct {
	Width    int
	Height   int
	Scale    float64
	Rotation int
}

// Bounds returns the viewport rectangle anchored at the origin.
func (v Viewport) Bounds() image.Rectangle { return image.Rect(0, 0, v.Width, v.Height) }

// TextItem is one run of text with its position in viewport pixels
// (origin top-left).
type TextItem struct {
	Text   string
	X, Y   float64
	Width  float64
	Height float64
}

// TextContent is the extracted text layer for one page.
type TextContent struct {
	Items []TextItem
}

// String joins all item texts separated by newlines.
func (tc TextContent) String() string {
	n := 0
	for _, it := range tc.Items {
		n += len(it.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, it := range tc.Items {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, it.Text...)
	}
	return string(buf)
}

// Document is an opened source document.
type Document interface {
	NumPages() int
	// Page returns a handle for the 1-based page n.
	Page(ctx context.Context, n int) (PageHandle, error)
}

// PageHandle gives access to one source page.
type PageHandle interface {
	Viewport(scale float64, rotation int) Viewport
	Render(ctx context.Context, vp Viewport) (image.Image, error)
	TextContent(ctx context.Context) (TextContent, error)
}

// NormalizeRotation folds any multiple of 90 into 0, 90, 180 or 270.
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
