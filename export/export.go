// Package export flattens annotated pages into a new PDF: every page
// becomes one JPEG of its raster with the annotation overlay composited on
// top, placed on a page of exactly the raster's pixel size.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/pages"
	"github.com/wudi/pdfmark/pdfwriter"
)

// Quality is the fixed JPEG quality of exported pages.
const Quality = 75

// ThumbnailScale is the scale of page thumbnails.
const ThumbnailScale = 0.2

// ErrNothingToExport is returned for an empty collection.
var ErrNothingToExport = errors.New("nothing to export")

// ExportError reports the page that aborted an export.
type ExportError struct {
	Page int
	Err  error
}

func (e *ExportError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("export: page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("export: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// DocumentWriter receives the flattened pages.
type DocumentWriter interface {
	AddPage(width, height float64) error
	AddImage(data []byte, x, y, width, height float64) error
	Output() ([]byte, error)
}

// Source yields pages in ascending number order.
type Source interface {
	Pages() []*pages.Page
}

// Engine flattens and encodes pages.
type Engine struct {
	newWriter func() DocumentWriter
	log       observability.Logger
	tracer    observability.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithWriter replaces the pdfwriter-backed document writer.
func WithWriter(fn func() DocumentWriter) Option {
	return func(e *Engine) { e.newWriter = fn }
}

func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.log = observability.OrNop(l) }
}

func WithTracer(t observability.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine returns an Engine writing through pdfwriter.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		newWriter: func() DocumentWriter {
			return pdfwriter.New(pdfwriter.Options{})
		},
		log:    observability.NopLogger{},
		tracer: observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export flattens every page of src into a new document. Any failure
// aborts the whole export; no partial document is returned.
func (e *Engine) Export(ctx context.Context, src Source) (out []byte, err error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanExport)
	defer func() {
		if err != nil {
			span.SetError(err)
			e.log.Error("export failed", observability.Error("error", err))
		}
		span.Finish()
	}()

	list := src.Pages()
	if len(list) == 0 {
		return nil, ErrNothingToExport
	}
	span.SetTag("pages", len(list))
	doc := e.newWriter()
	for _, p := range list {
		if err := ctx.Err(); err != nil {
			return nil, &ExportError{Page: p.Number, Err: err}
		}
		data, err := e.encodePage(ctx, p)
		if err != nil {
			return nil, &ExportError{Page: p.Number, Err: err}
		}
		w, h := float64(p.Width), float64(p.Height)
		if err := doc.AddPage(w, h); err != nil {
			return nil, &ExportError{Page: p.Number, Err: err}
		}
		if err := doc.AddImage(data, 0, 0, w, h); err != nil {
			return nil, &ExportError{Page: p.Number, Err: err}
		}
	}
	out, err = doc.Output()
	if err != nil {
		return nil, &ExportError{Err: err}
	}
	e.log.Info("export finished", observability.Int("pages", len(list)), observability.Int("bytes", len(out)))
	return out, nil
}

func (e *Engine) encodePage(ctx context.Context, p *pages.Page) ([]byte, error) {
	_, span := e.tracer.StartSpan(ctx, observability.SpanFlatten)
	defer span.Finish()
	span.SetTag("page", p.Number)

	img, err := Composite(p)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Composite paints the annotation overlay of p over its base raster (white
// paper for inserted pages).
func Composite(p *pages.Page) (*image.RGBA, error) {
	overlay, err := p.Surface.FlattenToImage()
	if err != nil {
		return nil, err
	}
	bounds := image.Rect(0, 0, p.Width, p.Height)
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.White, image.Point{}, draw.Src)
	if p.Origin == pages.OriginSource && p.Raster != nil {
		rb := p.Raster.Bounds()
		if rb.Dx() == p.Width && rb.Dy() == p.Height {
			draw.Draw(dst, bounds, p.Raster, rb.Min, draw.Src)
		} else {
			xdraw.CatmullRom.Scale(dst, bounds, p.Raster, rb, xdraw.Src, nil)
		}
	}
	draw.Draw(dst, bounds, overlay, image.Point{}, draw.Over)
	return dst, nil
}

// Thumbnail renders a composited preview of p at scale.
func Thumbnail(p *pages.Page, scale float64) (image.Image, error) {
	if scale <= 0 {
		scale = ThumbnailScale
	}
	full, err := Composite(p)
	if err != nil {
		return nil, err
	}
	w := max(1, int(float64(p.Width)*scale))
	h := max(1, int(float64(p.Height)*scale))
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), full, full.Bounds(), xdraw.Src, nil)
	return thumb, nil
}
