// Package pdfsource opens PDF bytes with pdfcpu and exposes them as a
// render.Document: page geometry and rotation come from the page tree,
// text from the content streams, and rasters from a pluggable Rasterizer.
package pdfsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	xdraw "golang.org/x/image/draw"

	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/render"
)

// MIMEType is the only accepted content type.
const MIMEType = "application/pdf"

// ErrNotPDF is returned when the input does not sniff as a PDF.
var ErrNotPDF = errors.New("not a PDF document")

// ErrNoPages is returned for a document whose page tree is empty.
var ErrNoPages = errors.New("document has no pages")

func init() { api.DisableConfigDir() }

// Sniff reports the detected content type of data.
func Sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if i := bytes.IndexByte([]byte(ct), ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// Option configures Open.
type Option func(*Document)

// WithRasterizer overrides the default rasterizer selection.
func WithRasterizer(r Rasterizer) Option {
	return func(d *Document) {
		if r != nil {
			d.raster = r
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(d *Document) { d.log = observability.OrNop(l) }
}

// Document is an opened PDF.
type Document struct {
	data   []byte
	ctx    *model.Context
	raster Rasterizer
	log    observability.Logger

	mu    sync.Mutex
	boxes map[int]pageBox
}

type pageBox struct {
	llx, lly, urx, ury float64
	rotate             int
}

func (b pageBox) width() float64  { return b.urx - b.llx }
func (b pageBox) height() float64 { return b.ury - b.lly }

// Open parses data. It fails with ErrNotPDF unless data sniffs as
// application/pdf.
func Open(_ context.Context, data []byte, opts ...Option) (*Document, error) {
	if ct := Sniff(data); ct != MIMEType {
		return nil, fmt.Errorf("open: %w (detected %s)", ErrNotPDF, ct)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	d := &Document{
		data:  data,
		ctx:   ctx,
		log:   observability.NopLogger{},
		boxes: make(map[int]pageBox),
	}
	for _, opt := range opts {
		opt(d)
	}
	// Reading leaves the page tree uncounted.
	if err := api.ValidateContext(ctx); err != nil {
		d.log.Warn("pdf validation failed", observability.Error("error", err))
		if err := ctx.EnsurePageCount(); err != nil {
			return nil, fmt.Errorf("open: count pages: %w", err)
		}
	}
	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("open: %w", ErrNoPages)
	}
	if d.raster == nil {
		d.raster = DefaultRasterizer(d.log)
	}
	d.log.Debug("pdf opened", observability.Int("pages", ctx.PageCount))
	return d, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int { return d.ctx.PageCount }

// Bytes returns the source bytes.
func (d *Document) Bytes() []byte { return d.data }

// Page returns a handle for 1-based page n.
func (d *Document) Page(_ context.Context, n int) (render.PageHandle, error) {
	if n < 1 || n > d.ctx.PageCount {
		return nil, fmt.Errorf("page %d of %d: %w", n, d.ctx.PageCount, render.ErrPageRange)
	}
	box, err := d.box(n)
	if err != nil {
		return nil, err
	}
	return &pageHandle{doc: d, n: n, box: box}, nil
}

func (d *Document) box(n int) (pageBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.boxes[n]; ok {
		return b, nil
	}
	_, _, inh, err := d.ctx.PageDict(n, false)
	if err != nil {
		return pageBox{}, fmt.Errorf("page %d: %w", n, err)
	}
	b := pageBox{urx: 612, ury: 792}
	if inh != nil {
		r := inh.MediaBox
		if inh.CropBox != nil {
			r = inh.CropBox
		}
		if r != nil && r.Width() > 0 && r.Height() > 0 {
			b = pageBox{llx: r.LL.X, lly: r.LL.Y, urx: r.UR.X, ury: r.UR.Y}
		}
		b.rotate = render.NormalizeRotation(inh.Rotate)
	}
	d.boxes[n] = b
	return b, nil
}

type pageHandle struct {
	doc *Document
	n   int
	box pageBox
}

// Viewport applies the page's own /Rotate plus rotation.
func (h *pageHandle) Viewport(scale float64, rotation int) render.Viewport {
	total := render.NormalizeRotation(h.box.rotate + rotation)
	w := int(math.Round(h.box.width() * scale))
	ht := int(math.Round(h.box.height() * scale))
	if total == 90 || total == 270 {
		w, ht = ht, w
	}
	return render.Viewport{Width: w, Height: ht, Scale: scale, Rotation: total}
}

// Render rasterizes the page as displayed (with its /Rotate applied) and
// then turns it by the extra rotation of vp.
func (h *pageHandle) Render(ctx context.Context, vp render.Viewport) (image.Image, error) {
	img, err := h.doc.raster.Rasterize(ctx, Job{
		Data:   h.doc.data,
		Page:   h.n,
		DPI:    72 * vp.Scale,
		Width:  h.box.width(),
		Height: h.box.height(),
		Rotate: h.box.rotate,
	})
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", h.n, err)
	}
	img = Rotate(img, render.NormalizeRotation(vp.Rotation-h.box.rotate))
	if b := img.Bounds(); b.Dx() != vp.Width || b.Dy() != vp.Height {
		dst := image.NewRGBA(vp.Bounds())
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}
	return img, nil
}

// TextContent returns the page's text items at scale 1, origin top-left of
// the unrotated page.
func (h *pageHandle) TextContent(ctx context.Context) (render.TextContent, error) {
	if err := ctx.Err(); err != nil {
		return render.TextContent{}, err
	}
	streams, fonts, err := h.doc.contents(h.n)
	if err != nil {
		return render.TextContent{}, fmt.Errorf("text page %d: %w", h.n, err)
	}
	items := extractText(streams, fonts)
	for i := range items {
		it := &items[i]
		it.X -= h.box.llx
		it.Y = h.box.ury - it.Y - it.Height
	}
	return render.TextContent{Items: items}, nil
}

// contents returns the decoded content streams and font decoders of page n.
func (d *Document) contents(n int) ([][]byte, map[string]*fontDecoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pageDict, _, inh, err := d.ctx.PageDict(n, true)
	if err != nil {
		return nil, nil, err
	}
	var streams [][]byte
	if obj, found := pageDict.Find("Contents"); found {
		streams, err = d.streams(obj)
		if err != nil {
			return nil, nil, err
		}
	}
	var res types.Dict
	if inh != nil {
		res = inh.Resources
	}
	if res == nil {
		if obj, found := pageDict.Find("Resources"); found {
			if obj, err := d.ctx.Dereference(obj); err == nil {
				res, _ = obj.(types.Dict)
			}
		}
	}
	return streams, d.fontDecoders(res), nil
}

func (d *Document) streams(obj types.Object) ([][]byte, error) {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}
	switch v := obj.(type) {
	case types.StreamDict:
		if len(v.Content) == 0 && len(v.Raw) > 0 {
			if err := v.Decode(); err != nil {
				return nil, fmt.Errorf("decode content stream: %w", err)
			}
		}
		return [][]byte{v.Content}, nil
	case types.Array:
		var out [][]byte
		for _, item := range v {
			s, err := d.streams(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	}
	return nil, nil
}

func (d *Document) fontDecoders(res types.Dict) map[string]*fontDecoder {
	if res == nil {
		return nil
	}
	fontsObj, found := res.Find("Font")
	if !found {
		return nil
	}
	fontsObj, err := d.ctx.Dereference(fontsObj)
	if err != nil {
		return nil
	}
	fontsDict, ok := fontsObj.(types.Dict)
	if !ok {
		return nil
	}
	out := make(map[string]*fontDecoder)
	for name, obj := range fontsDict {
		obj, err := d.ctx.Dereference(obj)
		if err != nil {
			continue
		}
		fd, ok := obj.(types.Dict)
		if !ok {
			continue
		}
		dec := &fontDecoder{}
		if tu, found := fd.Find("ToUnicode"); found {
			if sd, _, err := d.ctx.DereferenceStreamDict(tu); err == nil && sd != nil {
				if len(sd.Content) == 0 && len(sd.Raw) > 0 {
					_ = sd.Decode()
				}
				if len(sd.Content) > 0 {
					dec.cmap = parseToUnicodeCMap(sd.Content)
				}
			}
		}
		out[name] = dec
	}
	return out
}
