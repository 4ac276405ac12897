// Package pages keeps the ordered set of editable pages: each page pairs a
// rendered raster with its own annotation surface, a rotation and an
// origin. Page numbers are dense (1..N) and re-derived from position after
// every structural change.
package pages

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/surface"
)

// DefaultRenderScale is the fixed scale source pages are rendered at.
const DefaultRenderScale = 1.5

// DefaultPageSize is used for a blank page inserted into an empty collection.
var DefaultPageSize = image.Point{X: 600, Y: 800}

var (
	ErrPageRange = errors.New("page number out of range")
	ErrRotation  = errors.New("rotation must be a multiple of 90")
	ErrNoPages   = errors.New("document has no pages")
	ErrNoSource  = errors.New("no source document loaded")
)

// Origin tells where a page came from.
type Origin int

const (
	OriginSource Origin = iota
	OriginInserted
)

func (o Origin) String() string {
	if o == OriginInserted {
		return "inserted"
	}
	return "source"
}

// ID identifies a page for the lifetime of a session.
type ID uint64

// Page is one editable page.
type Page struct {
	ID          ID
	Number      int
	Origin      Origin
	Rotation    int
	Raster      image.Image
	Surface     *surface.Surface
	Width       int
	Height      int
	SourceIndex int
}

// Size returns the pixel dimensions of the page.
func (p *Page) Size() image.Point { return image.Point{X: p.Width, Y: p.Height} }

// LoadError reports a document that could not be opened or rendered.
// Page is the 1-based page that failed, or 0 for the whole document.
type LoadError struct {
	Page int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("load: page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("load: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EventKind names a structural change of the collection.
type EventKind int

const (
	EventLoaded EventKind = iota + 1
	EventInserted
	EventRotated
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventInserted:
		return "inserted"
	case EventRotated:
		return "rotated"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports a structural change. Page is nil for EventLoaded; Removed
// lists the pages dropped by a load.
type Event struct {
	Kind    EventKind
	Page    *Page
	Removed []*Page
}

// Collection is the ordered page set. It is not safe for concurrent use.
type Collection struct {
	scale       float64
	defaultSize image.Point
	log         observability.Logger
	tracer      observability.Tracer

	doc       render.Document
	pages     []*Page
	nextID    ID
	observers []func(Event)
}

// Option configures a Collection.
type Option func(*Collection)

// WithRenderScale overrides DefaultRenderScale.
func WithRenderScale(scale float64) Option {
	return func(c *Collection) {
		if scale > 0 {
			c.scale = scale
		}
	}
}

// WithDefaultSize overrides DefaultPageSize.
func WithDefaultSize(size image.Point) Option {
	return func(c *Collection) {
		if size.X > 0 && size.Y > 0 {
			c.defaultSize = size
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(c *Collection) { c.log = observability.OrNop(l) }
}

func WithTracer(t observability.Tracer) Option {
	return func(c *Collection) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New returns an empty collection.
func New(opts ...Option) *Collection {
	c := &Collection{
		scale:       DefaultRenderScale,
		defaultSize: DefaultPageSize,
		log:         observability.NopLogger{},
		tracer:      observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn for structural events.
func (c *Collection) OnChange(fn func(Event)) { c.observers = append(c.observers, fn) }

func (c *Collection) emit(ev Event) {
	for _, fn := range c.observers {
		fn(ev)
	}
}

// RenderScale returns the scale rasters are rendered at.
func (c *Collection) RenderScale() float64 { return c.scale }

// Document returns the loaded source document, or nil.
func (c *Collection) Document() render.Document { return c.doc }

// Len returns the number of pages.
func (c *Collection) Len() int { return len(c.pages) }

// Page returns the page with 1-based number n.
func (c *Collection) Page(n int) (*Page, error) {
	if n < 1 || n > len(c.pages) {
		return nil, fmt.Errorf("page %d of %d: %w", n, len(c.pages), ErrPageRange)
	}
	return c.pages[n-1], nil
}

// Pages returns the pages in number order.
func (c *Collection) Pages() []*Page { return append([]*Page(nil), c.pages...) }

// ByID returns the page with the given identity.
func (c *Collection) ByID(id ID) (*Page, bool) {
	for _, p := range c.pages {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Reindex sets every page number from its position.
func (c *Collection) Reindex() {
	for i, p := range c.pages {
		p.Number = i + 1
	}
}

func (c *Collection) newID() ID {
	c.nextID++
	return c.nextID
}

// Load replaces the collection with one page per page of doc. The new
// pages are built aside and swapped in only when every page rendered; on
// error the previous collection is left untouched.
func (c *Collection) Load(ctx context.Context, doc render.Document) (err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanLoad)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	n := doc.NumPages()
	span.SetTag("pages", n)
	if n == 0 {
		return &LoadError{Err: ErrNoPages}
	}
	built := make([]*Page, 0, n)
	firstID := c.nextID
	for i := 1; i <= n; i++ {
		img, vp, err := c.render(ctx, doc, i, 0)
		if err != nil {
			c.nextID = firstID
			c.log.Error("load failed", observability.Page(i), observability.Error("error", err))
			return &LoadError{Page: i, Err: err}
		}
		built = append(built, &Page{
			ID:          c.newID(),
			Number:      i,
			Origin:      OriginSource,
			Raster:      img,
			Surface:     surface.New(vp.Width, vp.Height),
			Width:       vp.Width,
			Height:      vp.Height,
			SourceIndex: i,
		})
	}
	old := c.pages
	c.doc = doc
	c.pages = built
	c.log.Info("document loaded", observability.Int("pages", n), observability.Float64("scale", c.scale))
	c.emit(Event{Kind: EventLoaded, Removed: old})
	return nil
}

func (c *Collection) render(ctx context.Context, doc render.Document, index, rotation int) (image.Image, render.Viewport, error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanRenderPage)
	defer span.Finish()
	span.SetTag("page", index)

	h, err := doc.Page(ctx, index)
	if err != nil {
		span.SetError(err)
		return nil, render.Viewport{}, err
	}
	vp := h.Viewport(c.scale, rotation)
	img, err := h.Render(ctx, vp)
	if err != nil {
		span.SetError(err)
		return nil, render.Viewport{}, err
	}
	return img, vp, nil
}

// InsertBlank inserts a blank page immediately after page afterIndex
// (0 inserts before the first page). The new page copies the size of page
// afterIndex, of page 1 when afterIndex is 0, or DefaultPageSize when the
// collection is empty.
func (c *Collection) InsertBlank(afterIndex int) (*Page, error) {
	if afterIndex < 0 || afterIndex > len(c.pages) {
		return nil, fmt.Errorf("insert after %d of %d: %w", afterIndex, len(c.pages), ErrPageRange)
	}
	size := c.defaultSize
	switch {
	case afterIndex > 0:
		size = c.pages[afterIndex-1].Size()
	case len(c.pages) > 0:
		size = c.pages[0].Size()
	}
	p := &Page{
		ID:      c.newID(),
		Origin:  OriginInserted,
		Raster:  Blank(size.X, size.Y),
		Surface: surface.New(size.X, size.Y),
		Width:   size.X,
		Height:  size.Y,
	}
	c.pages = append(c.pages, nil)
	copy(c.pages[afterIndex+1:], c.pages[afterIndex:])
	c.pages[afterIndex] = p
	c.Reindex()
	c.log.Debug("page inserted", observability.Page(p.Number), observability.Int("width", p.Width), observability.Int("height", p.Height))
	c.emit(Event{Kind: EventInserted, Page: p})
	return p, nil
}

// Rotate turns page n by delta degrees. Source pages are re-rendered at the
// new rotation; inserted pages swap width and height on quarter turns.
// Annotations keep their coordinates.
func (c *Collection) Rotate(ctx context.Context, n, delta int) error {
	if delta%90 != 0 {
		return fmt.Errorf("rotate page %d by %d: %w", n, delta, ErrRotation)
	}
	p, err := c.Page(n)
	if err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	rotation := render.NormalizeRotation(p.Rotation + delta)
	switch p.Origin {
	case OriginSource:
		if c.doc == nil {
			return fmt.Errorf("rotate page %d: %w", n, ErrNoSource)
		}
		img, vp, err := c.render(ctx, c.doc, p.SourceIndex, rotation)
		if err != nil {
			return fmt.Errorf("rotate page %d: %w", n, err)
		}
		p.Raster, p.Width, p.Height = img, vp.Width, vp.Height
	case OriginInserted:
		if (delta/90)%2 != 0 {
			p.Width, p.Height = p.Height, p.Width
		}
		p.Raster = Blank(p.Width, p.Height)
	}
	p.Rotation = rotation
	p.Surface.Resize(p.Width, p.Height)
	c.log.Debug("page rotated", observability.Page(n), observability.Int("rotation", rotation))
	c.emit(Event{Kind: EventRotated, Page: p})
	return nil
}

// RotateAll rotates every page in order, stopping at the first failure.
func (c *Collection) RotateAll(ctx context.Context, delta int) error {
	for i := 1; i <= len(c.pages); i++ {
		if err := c.Rotate(ctx, i, delta); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes page n and re-indexes the rest.
func (c *Collection) Remove(n int) error {
	p, err := c.Page(n)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	c.pages = append(c.pages[:n-1], c.pages[n:]...)
	c.Reindex()
	c.log.Debug("page removed", observability.Page(n))
	c.emit(Event{Kind: EventRemoved, Page: p})
	return nil
}

// Blank returns an opaque white raster of the given size.
func Blank(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}
