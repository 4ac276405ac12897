package tools

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/wudi/pdfmark/fonts"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/surface"
)

var (
	ErrNotText      = errors.New("object is not text")
	ErrInvalidWidth = errors.New("stroke width must be positive")
	ErrUnknownFont  = errors.New("unknown font family")
)

// Layer is the part of a page that received the pointer event.
type Layer int

const (
	LayerAnnotation Layer = iota
	// LayerText is the selectable text overlay; pointer events on it are
	// left to text selection.
	LayerText
)

// PointerEvent is one pointer sample in surface coordinates.
type PointerEvent struct {
	Page  int
	Point surface.Point
	Layer Layer
}

// Target resolves page numbers to their annotation surfaces.
type Target interface {
	Len() int
	Surface(page int) (*surface.Surface, error)
}

// Recorder brackets an interaction so it can be undone as one step.
type Recorder interface {
	Begin(page int) error
	Cancel(page int)
}

// ImagePicker asks the user for an image file. A nil reader with a nil
// error means the user cancelled.
type ImagePicker interface {
	Pick(ctx context.Context) (io.ReadCloser, error)
}

// PickerFunc adapts a function to ImagePicker.
type PickerFunc func(ctx context.Context) (io.ReadCloser, error)

func (f PickerFunc) Pick(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

type nopRecorder struct{}

func (nopRecorder) Begin(int) error { return nil }
func (nopRecorder) Cancel(int)      {}

// interaction is the pointer gesture in progress between down and up.
type interaction struct {
	state State
	page  int
	surf  *surface.Surface
	obj   surface.ID
	last  surface.Point
	moved bool
}

// Controller dispatches pointer input to the active tool.
type Controller struct {
	state    State
	target   Target
	rec      Recorder
	picker   ImagePicker
	log      observability.Logger
	active   *interaction
	onChange []func(State)
}

// Option configures a Controller.
type Option func(*Controller)

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.rec = r
		}
	}
}

func WithImagePicker(p ImagePicker) Option {
	return func(c *Controller) { c.picker = p }
}

func WithLogger(l observability.Logger) Option {
	return func(c *Controller) { c.log = observability.OrNop(l) }
}

// NewController returns a controller in DefaultState.
func NewController(target Target, opts ...Option) *Controller {
	c := &Controller{
		state:  DefaultState(),
		target: target,
		rec:    nopRecorder{},
		log:    observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current interaction context.
func (c *Controller) State() State { return c.state }

// OnChange registers fn to run after every state change.
func (c *Controller) OnChange(fn func(State)) { c.onChange = append(c.onChange, fn) }

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	c.state = s
	for _, fn := range c.onChange {
		fn(s)
	}
}

// Select switches every page to tool t. A gesture in progress is
// abandoned.
func (c *Controller) Select(t Tool) {
	c.abort()
	c.log.Debug("tool selected", observability.String("tool", t.String()))
	c.setState(c.state.WithTool(t))
}

// SetColor changes the ink colour for new objects.
func (c *Controller) SetColor(col color.NRGBA) {
	c.setState(c.state.WithColor(col))
}

// SetStrokeWidth changes the pen and line width.
func (c *Controller) SetStrokeWidth(w float64) error {
	if w <= 0 {
		return fmt.Errorf("set stroke width %v: %w", w, ErrInvalidWidth)
	}
	c.setState(c.state.WithStrokeWidth(w))
	return nil
}

// SetFontFamily makes family the default for new text and applies it to
// the active text object of every page.
func (c *Controller) SetFontFamily(family string) error {
	if !fonts.Known(family) {
		return fmt.Errorf("set font %q: %w", family, ErrUnknownFont)
	}
	c.setState(c.state.WithFontFamily(family))
	for page := 1; page <= c.target.Len(); page++ {
		s, err := c.target.Surface(page)
		if err != nil {
			return err
		}
		o, ok := s.Active()
		if !ok || o.Kind != surface.KindText || o.FontFamily == family {
			continue
		}
		if err := c.rec.Begin(page); err != nil {
			return err
		}
		s.Update(o.ID, func(o *surface.Object) { o.FontFamily = family })
		c.rec.Cancel(page)
	}
	return nil
}

// PointerDown starts a gesture.
func (c *Controller) PointerDown(ctx context.Context, ev PointerEvent) error {
	if ev.Layer == LayerText {
		return nil
	}
	c.abort()
	s, err := c.target.Surface(ev.Page)
	if err != nil {
		return fmt.Errorf("pointer down: %w", err)
	}
	st := c.state
	switch st.Tool {
	case ToolSelect:
		return c.selectDown(st, ev, s)
	case ToolPen, ToolHighlighter, ToolLine:
		return c.strokeDown(st, ev, s)
	case ToolText:
		return c.textDown(st, ev, s)
	case ToolImage:
		return c.imageDown(ctx, st, ev, s)
	case ToolEraser:
		return c.eraserDown(ev, s)
	}
	return nil
}

// PointerMove continues the gesture started by PointerDown.
func (c *Controller) PointerMove(_ context.Context, ev PointerEvent) error {
	in := c.active
	if in == nil || ev.Layer == LayerText {
		return nil
	}
	p := ev.Point
	switch in.state.Tool {
	case ToolSelect:
		dx, dy := p.X-in.last.X, p.Y-in.last.Y
		if dx == 0 && dy == 0 {
			return nil
		}
		in.surf.Preview(in.obj, func(o *surface.Object) { o.Translate(dx, dy) })
		in.moved = true
	case ToolPen, ToolHighlighter:
		in.surf.Preview(in.obj, func(o *surface.Object) { o.Points = append(o.Points, p) })
	case ToolLine:
		in.surf.Preview(in.obj, func(o *surface.Object) { o.Points[1] = p })
	}
	in.last = p
	return nil
}

// PointerUp finishes the gesture and commits it.
func (c *Controller) PointerUp(_ context.Context, ev PointerEvent) error {
	in := c.active
	if in == nil {
		return nil
	}
	c.active = nil
	defer c.rec.Cancel(in.page)
	switch in.state.Tool {
	case ToolSelect:
		if in.moved {
			in.surf.Touch(in.obj)
		}
	case ToolPen, ToolHighlighter, ToolLine:
		if err := in.surf.Commit(in.obj); err != nil {
			return fmt.Errorf("pointer up: %w", err)
		}
		c.log.Debug("stroke committed", observability.Page(in.page), observability.String("tool", in.state.Tool.String()))
	}
	return nil
}

// Abort abandons the gesture in progress: a pending stroke is discarded and
// a drag keeps the position it reached. Later move and up events of that
// gesture are ignored.
func (c *Controller) Abort() { c.abort() }

func (c *Controller) abort() {
	in := c.active
	if in == nil {
		return
	}
	c.active = nil
	switch in.state.Tool {
	case ToolPen, ToolHighlighter, ToolLine:
		in.surf.Discard(in.obj)
	case ToolSelect:
		if in.moved {
			in.surf.Touch(in.obj)
		}
	}
	c.rec.Cancel(in.page)
}

func (c *Controller) selectDown(st State, ev PointerEvent, s *surface.Surface) error {
	id, ok := s.HitTest(ev.Point)
	if !ok {
		s.ClearActive()
		return nil
	}
	s.SetActive(id)
	if err := c.rec.Begin(ev.Page); err != nil {
		return err
	}
	c.active = &interaction{state: st, page: ev.Page, surf: s, obj: id, last: ev.Point}
	return nil
}

func (c *Controller) strokeDown(st State, ev PointerEvent, s *surface.Surface) error {
	if err := c.rec.Begin(ev.Page); err != nil {
		return err
	}
	var obj surface.Object
	switch st.Tool {
	case ToolPen:
		obj = surface.NewPath([]surface.Point{ev.Point}, st.Color, st.StrokeWidth)
	case ToolHighlighter:
		obj = surface.NewHighlight([]surface.Point{ev.Point}, st.Color)
	default:
		obj = surface.NewLine(ev.Point, ev.Point, st.Color, st.StrokeWidth)
	}
	id := s.AddPending(obj)
	c.active = &interaction{state: st, page: ev.Page, surf: s, obj: id, last: ev.Point}
	return nil
}

func (c *Controller) textDown(st State, ev PointerEvent, s *surface.Surface) error {
	if id, ok := s.HitTest(ev.Point); ok {
		if o, _ := s.Get(id); o.Kind == surface.KindText {
			s.SetEditing(id, true)
			return nil
		}
	}
	if err := c.rec.Begin(ev.Page); err != nil {
		return err
	}
	id := s.Add(surface.NewText(ev.Point, DefaultText, st.FontFamily, DefaultTextSize, st.Color))
	c.rec.Cancel(ev.Page)
	s.SetEditing(id, true)
	c.setState(c.state.WithTool(ToolSelect))
	return nil
}

func (c *Controller) imageDown(ctx context.Context, st State, ev PointerEvent, s *surface.Surface) error {
	if _, ok := s.HitTest(ev.Point); ok || c.picker == nil {
		return nil
	}
	rc, err := c.picker.Pick(ctx)
	if err != nil {
		return fmt.Errorf("pick image: %w", err)
	}
	if rc == nil {
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	img, format, err := surface.DecodeImage(data)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if err := c.rec.Begin(ev.Page); err != nil {
		return err
	}
	id := s.Add(surface.NewImage(ev.Point, data, b.Dx(), b.Dy(), ImageScale))
	c.rec.Cancel(ev.Page)
	s.SetActive(id)
	c.log.Debug("image placed", observability.Page(ev.Page), observability.String("format", format))
	c.setState(st.WithTool(ToolSelect))
	return nil
}

func (c *Controller) eraserDown(ev PointerEvent, s *surface.Surface) error {
	id, ok := s.HitTest(ev.Point)
	if !ok {
		return nil
	}
	if err := c.rec.Begin(ev.Page); err != nil {
		return err
	}
	defer c.rec.Cancel(ev.Page)
	s.Remove(id)
	return nil
}

// DeleteSelected removes the active object of every page unless it is a
// text object being edited.
func (c *Controller) DeleteSelected() (int, error) {
	removed := 0
	for page := 1; page <= c.target.Len(); page++ {
		s, err := c.target.Surface(page)
		if err != nil {
			return removed, err
		}
		o, ok := s.Active()
		if !ok || o.Editing {
			continue
		}
		if err := c.rec.Begin(page); err != nil {
			return removed, err
		}
		if s.Remove(o.ID) {
			removed++
		}
		c.rec.Cancel(page)
	}
	return removed, nil
}

// EditText replaces the content of a text object as one undoable step.
func (c *Controller) EditText(page int, id surface.ID, text string) error {
	s, err := c.target.Surface(page)
	if err != nil {
		return fmt.Errorf("edit text: %w", err)
	}
	o, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("edit text %d: %w", id, surface.ErrNotFound)
	}
	if o.Kind != surface.KindText {
		return fmt.Errorf("edit text %d: %w", id, ErrNotText)
	}
	if o.Text == text {
		return nil
	}
	if err := c.rec.Begin(page); err != nil {
		return err
	}
	defer c.rec.Cancel(page)
	s.Update(id, func(o *surface.Object) { o.Text = text })
	return nil
}

// FinishEditing leaves text editing mode on page.
func (c *Controller) FinishEditing(page int) error {
	s, err := c.target.Surface(page)
	if err != nil {
		return fmt.Errorf("finish editing: %w", err)
	}
	if o, ok := s.Active(); ok && o.Editing {
		s.SetEditing(o.ID, false)
	}
	return nil
}
