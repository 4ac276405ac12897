package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/wudi/pdfmark/history"
	"github.com/wudi/pdfmark/surface"
)

type book struct {
	surfaces []*surface.Surface
	hist     *history.Manager
}

func newBook(n int) *book {
	b := &book{hist: history.New()}
	for i := 0; i < n; i++ {
		s := surface.New(400, 400)
		b.surfaces = append(b.surfaces, s)
		b.hist.Track(history.PageID(i+1), s)
	}
	return b
}

func (b *book) Len() int { return len(b.surfaces) }

func (b *book) Surface(page int) (*surface.Surface, error) {
	if page < 1 || page > len(b.surfaces) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return b.surfaces[page-1], nil
}

func (b *book) Begin(page int) error { return b.hist.Begin(history.PageID(page)) }
func (b *book) Cancel(page int)      { b.hist.Cancel(history.PageID(page)) }

func (b *book) undoDepth() int {
	u, _ := b.hist.Len()
	return u
}

var ctx = context.Background()

func at(page int, x, y float64) PointerEvent {
	return PointerEvent{Page: page, Point: surface.Point{X: x, Y: y}}
}

func drag(t *testing.T, c *Controller, page int, pts ...surface.Point) {
	t.Helper()
	if err := c.PointerDown(ctx, PointerEvent{Page: page, Point: pts[0]}); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	for _, p := range pts[1:] {
		if err := c.PointerMove(ctx, PointerEvent{Page: page, Point: p}); err != nil {
			t.Fatalf("PointerMove() error = %v", err)
		}
	}
	if err := c.PointerUp(ctx, PointerEvent{Page: page, Point: pts[len(pts)-1]}); err != nil {
		t.Fatalf("PointerUp() error = %v", err)
	}
}

func TestParseTool(t *testing.T) {
	for _, tool := range []Tool{ToolSelect, ToolPen, ToolLine, ToolHighlighter, ToolText, ToolImage, ToolEraser} {
		got, err := ParseTool(tool.String())
		if err != nil || got != tool {
			t.Fatalf("ParseTool(%q) = %v, %v", tool.String(), got, err)
		}
	}
	if _, err := ParseTool("lasso"); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

func TestPenStrokeIsOneUndoStep(t *testing.T) {
	b := newBook(1)
	c := NewController(b, WithRecorder(b))
	c.Select(ToolPen)
	c.SetColor(color.NRGBA{R: 200, A: 255})
	drag(t, c, 1, surface.Point{X: 10, Y: 10}, surface.Point{X: 20, Y: 15}, surface.Point{X: 30, Y: 30})

	objs := b.surfaces[0].Objects()
	if len(objs) != 1 || objs[0].Kind != surface.KindPath || len(objs[0].Points) != 3 {
		t.Fatalf("unexpected objects %+v", objs)
	}
	if objs[0].Width != DefaultStrokeWidth || objs[0].Color.R != 200 {
		t.Fatalf("stroke ignored tool state: %+v", objs[0])
	}
	if b.undoDepth() != 1 {
		t.Fatalf("undo depth = %d, want 1", b.undoDepth())
	}
	b.hist.Undo()
	if b.surfaces[0].Len() != 0 {
		t.Fatalf("undo left %d objects", b.surfaces[0].Len())
	}
	b.hist.Redo()
	if b.surfaces[0].Len() != 1 {
		t.Fatalf("redo restored %d objects", b.surfaces[0].Len())
	}
}

func TestHighlighterForcesWidthAndAlpha(t *testing.T) {
	b := newBook(1)
	c := NewController(b, WithRecorder(b))
	c.Select(ToolHighlighter)
	if err := c.SetStrokeWidth(3); err != nil {
		t.Fatalf("SetStrokeWidth() error = %v", err)
	}
	drag(t, c, 1, surface.Point{X: 10, Y: 10}, surface.Point{X: 90, Y: 10})
	o := b.surfaces[0].Objects()[0]
	if o.Kind != surface.KindHighlight || o.Width != surface.HighlightWidth || o.Color.A != 102 {
		t.Fatalf("unexpected highlight %+v", o)
	}
}

func TestLinePublishesOnceOnPointerUp(t *testing.T) {
	b := newBook(1)
	c := NewController(b, WithRecorder(b))
	c.Select(ToolLine)
	events := 0
	b.surfaces[0].Subscribe(func(surface.Event) { events++ })

	if err := c.PointerDown(ctx, at(1, 10, 10)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	for x := 20.0; x <= 100; x += 20 {
		c.PointerMove(ctx, at(1, x, 50))
	}
	if events != 0 {
		t.Fatalf("line published %d events while drawing", events)
	}
	c.PointerUp(ctx, at(1, 100, 50))
	if events != 1 {
		t.Fatalf("events = %d, want 1", events)
	}
	o := b.surfaces[0].Objects()[0]
	if o.Points[0] != (surface.Point{X: 10, Y: 10}) || o.Points[1] != (surface.Point{X: 100, Y: 50}) {
		t.Fatalf("unexpected endpoints %+v", o.Points)
	}
}

func TestSelectDragMovesObject(t *testing.T) {
	b := newBook(1)
	s := b.surfaces[0]
	id := s.Add(surface.NewPath([]surface.Point{{X: 50, Y: 50}, {X: 60, Y: 50}}, color.NRGBA{A: 255}, 4))
	c := NewController(b, WithRecorder(b))

	drag(t, c, 1, surface.Point{X: 55, Y: 50}, surface.Point{X: 65, Y: 60}, surface.Point{X: 75, Y: 70})
	o, _ := s.Get(id)
	if o.Points[0] != (surface.Point{X: 70, Y: 70}) {
		t.Fatalf("object not moved: %+v", o.Points)
	}
	if b.undoDepth() != 1 {
		t.Fatalf("undo depth = %d, want 1", b.undoDepth())
	}
	if a, ok := s.Active(); !ok || a.ID != id {
		t.Fatalf("dragged object is not active")
	}

	// A click without movement selects but records nothing.
	drag(t, c, 1, surface.Point{X: 75, Y: 70})
	if b.undoDepth() != 1 {
		t.Fatalf("click recorded an undo step")
	}
	drag(t, c, 1, surface.Point{X: 300, Y: 300})
	if _, ok := s.Active(); ok {
		t.Fatalf("click on empty area should deselect")
	}
}

func TestTextToolCreatesAndReturnsToSelect(t *testing.T) {
	b := newBook(2)
	c := NewController(b, WithRecorder(b))
	if err := c.SetFontFamily("Courier New"); err != nil {
		t.Fatalf("SetFontFamily() error = %v", err)
	}
	c.Select(ToolText)
	if err := c.PointerDown(ctx, at(2, 40, 40)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	c.PointerUp(ctx, at(2, 40, 40))

	if c.State().Tool != ToolSelect {
		t.Fatalf("tool = %v, want select", c.State().Tool)
	}
	o, ok := b.surfaces[1].Active()
	if !ok || o.Kind != surface.KindText || !o.Editing {
		t.Fatalf("new text not active and editing: %+v", o)
	}
	if o.Text != DefaultText || o.FontSize != DefaultTextSize || o.FontFamily != "Courier New" {
		t.Fatalf("unexpected text object %+v", o)
	}
	if err := c.EditText(2, o.ID, "Signed"); err != nil {
		t.Fatalf("EditText() error = %v", err)
	}
	c.FinishEditing(2)
	if got, _ := b.surfaces[1].Get(o.ID); got.Text != "Signed" || got.Editing {
		t.Fatalf("unexpected text after edit %+v", got)
	}
	if b.undoDepth() != 2 {
		t.Fatalf("undo depth = %d, want 2 (add, edit)", b.undoDepth())
	}
}

func TestTextToolEditsExistingText(t *testing.T) {
	b := newBook(1)
	s := b.surfaces[0]
	id := s.Add(surface.NewText(surface.Point{X: 20, Y: 20}, "hello", "Arial", 20, color.NRGBA{A: 255}))
	c := NewController(b, WithRecorder(b))
	c.Select(ToolText)
	c.PointerDown(ctx, at(1, 25, 25))
	if s.Len() != 1 {
		t.Fatalf("click on text created a new object")
	}
	if o, _ := s.Get(id); !o.Editing {
		t.Fatalf("existing text not in editing mode")
	}
	if c.State().Tool != ToolText {
		t.Fatalf("tool changed to %v", c.State().Tool)
	}
	if err := c.EditText(1, 99, "x"); !errors.Is(err, surface.ErrNotFound) {
		t.Fatalf("EditText(unknown) error = %v", err)
	}
}

func TestImageTool(t *testing.T) {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 80, 60)))
	picks := 0
	picker := PickerFunc(func(context.Context) (io.ReadCloser, error) {
		picks++
		if picks == 1 {
			return nil, nil
		}
		return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
	})
	b := newBook(1)
	c := NewController(b, WithRecorder(b), WithImagePicker(picker))
	c.Select(ToolImage)

	c.PointerDown(ctx, at(1, 100, 100))
	if b.surfaces[0].Len() != 0 || c.State().Tool != ToolImage {
		t.Fatalf("cancelled pick changed state")
	}
	if err := c.PointerDown(ctx, at(1, 100, 100)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	o, ok := b.surfaces[0].Active()
	if !ok || o.Kind != surface.KindImage || o.Scale != ImageScale || o.NaturalWidth != 80 {
		t.Fatalf("unexpected image %+v", o)
	}
	if o.Position != (surface.Point{X: 100, Y: 100}) {
		t.Fatalf("image at %+v", o.Position)
	}
	if c.State().Tool != ToolSelect || b.undoDepth() != 1 {
		t.Fatalf("tool=%v undo=%d", c.State().Tool, b.undoDepth())
	}
}

func TestImageToolRejectsUndecodable(t *testing.T) {
	picker := PickerFunc(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("plain text"))), nil
	})
	b := newBook(1)
	c := NewController(b, WithRecorder(b), WithImagePicker(picker))
	c.Select(ToolImage)
	if err := c.PointerDown(ctx, at(1, 5, 5)); err == nil {
		t.Fatalf("expected decode error")
	}
	if b.surfaces[0].Len() != 0 || b.undoDepth() != 0 {
		t.Fatalf("failed image left state behind")
	}
}

func TestEraserRemovesHitObject(t *testing.T) {
	b := newBook(1)
	s := b.surfaces[0]
	s.Add(surface.NewLine(surface.Point{X: 0, Y: 100}, surface.Point{X: 400, Y: 100}, color.NRGBA{A: 255}, 2))
	c := NewController(b, WithRecorder(b))
	c.Select(ToolEraser)
	c.PointerDown(ctx, at(1, 200, 300))
	if s.Len() != 1 {
		t.Fatalf("eraser removed an object it did not touch")
	}
	c.PointerDown(ctx, at(1, 200, 101))
	if s.Len() != 0 || b.undoDepth() != 1 {
		t.Fatalf("eraser: objects=%d undo=%d", s.Len(), b.undoDepth())
	}
}

func TestTextLayerEventsAreIgnored(t *testing.T) {
	b := newBook(1)
	c := NewController(b, WithRecorder(b))
	c.Select(ToolPen)
	ev := at(1, 10, 10)
	ev.Layer = LayerText
	if err := c.PointerDown(ctx, ev); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	c.PointerUp(ctx, ev)
	if b.surfaces[0].Len() != 0 {
		t.Fatalf("text-layer event drew a stroke")
	}
}

func TestSetFontFamilyUpdatesActiveText(t *testing.T) {
	b := newBook(2)
	black := color.NRGBA{A: 255}
	a := b.surfaces[0].Add(surface.NewText(surface.Point{X: 1, Y: 1}, "a", "Arial", 20, black))
	p := b.surfaces[1].Add(surface.NewPath([]surface.Point{{X: 1, Y: 1}}, black, 1))
	b.surfaces[0].SetActive(a)
	b.surfaces[1].SetActive(p)

	c := NewController(b, WithRecorder(b))
	if err := c.SetFontFamily("Georgia"); err != nil {
		t.Fatalf("SetFontFamily() error = %v", err)
	}
	if o, _ := b.surfaces[0].Get(a); o.FontFamily != "Georgia" {
		t.Fatalf("active text font = %q", o.FontFamily)
	}
	if b.undoDepth() != 1 {
		t.Fatalf("undo depth = %d, want 1", b.undoDepth())
	}
	if err := c.SetFontFamily("Wingdings 9"); !errors.Is(err, ErrUnknownFont) {
		t.Fatalf("SetFontFamily(unknown) error = %v", err)
	}
	if err := c.SetStrokeWidth(0); !errors.Is(err, ErrInvalidWidth) {
		t.Fatalf("SetStrokeWidth(0) error = %v", err)
	}
}

func TestDeleteSelectedSkipsEditingText(t *testing.T) {
	b := newBook(2)
	black := color.NRGBA{A: 255}
	p := b.surfaces[0].Add(surface.NewPath([]surface.Point{{X: 1, Y: 1}}, black, 1))
	b.surfaces[0].SetActive(p)
	txt := b.surfaces[1].Add(surface.NewText(surface.Point{X: 1, Y: 1}, "a", "Arial", 20, black))
	b.surfaces[1].SetEditing(txt, true)

	c := NewController(b, WithRecorder(b))
	n, err := c.DeleteSelected()
	if err != nil || n != 1 {
		t.Fatalf("DeleteSelected() = %d, %v", n, err)
	}
	if b.surfaces[0].Len() != 0 || b.surfaces[1].Len() != 1 {
		t.Fatalf("wrong objects deleted")
	}
}

func TestSelectAbortsStrokeInProgress(t *testing.T) {
	b := newBook(1)
	c := NewController(b, WithRecorder(b))
	c.Select(ToolPen)
	c.PointerDown(ctx, at(1, 10, 10))
	c.PointerMove(ctx, at(1, 20, 20))
	c.Select(ToolSelect)
	c.PointerUp(ctx, at(1, 20, 20))
	if b.surfaces[0].Len() != 0 || b.undoDepth() != 0 {
		t.Fatalf("abandoned stroke left objects=%d undo=%d", b.surfaces[0].Len(), b.undoDepth())
	}
}

func TestAbortIgnoresRestOfGesture(t *testing.T) {
	b := newBook(1)
	c := NewController(b, WithRecorder(b))
	c.Select(ToolLine)
	if err := c.PointerDown(ctx, at(1, 10, 10)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	c.Abort()
	if err := c.PointerMove(ctx, at(1, 50, 50)); err != nil {
		t.Fatalf("PointerMove() after Abort error = %v", err)
	}
	if err := c.PointerUp(ctx, at(1, 50, 50)); err != nil {
		t.Fatalf("PointerUp() after Abort error = %v", err)
	}
	if b.surfaces[0].Len() != 0 || b.undoDepth() != 0 {
		t.Fatalf("aborted line left objects=%d undo=%d", b.surfaces[0].Len(), b.undoDepth())
	}
	if c.State().Tool != ToolLine {
		t.Fatalf("Abort changed the tool to %v", c.State().Tool)
	}
}
