package editor

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfmark/notes"
	"github.com/wudi/pdfmark/pdfsource"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/render/rendertest"
	"github.com/wudi/pdfmark/scripting"
	"github.com/wudi/pdfmark/search"
	"github.com/wudi/pdfmark/share"
)

var _ scripting.Editor = (*Session)(nil)

var ctx = context.Background()

func loaded(t *testing.T, n int, opts ...Option) *Session {
	t.Helper()
	s := New(DefaultConfig(), opts...)
	if err := s.LoadDocument(ctx, "report.pdf", rendertest.New(n)); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	return s
}

func draw(t *testing.T, s *Session, page int) {
	t.Helper()
	if err := s.SelectTool("pen"); err != nil {
		t.Fatalf("SelectTool() error = %v", err)
	}
	steps := []func(context.Context, int, float64, float64) error{s.PointerDown, s.PointerMove, s.PointerUp}
	for i, step := range steps {
		if err := step(ctx, page, 10+float64(i)*10, 10+float64(i)*5); err != nil {
			t.Fatalf("pointer step %d error = %v", i, err)
		}
	}
}

func objects(t *testing.T, s *Session, page int) int {
	t.Helper()
	p, err := s.Page(page)
	if err != nil {
		t.Fatalf("Page(%d) error = %v", page, err)
	}
	return p.Surface.Len()
}

func TestStrokeUndoRedo(t *testing.T) {
	s := loaded(t, 2)
	if s.CanUndo() {
		t.Fatalf("fresh session can undo")
	}
	draw(t, s, 1)
	if got := objects(t, s, 1); got != 1 {
		t.Fatalf("objects after stroke = %d, want 1", got)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := objects(t, s, 1); got != 0 {
		t.Fatalf("objects after undo = %d, want 0", got)
	}
	if !s.CanRedo() {
		t.Fatalf("cannot redo after undo")
	}
	if err := s.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := objects(t, s, 1); got != 1 {
		t.Fatalf("objects after redo = %d, want 1", got)
	}
	// Empty stacks are no-ops.
	if err := s.Redo(); err != nil {
		t.Fatalf("Redo() on empty stack error = %v", err)
	}
}

func TestLoadRejectsNonPDFAndKeepsDocument(t *testing.T) {
	s := loaded(t, 3)
	err := s.Load(ctx, "notes.txt", []byte("just some text"))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("Load() error = %v, want ErrNotPDF", err)
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Load() error %T is not a LoadError", err)
	}
	if s.PageCount() != 3 || s.FileName() != "report.pdf" {
		t.Fatalf("previous document lost: %d pages, %q", s.PageCount(), s.FileName())
	}
}

func TestLoadUsesOpener(t *testing.T) {
	var got []byte
	s := New(DefaultConfig(), WithOpener(func(_ context.Context, data []byte) (render.Document, error) {
		got = data
		return rendertest.New(2), nil
	}))
	data := []byte("%PDF-1.7\n%%EOF\n")
	if err := s.Load(ctx, "in.pdf", data); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(got, data) || s.PageCount() != 2 {
		t.Fatalf("opener saw %q, pages = %d", got, s.PageCount())
	}
}

func TestReloadClearsHistory(t *testing.T) {
	s := loaded(t, 2)
	draw(t, s, 2)
	if err := s.LoadDocument(ctx, "other.pdf", rendertest.New(1)); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if s.CanUndo() || s.CanRedo() {
		t.Fatalf("history survived a reload")
	}
	draw(t, s, 1)
	if !s.CanUndo() {
		t.Fatalf("new page is not tracked")
	}
}

func TestFailedLoadKeepsHistory(t *testing.T) {
	s := loaded(t, 1)
	draw(t, s, 1)
	bad := rendertest.New(2)
	bad.Pages[1].Fail = true
	if err := s.LoadDocument(ctx, "bad.pdf", bad); err == nil {
		t.Fatalf("LoadDocument() succeeded on a failing page")
	}
	if !s.CanUndo() || s.PageCount() != 1 {
		t.Fatalf("failed load disturbed the session")
	}
}

func TestHistoryFollowsPageAcrossInsert(t *testing.T) {
	s := loaded(t, 2)
	draw(t, s, 1)
	if err := s.InsertBlank(0); err != nil {
		t.Fatalf("InsertBlank() error = %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := []int{objects(t, s, 1), objects(t, s, 2)}; !cmp.Equal(got, []int{0, 0}) {
		t.Fatalf("objects after undo = %v", got)
	}
	draw(t, s, 1)
	if !s.CanUndo() {
		t.Fatalf("inserted page is not tracked")
	}
}

func TestUndoDuringStrokeAbandonsIt(t *testing.T) {
	s := loaded(t, 2)
	draw(t, s, 1)
	if err := s.PointerDown(ctx, 1, 100, 100); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	if err := s.PointerMove(ctx, 1, 120, 110); err != nil {
		t.Fatalf("PointerMove() error = %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if err := s.PointerUp(ctx, 1, 130, 120); err != nil {
		t.Fatalf("PointerUp() after mid-stroke undo error = %v", err)
	}
	if got := objects(t, s, 1); got != 0 {
		t.Fatalf("objects = %d, want 0 (first stroke undone, second abandoned)", got)
	}
	if !s.CanRedo() {
		t.Fatalf("undo of the first stroke was lost")
	}
}

func TestStructuralChangesAbandonStroke(t *testing.T) {
	ops := map[string]func(s *Session) error{
		"remove": func(s *Session) error { return s.RemovePage(2) },
		"insert": func(s *Session) error { return s.InsertBlank(2) },
		"rotate": func(s *Session) error { return s.Rotate(ctx, 1, 90) },
	}
	for name, op := range ops {
		s := loaded(t, 2)
		if err := s.SelectTool("pen"); err != nil {
			t.Fatalf("SelectTool() error = %v", err)
		}
		if err := s.PointerDown(ctx, 1, 10, 10); err != nil {
			t.Fatalf("%s: PointerDown() error = %v", name, err)
		}
		if err := op(s); err != nil {
			t.Fatalf("%s: error = %v", name, err)
		}
		if err := s.PointerUp(ctx, 1, 20, 20); err != nil {
			t.Fatalf("%s: PointerUp() error = %v", name, err)
		}
		if got := objects(t, s, 1); got != 0 || s.CanUndo() {
			t.Fatalf("%s: stroke survived: objects=%d undo=%v", name, got, s.CanUndo())
		}
	}
}

func TestRemovePageDropsItsHistory(t *testing.T) {
	s := loaded(t, 2)
	draw(t, s, 2)
	if err := s.RemovePage(2); err != nil {
		t.Fatalf("RemovePage() error = %v", err)
	}
	if s.CanUndo() {
		t.Fatalf("history of removed page survived")
	}
}

func TestRotateKeepsAnnotations(t *testing.T) {
	s := loaded(t, 1)
	draw(t, s, 1)
	before, _ := s.Page(1)
	w, h := before.Width, before.Height
	if err := s.Rotate(ctx, 1, 90); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	p, _ := s.Page(1)
	if p.Width != h || p.Height != w || p.Rotation != 90 {
		t.Fatalf("rotated page = %dx%d @%d", p.Width, p.Height, p.Rotation)
	}
	if p.Surface.Len() != 1 {
		t.Fatalf("annotations lost on rotate")
	}
	if err := s.RotateAll(ctx, -90); err != nil {
		t.Fatalf("RotateAll() error = %v", err)
	}
	if p, _ := s.Page(1); p.Rotation != 0 {
		t.Fatalf("rotation after RotateAll = %d", p.Rotation)
	}
}

func TestToolSettingsValidate(t *testing.T) {
	s := loaded(t, 1)
	if err := s.SelectTool("lasso"); err == nil {
		t.Fatalf("SelectTool(lasso) succeeded")
	}
	if err := s.SetColor("not-a-colour"); err == nil {
		t.Fatalf("SetColor() accepted garbage")
	}
	if err := s.SetColor("#3366ff"); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}
	if err := s.SetStrokeWidth(6); err != nil {
		t.Fatalf("SetStrokeWidth() error = %v", err)
	}
	st := s.State()
	if st.StrokeWidth != 6 || st.Color.B != 0xff {
		t.Fatalf("State() = %+v", st)
	}
}

func TestExportRoundTrip(t *testing.T) {
	s := loaded(t, 2)
	draw(t, s, 1)
	if err := s.InsertBlank(2); err != nil {
		t.Fatalf("InsertBlank() error = %v", err)
	}
	out, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	doc, err := pdfsource.Open(ctx, out, pdfsource.WithRasterizer(pdfsource.Paper{}))
	if err != nil {
		t.Fatalf("reopen export: %v", err)
	}
	if doc.NumPages() != 3 {
		t.Fatalf("exported %d pages, want 3", doc.NumPages())
	}

	reopened := New(DefaultConfig(), WithOpener(func(ctx context.Context, data []byte) (render.Document, error) {
		return pdfsource.Open(ctx, data, pdfsource.WithRasterizer(pdfsource.Paper{}))
	}))
	if err := reopened.Load(ctx, "exported.pdf", out); err != nil {
		t.Fatalf("Load(exported) error = %v", err)
	}
	if reopened.PageCount() != 3 {
		t.Fatalf("reloaded %d pages, want 3", reopened.PageCount())
	}
	if _, err := s.Thumbnail(1); err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
}

func TestSearchFindsTextAndAnnotations(t *testing.T) {
	doc := rendertest.New(2)
	doc.Pages[1].Text = []string{"Quarterly totals"}
	s := New(DefaultConfig())
	if err := s.LoadDocument(ctx, "q.pdf", doc); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if err := s.SelectTool("text"); err != nil {
		t.Fatalf("SelectTool() error = %v", err)
	}
	if err := s.PointerDown(ctx, 1, 40, 40); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	p, _ := s.Page(1)
	obj := p.Surface.Objects()[0]
	if err := s.EditText(1, obj.ID, "check totals"); err != nil {
		t.Fatalf("EditText() error = %v", err)
	}
	if err := s.FinishEditing(1); err != nil {
		t.Fatalf("FinishEditing() error = %v", err)
	}
	got, err := s.Search(ctx, "TOTALS")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	var where []search.Source
	for _, m := range got {
		where = append(where, m.Source)
	}
	if diff := cmp.Diff([]search.Source{search.SourceAnnotation, search.SourceTextLayer}, where); diff != "" {
		t.Fatalf("match sources mismatch (-want +got):\n%s", diff)
	}
}

type sink struct{ got share.File }

func (s *sink) CanShare(share.File) bool { return true }
func (s *sink) Share(_ context.Context, f share.File, _ share.Message) error {
	s.got = f
	return nil
}

func TestShareSendsExport(t *testing.T) {
	s := loaded(t, 1)
	target := &sink{}
	res, err := s.Share(ctx, share.New(share.WithTarget(target)))
	if err != nil {
		t.Fatalf("Share() error = %v", err)
	}
	if res.Outcome != share.Shared || target.got.Name != share.DefaultFileName {
		t.Fatalf("Share() = %+v, file %q", res, target.got.Name)
	}
	if !bytes.HasPrefix(target.got.Data, []byte("%PDF")) {
		t.Fatalf("shared data is not a PDF")
	}
}

func TestNotesFollowFileName(t *testing.T) {
	store := notes.NewMemoryStore()
	if err := store.Save(ctx, "report.pdf", "remember page 2"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	s := loaded(t, 1, WithNotes(store))
	nb, err := s.Notes()
	if err != nil {
		t.Fatalf("Notes() error = %v", err)
	}
	if nb.Text() != "remember page 2" {
		t.Fatalf("notes = %q", nb.Text())
	}
	nb.Edit("updated")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got, _ := store.Load(ctx, "report.pdf"); got != "updated" {
		t.Fatalf("stored note = %q", got)
	}

	if _, err := New(DefaultConfig()).Notes(); !errors.Is(err, ErrNoNotes) {
		t.Fatalf("Notes() without store error = %v", err)
	}
}

func TestScriptDrivesSession(t *testing.T) {
	s := loaded(t, 1)
	engine := scripting.NewEngine()
	if err := engine.Bind(s); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	out, err := engine.Execute(ctx, `
		tool("highlighter"); color("#ffee00");
		stroke(1, [[10, 10], [60, 12]]);
		insertBlank(pageCount());
		undo(); redo();
		pageCount();
	`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != int64(2) || objects(t, s, 1) != 1 {
		t.Fatalf("script result %v, %d objects", out, objects(t, s, 1))
	}
}
