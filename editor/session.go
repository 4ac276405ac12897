// Package editor wires the page collection, annotation history, tool
// controller and export engine into one editing session. Every public
// method is serialized by the session's mutex.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/wudi/pdfmark/export"
	"github.com/wudi/pdfmark/history"
	"github.com/wudi/pdfmark/notes"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/pages"
	"github.com/wudi/pdfmark/pdfsource"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/search"
	"github.com/wudi/pdfmark/share"
	"github.com/wudi/pdfmark/surface"
	"github.com/wudi/pdfmark/tools"
	"github.com/wudi/pdfmark/view"
)

// LoadError reports a document that could not be opened or rendered.
type LoadError = pages.LoadError

// ErrNotPDF is wrapped by a LoadError for input that is not a PDF.
var ErrNotPDF = pdfsource.ErrNotPDF

// Opener turns PDF bytes into a rendering collaborator.
type Opener func(ctx context.Context, data []byte) (render.Document, error)

// Option configures a Session beyond its Config.
type Option func(*Session)

// WithOpener replaces the pdfsource-backed opener.
func WithOpener(o Opener) Option { return func(s *Session) { s.open = o } }

// WithImagePicker supplies files for the image tool.
func WithImagePicker(p tools.ImagePicker) Option {
	return func(s *Session) { s.picker = p }
}

// WithIndexer replaces the search indexer (for example to enable OCR).
func WithIndexer(x *search.Indexer) Option { return func(s *Session) { s.indexer = x } }

// WithNotes keeps per-file notes in store.
func WithNotes(store notes.Store) Option {
	return func(s *Session) { s.notesStore = store }
}

// Session is one editing session over at most one loaded document.
type Session struct {
	cfg Config
	log observability.Logger

	mu         sync.Mutex
	fileName   string
	pages      *pages.Collection
	hist       *history.Manager
	ctrl       *tools.Controller
	exporter   *export.Engine
	indexer    *search.Indexer
	notebook   *notes.Notebook
	notesStore notes.Store
	picker     tools.ImagePicker
	open       Opener

	zoom      view.Zoom
	columns   int
	viewport  view.Size
	scrollTop float64
}

// New returns an empty session.
func New(cfg Config, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:      cfg,
		log:      cfg.Logger,
		zoom:     view.Zoom(cfg.Zoom).Step(0),
		columns:  cfg.Columns,
		viewport: cfg.Viewport,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.open == nil {
		s.open = func(ctx context.Context, data []byte) (render.Document, error) {
			doc, err := pdfsource.Open(ctx, data, pdfsource.WithLogger(cfg.Logger))
			if err != nil {
				return nil, err
			}
			return doc, nil
		}
	}
	if s.indexer == nil {
		s.indexer = search.NewIndexer(search.WithLogger(cfg.Logger), search.WithTracer(cfg.Tracer))
	}
	if s.notesStore != nil {
		s.notebook = notes.NewNotebook(s.notesStore, notes.WithLogger(cfg.Logger))
	}

	s.pages = pages.New(
		pages.WithRenderScale(cfg.RenderScale),
		pages.WithDefaultSize(cfg.DefaultPageSize),
		pages.WithLogger(cfg.Logger),
		pages.WithTracer(cfg.Tracer),
	)
	s.hist = history.New(
		history.WithLimit(cfg.HistoryLimit),
		history.WithLogger(cfg.Logger),
		history.WithPageNumbers(func(id history.PageID) int {
			if p, ok := s.pages.ByID(pages.ID(id)); ok {
				return p.Number
			}
			return 0
		}),
	)
	s.pages.OnChange(s.pageChanged)

	ctrlOpts := []tools.Option{tools.WithRecorder(recorder{s}), tools.WithLogger(cfg.Logger)}
	if s.picker != nil {
		ctrlOpts = append(ctrlOpts, tools.WithImagePicker(s.picker))
	}
	s.ctrl = tools.NewController(target{s}, ctrlOpts...)
	s.exporter = export.NewEngine(
		export.WithLogger(cfg.Logger),
		export.WithTracer(cfg.Tracer),
	)
	return s
}

// pageChanged keeps history subscriptions in step with the collection.
func (s *Session) pageChanged(ev pages.Event) {
	switch ev.Kind {
	case pages.EventLoaded:
		for _, p := range ev.Removed {
			s.hist.Untrack(history.PageID(p.ID))
		}
		s.hist.Reset()
		for _, p := range s.pages.Pages() {
			s.hist.Track(history.PageID(p.ID), p.Surface)
		}
	case pages.EventInserted:
		s.hist.Track(history.PageID(ev.Page.ID), ev.Page.Surface)
	case pages.EventRemoved:
		s.hist.Untrack(history.PageID(ev.Page.ID))
	}
}

type target struct{ s *Session }

func (t target) Len() int { return t.s.pages.Len() }

func (t target) Surface(n int) (*surface.Surface, error) {
	p, err := t.s.pages.Page(n)
	if err != nil {
		return nil, err
	}
	return p.Surface, nil
}

type recorder struct{ s *Session }

func (r recorder) Begin(n int) error {
	p, err := r.s.pages.Page(n)
	if err != nil {
		return err
	}
	return r.s.hist.Begin(history.PageID(p.ID))
}

func (r recorder) Cancel(n int) {
	if p, err := r.s.pages.Page(n); err == nil {
		r.s.hist.Cancel(history.PageID(p.ID))
	}
}

// Load opens PDF bytes under fileName. Input that does not sniff as
// application/pdf is rejected before the renderer sees it. On failure the
// previous document stays loaded.
func (s *Session) Load(ctx context.Context, fileName string, data []byte) error {
	if ct := pdfsource.Sniff(data); ct != pdfsource.MIMEType {
		s.log.Warn("rejected input", observability.String("file", fileName), observability.String("type", ct))
		return &LoadError{Err: fmt.Errorf("%w: detected %s", ErrNotPDF, ct)}
	}
	doc, err := s.open(ctx, data)
	if err != nil {
		return &LoadError{Err: err}
	}
	return s.LoadDocument(ctx, fileName, doc)
}

// LoadDocument replaces the session's pages with those of doc.
func (s *Session) LoadDocument(ctx context.Context, fileName string, doc render.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pages.Load(ctx, doc); err != nil {
		return err
	}
	s.fileName = fileName
	s.scrollTop = 0
	s.ctrl.Select(tools.ToolSelect)
	if s.notebook != nil {
		if _, err := s.notebook.Open(ctx, fileName); err != nil {
			s.log.Warn("notes unavailable", observability.Error("error", err))
		}
	}
	return nil
}

// FileName returns the name the current document was loaded under.
func (s *Session) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// PageCount returns the number of pages.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.Len()
}

// Page returns page n.
func (s *Session) Page(n int) (*pages.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.Page(n)
}

// Pages returns the pages in order.
func (s *Session) Pages() []*pages.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.Pages()
}

// InsertBlank inserts a blank page after page afterIndex (0 for first).
func (s *Session) InsertBlank(afterIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
	_, err := s.pages.InsertBlank(afterIndex)
	return err
}

// Rotate turns page n by delta degrees.
func (s *Session) Rotate(ctx context.Context, n, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
	return s.pages.Rotate(ctx, n, delta)
}

// RotateAll turns every page by delta degrees.
func (s *Session) RotateAll(ctx context.Context, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
	return s.pages.RotateAll(ctx, delta)
}

// RemovePage deletes page n and its history.
func (s *Session) RemovePage(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
	return s.pages.Remove(n)
}

// State returns the tool state.
func (s *Session) State() tools.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

// SelectTool switches to the named tool.
func (s *Session) SelectTool(name string) error {
	t, err := tools.ParseTool(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Select(t)
	return nil
}

// SetColor sets the ink colour from a #rrggbb string.
func (s *Session) SetColor(hex string) error {
	c, err := surface.ParseColor(hex)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.SetColor(c)
	return nil
}

func (s *Session) SetStrokeWidth(width float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.SetStrokeWidth(width)
}

func (s *Session) SetFontFamily(family string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.SetFontFamily(family)
}

// PointerDown presses at x, y in the pixels of page.
func (s *Session) PointerDown(ctx context.Context, page int, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.PointerDown(ctx, pointer(page, x, y))
}

func (s *Session) PointerMove(ctx context.Context, page int, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.PointerMove(ctx, pointer(page, x, y))
}

func (s *Session) PointerUp(ctx context.Context, page int, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.PointerUp(ctx, pointer(page, x, y))
}

func pointer(page int, x, y float64) tools.PointerEvent {
	return tools.PointerEvent{Page: page, Point: surface.Point{X: x, Y: y}}
}

// DeleteSelected removes the selected object on every page.
func (s *Session) DeleteSelected() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.DeleteSelected()
}

// EditText replaces the content of a text object.
func (s *Session) EditText(page int, id surface.ID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.EditText(page, id, text)
}

// FinishEditing leaves text editing on page.
func (s *Session) FinishEditing(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.FinishEditing(page)
}

// History.

// Undo reverts the most recent change. A gesture in progress is abandoned
// first. It is a no-op when nothing can be undone.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
	_, _, err := s.hist.Undo()
	return err
}

// Redo re-applies the most recently undone change.
func (s *Session) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
	_, _, err := s.hist.Redo()
	return err
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanRedo()
}

// Output.

// Export flattens every page into a new PDF.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exporter.Export(ctx, s.pages)
}

// Share exports and hands the document to sharer.
func (s *Session) Share(ctx context.Context, sharer *share.Sharer) (share.Result, error) {
	data, err := s.Export(ctx)
	if err != nil {
		return share.Result{}, err
	}
	return sharer.Share(ctx, share.NewFile(data))
}

// Thumbnail renders a small composited preview of page n.
func (s *Session) Thumbnail(n int) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pages.Page(n)
	if err != nil {
		return nil, err
	}
	return export.Thumbnail(p, export.ThumbnailScale)
}

// Search finds query in page text and text annotations.
func (s *Session) Search(ctx context.Context, query string) ([]search.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.indexer.Index(ctx, s.pages)
	if err != nil {
		return nil, err
	}
	return idx.Find(query), nil
}

// ErrNoNotes is returned by note operations on a session without a store.
var ErrNoNotes = errors.New("notes are not enabled")

// Notes returns the current document's notebook.
func (s *Session) Notes() (*notes.Notebook, error) {
	if s.notebook == nil {
		return nil, ErrNoNotes
	}
	return s.notebook, nil
}

// Close flushes pending notes.
func (s *Session) Close(ctx context.Context) error {
	if s.notebook == nil {
		return nil
	}
	return s.notebook.Flush(ctx)
}
