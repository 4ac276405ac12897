package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/wudi/pdfmark/editor"
	"github.com/wudi/pdfmark/notes"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/ocr"
	_ "github.com/wudi/pdfmark/ocr/tesseract"
	"github.com/wudi/pdfmark/scripting"
	"github.com/wudi/pdfmark/search"
	"github.com/wudi/pdfmark/share"
	"github.com/wudi/pdfmark/view"
)

type options struct {
	pdfPath    string
	scriptPath string
	query      string
	outPath    string
	thumbDir   string
	share      bool
	shareCmd   []string
	notesDir   string
	note       string
	notesHTML  bool
	ocr        bool
	languages  []string
	rotate     int
	scale      float64
	verbose    bool
	layout     bool
	columns    int
	zoom       float64
	viewport   view.Size
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfmark: %v\n", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfmark: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfmark [flags] <pdf>\n")
		fs.PrintDefaults()
	}
	script := fs.String("script", "", "JavaScript file to run against the loaded document")
	query := fs.String("search", "", "Print matches of a case-insensitive query")
	out := fs.String("out", "", "Write the flattened PDF to this path")
	thumbs := fs.String("thumbs", "", "Directory for PNG page thumbnails")
	shareFlag := fs.Bool("share", false, "Share the flattened PDF, offering a download when sharing fails")
	shareCmd := fs.String("share-cmd", "", "Command used to share; the file path is appended")
	notesDir := fs.String("notes-dir", "", "Directory holding per-document notes")
	note := fs.String("note", "", "Replace the document's note")
	notesHTML := fs.Bool("notes-html", false, "Print the note rendered as HTML")
	ocrFlag := fs.Bool("ocr", false, "Recognize pages without a text layer when searching")
	langs := fs.String("lang", "eng", "Comma-separated OCR languages")
	rotate := fs.Int("rotate", 0, "Rotate every page by a multiple of 90 degrees")
	scale := fs.Float64("scale", editor.DefaultConfig().RenderScale, "Render scale relative to PDF points")
	verbose := fs.Bool("v", false, "Log debug output")
	layout := fs.Bool("layout", false, "Print where each page is placed in the viewport")
	columns := fs.Int("columns", 1, "Number of page columns in the layout")
	zoom := fs.Float64("zoom", 1, "Single-column zoom (0.2-5.0)")
	viewport := fs.String("viewport", "1280x800", "Viewport size as WIDTHxHEIGHT pixels")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	if *rotate%90 != 0 {
		return options{}, fmt.Errorf("rotate %d is not a multiple of 90", *rotate)
	}
	if *columns < 1 {
		return options{}, fmt.Errorf("columns %d must be at least 1", *columns)
	}
	vp, err := parseSize(*viewport)
	if err != nil {
		return options{}, err
	}
	if (*note != "" || *notesHTML) && *notesDir == "" {
		return options{}, fmt.Errorf("-note and -notes-html need -notes-dir")
	}
	opts = options{
		pdfPath:    fs.Arg(0),
		scriptPath: *script,
		query:      *query,
		outPath:    *out,
		thumbDir:   *thumbs,
		share:      *shareFlag,
		shareCmd:   strings.Fields(*shareCmd),
		notesDir:   *notesDir,
		note:       *note,
		notesHTML:  *notesHTML,
		ocr:        *ocrFlag,
		rotate:     *rotate,
		scale:      *scale,
		verbose:    *verbose,
		layout:     *layout,
		columns:    *columns,
		zoom:       *zoom,
		viewport:   vp,
	}
	for _, l := range strings.Split(*langs, ",") {
		if l = strings.TrimSpace(l); l != "" {
			opts.languages = append(opts.languages, l)
		}
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := editor.DefaultConfig()
	cfg.RenderScale = opts.scale
	cfg.Columns = opts.columns
	cfg.Zoom = opts.zoom
	cfg.Viewport = opts.viewport
	cfg.Logger = log

	indexerOpts := []search.Option{search.WithLogger(log)}
	if opts.ocr {
		indexerOpts = append(indexerOpts, search.WithOCR(ocr.DefaultEngine(), ocr.WithLanguages(opts.languages...)))
	}
	sessionOpts := []editor.Option{editor.WithIndexer(search.NewIndexer(indexerOpts...))}
	if opts.notesDir != "" {
		store, err := notes.NewFileStore(opts.notesDir)
		if err != nil {
			return err
		}
		sessionOpts = append(sessionOpts, editor.WithNotes(store))
	}
	s := editor.New(cfg, sessionOpts...)
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			log.Error("save notes", observability.Error("error", err))
		}
	}()

	data, err := os.ReadFile(opts.pdfPath)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	if err := s.Load(ctx, filepath.Base(opts.pdfPath), data); err != nil {
		return err
	}

	if opts.rotate != 0 {
		if err := s.RotateAll(ctx, opts.rotate); err != nil {
			return err
		}
	}

	if opts.scriptPath != "" {
		if err := runScript(ctx, s, opts.scriptPath, log); err != nil {
			return err
		}
	}

	if opts.query != "" {
		matches, err := s.Search(ctx, opts.query)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if err := emitSection("matches", summarizeMatches(matches)); err != nil {
			return err
		}
	}

	if opts.notesDir != "" {
		if err := handleNotes(s, opts); err != nil {
			return err
		}
	}

	if opts.layout {
		summary, err := summarizeLayout(s)
		if err != nil {
			return err
		}
		if err := emitSection("layout", summary); err != nil {
			return err
		}
	}

	if opts.thumbDir != "" {
		paths, err := writeThumbnails(s, opts.thumbDir)
		if err != nil {
			return err
		}
		if err := emitSection("thumbnails", paths); err != nil {
			return err
		}
	}

	if opts.outPath != "" {
		out, err := s.Export(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.outPath, out, 0o644); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info("saved", observability.String("path", opts.outPath), observability.Int("pages", s.PageCount()))
	}

	if opts.share {
		sharer := share.New(
			share.WithTarget(shareTarget(opts.shareCmd)),
			share.WithDownloader(share.DirDownloader{Dir: filepath.Dir(opts.pdfPath)}),
			share.WithConfirm(confirmer(os.Stdin, os.Stderr)),
			share.WithLogger(log),
		)
		res, err := s.Share(ctx, sharer)
		if err != nil {
			return fmt.Errorf("share: %w", err)
		}
		if err := emitSection("share", shareSummary{Outcome: res.Outcome.String(), Path: res.Path}); err != nil {
			return err
		}
	}
	return nil
}

func runScript(ctx context.Context, s *editor.Session, path string, log observability.Logger) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	engine := scripting.NewEngine(scripting.WithLogger(log))
	if err := engine.Bind(s); err != nil {
		return err
	}
	result, err := engine.Execute(ctx, string(src))
	if err != nil {
		return fmt.Errorf("script %s: %w", filepath.Base(path), err)
	}
	if result != nil {
		return emitSection("script", result)
	}
	return nil
}

func handleNotes(s *editor.Session, opts options) error {
	nb, err := s.Notes()
	if err != nil {
		return err
	}
	if opts.note != "" {
		nb.Edit(opts.note)
	}
	text := nb.Text()
	if opts.notesHTML {
		html, err := notes.RenderHTML(text)
		if err != nil {
			return fmt.Errorf("render notes: %w", err)
		}
		fmt.Printf("== notes ==\n%s\n", html)
		return nil
	}
	plain, err := notes.PlainText(text)
	if err != nil {
		return fmt.Errorf("render notes: %w", err)
	}
	fmt.Printf("== notes ==\n%s\n\n", plain)
	return nil
}

type layoutSummary struct {
	Columns int         `json:"columns"`
	Zoom    int         `json:"zoomPercent"`
	Pages   []pagePlace `json:"pages"`
}

type pagePlace struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

func summarizeLayout(s *editor.Session) (layoutSummary, error) {
	rects, err := s.Layout()
	if err != nil {
		return layoutSummary{}, fmt.Errorf("layout: %w", err)
	}
	out := layoutSummary{
		Columns: s.Columns(),
		Zoom:    view.Zoom(s.Zoom()).Percent(),
		Pages:   make([]pagePlace, 0, len(rects)),
	}
	for i, r := range rects {
		out.Pages = append(out.Pages, pagePlace{Page: i + 1, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Scale: r.Scale})
	}
	return out, nil
}

func parseSize(v string) (view.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(v), "x")
	if ok {
		width, werr := strconv.ParseFloat(strings.TrimSpace(w), 64)
		height, herr := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if werr == nil && herr == nil && width > 0 && height > 0 {
			return view.Size{Width: width, Height: height}, nil
		}
	}
	return view.Size{}, fmt.Errorf("viewport %q is not WIDTHxHEIGHT", v)
}

type shareSummary struct {
	Outcome string `json:"outcome"`
	Path    string `json:"path,omitempty"`
}

type matchSummary struct {
	Page    int    `json:"page"`
	Source  string `json:"source"`
	Offset  int    `json:"offset"`
	Text    string `json:"text"`
	Context string `json:"context"`
}

func summarizeMatches(matches []search.Match) []matchSummary {
	out := make([]matchSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchSummary{
			Page:    m.Page,
			Source:  m.Source.String(),
			Offset:  m.Offset,
			Text:    m.Text,
			Context: m.Context,
		})
	}
	return out
}

func writeThumbnails(s *editor.Session, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	n := s.PageCount()
	paths := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		img, err := s.Thumbnail(i)
		if err != nil {
			return nil, fmt.Errorf("thumbnail page %d: %w", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("page-%03d.png", i))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("write thumbnail %q: %w", path, err)
		}
		err = png.Encode(f, img)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("write thumbnail %q: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func shareTarget(args []string) share.Target {
	if len(args) == 0 {
		return nil
	}
	return share.Command{Name: args[0], Args: args[1:]}
}

// confirmer asks on out and reads a y/n answer from in. Without a terminal
// every prompt is declined.
func confirmer(in *os.File, out io.Writer) func(string) bool {
	return func(prompt string) bool {
		if !term.IsTerminal(int(in.Fd())) {
			return false
		}
		return ask(in, out, prompt)
	}
}

func ask(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func emitSection(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	fmt.Printf("== %s ==\n%s\n\n", name, data)
	return nil
}
