// Package search finds text across the pages of a collection. Page text
// comes from the source text layer, falls back to OCR for source pages that
// have none, and includes the content of text annotations.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/ocr"
	"github.com/wudi/pdfmark/pages"
	"github.com/wudi/pdfmark/surface"
)

// Source tells where a piece of page text came from.
type Source int

const (
	SourceTextLayer Source = iota + 1
	SourceOCR
	SourceAnnotation
)

func (s Source) String() string {
	switch s {
	case SourceTextLayer:
		return "text"
	case SourceOCR:
		return "ocr"
	case SourceAnnotation:
		return "annotation"
	}
	return "unknown"
}

// contextRunes is the number of runes of context kept on each side of a
// match.
const contextRunes = 30

// Match is one occurrence of the query.
type Match struct {
	Page   int
	Source Source
	// Offset is the byte offset of the match in the page text of Source.
	Offset  int
	Text    string
	Context string
}

// PageText is the searchable text of one page from one source.
type PageText struct {
	Page   int
	Source Source
	Text   string
}

// Indexer collects page text from a collection.
type Indexer struct {
	engine ocr.Engine
	opts   []ocr.InputOption
	log    observability.Logger
	tracer observability.Tracer
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithOCR enables recognition of source pages without a text layer.
func WithOCR(engine ocr.Engine, opts ...ocr.InputOption) Option {
	return func(x *Indexer) {
		x.engine = engine
		x.opts = opts
	}
}

func WithLogger(l observability.Logger) Option {
	return func(x *Indexer) { x.log = observability.OrNop(l) }
}

func WithTracer(t observability.Tracer) Option {
	return func(x *Indexer) {
		if t != nil {
			x.tracer = t
		}
	}
}

func NewIndexer(opts ...Option) *Indexer {
	x := &Indexer{log: observability.NopLogger{}, tracer: observability.NopTracer()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Index extracts the text of every page in c. Text-layer failures on a page
// are logged and leave that page to OCR.
func (x *Indexer) Index(ctx context.Context, c *pages.Collection) (_ *Index, err error) {
	ctx, span := x.tracer.StartSpan(ctx, observability.SpanSearch)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	span.SetTag("pages", c.Len())

	var texts []PageText
	var scanned []ocr.PageImage
	doc := c.Document()
	for _, p := range c.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Origin == pages.OriginSource && doc != nil {
			text := ""
			h, err := doc.Page(ctx, p.SourceIndex)
			if err == nil {
				tc, terr := h.TextContent(ctx)
				err = terr
				text = tc.String()
			}
			if err != nil {
				x.log.Warn("text layer unavailable", observability.Page(p.Number), observability.Error("error", err))
			}
			if strings.TrimSpace(text) != "" {
				texts = append(texts, PageText{Page: p.Number, Source: SourceTextLayer, Text: text})
			} else if x.engine != nil && p.Raster != nil {
				scanned = append(scanned, ocr.PageImage{Page: p.Number, Image: p.Raster})
			}
		}
		if t := annotationText(p.Surface); t != "" {
			texts = append(texts, PageText{Page: p.Number, Source: SourceAnnotation, Text: t})
		}
	}
	if len(scanned) > 0 {
		results, err := ocr.RecognizePages(ctx, x.engine, scanned, x.opts...)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.PlainText != "" {
				texts = append(texts, PageText{Page: r.Page, Source: SourceOCR, Text: r.PlainText})
			}
		}
		x.log.Info("ocr finished", observability.Int("pages", len(scanned)), observability.String("engine", x.engine.Name()))
	}
	return NewIndex(texts), nil
}

func annotationText(s *surface.Surface) string {
	if s == nil {
		return ""
	}
	var parts []string
	for _, o := range s.Objects() {
		if o.Kind == surface.KindText && o.Text != "" {
			parts = append(parts, o.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Index answers case-insensitive queries over page text.
type Index struct {
	entries []entry
}

type entry struct {
	PageText
	folded string
	// offsets maps each byte of folded to the byte offset in Text it came
	// from; it has one extra element for the end of the text.
	offsets []int
}

// NewIndex builds an index over texts.
func NewIndex(texts []PageText) *Index {
	idx := &Index{}
	for _, t := range texts {
		t.Text = norm.NFC.String(t.Text)
		folded, offsets := fold(t.Text)
		idx.entries = append(idx.entries, entry{PageText: t, folded: folded, offsets: offsets})
	}
	sort.SliceStable(idx.entries, func(i, j int) bool { return idx.entries[i].Page < idx.entries[j].Page })
	return idx
}

// Pages returns the indexed page texts in page order.
func (idx *Index) Pages() []PageText {
	out := make([]PageText, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.PageText
	}
	return out
}

func fold(s string) (string, []int) {
	caser := cases.Fold()
	var b strings.Builder
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		f := caser.String(string(r))
		b.WriteString(f)
		for range len(f) {
			offsets = append(offsets, i)
		}
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}

// Find returns every occurrence of query ordered by page, then source, then
// offset. An empty query matches nothing.
func (idx *Index) Find(query string) []Match {
	q, _ := fold(norm.NFC.String(strings.TrimSpace(query)))
	if q == "" {
		return nil
	}
	var out []Match
	for _, e := range idx.entries {
		for from := 0; from <= len(e.folded)-len(q); {
			i := strings.Index(e.folded[from:], q)
			if i < 0 {
				break
			}
			start := e.offsets[from+i]
			end := e.offsets[from+i+len(q)]
			out = append(out, Match{
				Page:    e.Page,
				Source:  e.Source,
				Offset:  start,
				Text:    e.Text[start:end],
				Context: snippet(e.Text, start, end),
			})
			from += i + len(q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

func snippet(s string, start, end int) string {
	lo := start
	for n := 0; n < contextRunes && lo > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(s[:lo])
		lo -= size
	}
	hi := end
	for n := 0; n < contextRunes && hi < len(s); n++ {
		_, size := utf8.DecodeRuneInString(s[hi:])
		hi += size
	}
	return strings.Join(strings.Fields(s[lo:hi]), " ")
}
