// Package pdfwriter assembles image-only PDF documents: one page per
// AddPage call, each carrying the images placed on it. Page geometry is in
// PDF user units with a top-left origin for AddImage; one pixel of the
// editor maps to one unit.
package pdfwriter

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"
)

// Version is the header version written.
const Version = "1.7"

var (
	ErrNoPage   = errors.New("no page to draw on")
	ErrPageSize = errors.New("page size must be positive")
	ErrClosed   = errors.New("document already written")
)

// Options control document metadata.
type Options struct {
	Title    string
	Producer string
	// Deterministic omits the creation date and derives the file ID from
	// the content, so identical input produces identical bytes.
	Deterministic bool
	// Now overrides the clock used for CreationDate.
	Now func() time.Time
}

type page struct {
	width, height float64
	content       bytes.Buffer
	images        []Ref
}

// Writer builds a document in memory.
type Writer struct {
	opts    Options
	objects []any // index i holds object number i+1
	pages   []*page
	done    bool
}

// New returns an empty document writer.
func New(opts Options) *Writer {
	if opts.Producer == "" {
		opts.Producer = "pdfmark"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Writer{opts: opts}
	// Catalog and page tree take the first two object numbers.
	w.alloc(nil)
	w.alloc(nil)
	return w
}

func (w *Writer) alloc(obj any) Ref {
	w.objects = append(w.objects, obj)
	return Ref(len(w.objects))
}

// PageCount returns the number of pages added so far.
func (w *Writer) PageCount() int { return len(w.pages) }

// AddPage starts a new page of the given size.
func (w *Writer) AddPage(width, height float64) error {
	if w.done {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("add page %vx%v: %w", width, height, ErrPageSize)
	}
	w.pages = append(w.pages, &page{width: width, height: height})
	return nil
}

// AddImage draws an encoded image (JPEG embedded directly, other formats
// re-encoded) on the current page with its top-left corner at (x, y).
func (w *Writer) AddImage(data []byte, x, y, width, height float64) error {
	if w.done {
		return ErrClosed
	}
	if len(w.pages) == 0 {
		return ErrNoPage
	}
	img, err := imageXObject(data, func(s *Stream) Ref { return w.alloc(s) })
	if err != nil {
		return fmt.Errorf("add image: %w", err)
	}
	p := w.pages[len(w.pages)-1]
	ref := w.alloc(img)
	p.images = append(p.images, ref)
	fmt.Fprintf(&p.content, "q %s 0 0 %s %s %s cm /Im%d Do Q\n",
		formatNumber(width), formatNumber(height), formatNumber(x), formatNumber(p.height-y-height), len(p.images))
	return nil
}

// Output serializes the document. The writer cannot be used afterwards.
func (w *Writer) Output() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo serializes the document to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	if w.done {
		return 0, ErrClosed
	}
	if len(w.pages) == 0 {
		return 0, ErrNoPage
	}
	w.done = true

	const catalogRef, pagesRef = Ref(1), Ref(2)
	kids := make([]any, 0, len(w.pages))
	for _, p := range w.pages {
		contents := w.alloc(&Stream{Dict: Dict{}, Data: p.content.Bytes()})
		xobjects := Dict{}
		for i, ref := range p.images {
			xobjects[fmt.Sprintf("Im%d", i+1)] = ref
		}
		kids = append(kids, w.alloc(Dict{
			"Type":      Name("Page"),
			"Parent":    pagesRef,
			"MediaBox":  []any{0, 0, p.width, p.height},
			"Resources": Dict{"XObject": xobjects, "ProcSet": []any{Name("PDF"), Name("ImageC")}},
			"Contents":  contents,
		}))
	}
	w.objects[pagesRef-1] = Dict{"Type": Name("Pages"), "Count": len(kids), "Kids": kids}
	w.objects[catalogRef-1] = Dict{"Type": Name("Catalog"), "Pages": pagesRef}

	info := Dict{"Producer": Str(w.opts.Producer)}
	if w.opts.Title != "" {
		info["Title"] = Str(w.opts.Title)
	}
	if !w.opts.Deterministic {
		info["CreationDate"] = Str(pdfDate(w.opts.Now()))
	}
	infoRef := w.alloc(info)

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + Version + "\n%\xE2\xE3\xCF\xD3\n")
	offsets := make([]int, len(w.objects))
	for i, obj := range w.objects {
		offsets[i] = buf.Len()
		serializeObject(&buf, i+1, obj)
	}

	id := fileID(buf.Bytes(), w.opts)
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(w.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<</Size %d /Root %d 0 R /Info %d 0 R /ID [<%x> <%x>]>>\n",
		len(w.objects)+1, int(catalogRef), int(infoRef), id, id)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	n, err := out.Write(buf.Bytes())
	return int64(n), err
}

func fileID(body []byte, opts Options) []byte {
	h := sha256.New()
	h.Write(body)
	if !opts.Deterministic {
		h.Write([]byte(opts.Now().Format(time.RFC3339Nano)))
	}
	return h.Sum(nil)[:16]
}

func pdfDate(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("D:%s%c%02d'%02d'", t.Format("20060102150405"), sign, offset/3600, (offset%3600)/60)
}
