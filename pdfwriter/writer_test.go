package pdfwriter

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() { api.DisableConfigDir() }

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestWriteValidDocument(t *testing.T) {
	w := New(Options{Title: "Notes (draft)", Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }})
	if err := w.AddPage(600, 900); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	if err := w.AddImage(encodeJPEG(t, solid(600, 900, color.White)), 0, 0, 600, 900); err != nil {
		t.Fatalf("AddImage(jpeg) error = %v", err)
	}
	if err := w.AddPage(300, 200); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	if err := w.AddImage(encodePNG(t, solid(30, 20, color.NRGBA{R: 255, A: 128})), 10, 10, 30, 20); err != nil {
		t.Fatalf("AddImage(png) error = %v", err)
	}
	out, err := w.Output()
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-1.7\n")) || !bytes.HasSuffix(out, []byte("%%EOF\n")) {
		t.Fatalf("unexpected framing: %q ... %q", out[:12], out[len(out)-8:])
	}
	for _, want := range []string{"/Filter /DCTDecode", "/SMask", `/Title (Notes \(draft\))`, "/CreationDate (D:20260102030405+00'00')"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Fatalf("output missing %q", want)
		}
	}

	ctx, err := api.ReadContext(bytes.NewReader(out), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("ReadContext() error = %v", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		t.Fatalf("ValidateContext() error = %v", err)
	}
	if ctx.PageCount != 2 {
		t.Fatalf("PageCount = %d, want 2", ctx.PageCount)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		t.Fatalf("PageDims() error = %v", err)
	}
	if dims[0].Width != 600 || dims[0].Height != 900 || dims[1].Width != 300 || dims[1].Height != 200 {
		t.Fatalf("unexpected page dims %+v", dims)
	}
}

func TestImagePlacementUsesTopLeftOrigin(t *testing.T) {
	w := New(Options{Deterministic: true})
	w.AddPage(100, 100)
	if err := w.AddImage(encodeJPEG(t, solid(10, 10, color.Black)), 5, 20, 10, 10); err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
	out, _ := w.Output()
	if !bytes.Contains(out, []byte("q 10 0 0 10 5 70 cm /Im1 Do Q")) {
		t.Fatalf("unexpected placement in %s", out)
	}
}

func TestDeterministicOutput(t *testing.T) {
	build := func() []byte {
		w := New(Options{Deterministic: true})
		w.AddPage(50, 50)
		w.AddImage(encodeJPEG(t, solid(5, 5, color.White)), 0, 0, 50, 50)
		out, err := w.Output()
		if err != nil {
			t.Fatalf("Output() error = %v", err)
		}
		return out
	}
	a, b := build(), build()
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic output differs")
	}
	if bytes.Contains(a, []byte("CreationDate")) {
		t.Fatalf("deterministic output carries a date")
	}
}

func TestWriterErrors(t *testing.T) {
	w := New(Options{})
	if err := w.AddImage(nil, 0, 0, 1, 1); !errors.Is(err, ErrNoPage) {
		t.Fatalf("AddImage before AddPage error = %v", err)
	}
	if _, err := w.Output(); !errors.Is(err, ErrNoPage) {
		t.Fatalf("Output() of empty document error = %v", err)
	}
	if err := w.AddPage(0, 10); !errors.Is(err, ErrPageSize) {
		t.Fatalf("AddPage(0) error = %v", err)
	}
	w.AddPage(10, 10)
	if err := w.AddImage([]byte("nope"), 0, 0, 1, 1); err == nil {
		t.Fatalf("expected error for undecodable image")
	}
	if _, err := w.Output(); err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if err := w.AddPage(10, 10); !errors.Is(err, ErrClosed) {
		t.Fatalf("AddPage after Output error = %v", err)
	}
}

func TestEscapeLiteralString(t *testing.T) {
	got := string(escapeLiteralString([]byte("a(b)\\c\n\xe9")))
	if want := `(a\(b\)\\c\n\351)`; got != want {
		t.Fatalf("escapeLiteralString() = %s, want %s", got, want)
	}
	if !strings.HasPrefix(formatNumber(1.5), "1.5") || formatNumber(3) != "3" {
		t.Fatalf("formatNumber mismatch")
	}
}
