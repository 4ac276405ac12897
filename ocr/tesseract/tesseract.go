// Package tesseract registers a gosseract-backed ocr.Engine as the default.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/pdfmark/ocr"
)

func init() {
	ocr.SetDefaultEngine(New())
}

// Engine implements ocr.BatchEngine on top of libtesseract.
type Engine struct {
	newClient func() *gosseract.Client
	languages []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages sets the languages used when an input carries none.
func WithLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

// New constructs a tesseract engine.
func New(opts ...Option) *Engine {
	e := &Engine{newClient: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs OCR on a single page image.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.newClient()
	defer c.Close()
	return e.recognize(ctx, c, in)
}

// RecognizeBatch processes inputs sequentially on one client.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	c := e.newClient()
	defer c.Close()
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.recognize(ctx, c, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recognize(ctx context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	data, err := crop(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := in.Languages
	if len(langs) == 0 {
		langs = e.languages
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	res := ocr.Result{
		InputID:   in.ID,
		Page:      in.Page,
		PlainText: strings.TrimSpace(text),
		Lines:     lines(c),
	}
	if len(langs) > 0 {
		res.Language = langs[0]
	}
	return res, nil
}

// lines groups word boxes under the text-line box containing their centre.
func lines(c *gosseract.Client) []ocr.TextLine {
	lineBoxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(lineBoxes) == 0 {
		return nil
	}
	out := make([]ocr.TextLine, len(lineBoxes))
	for i, b := range lineBoxes {
		out[i] = ocr.TextLine{
			Text:       strings.TrimSpace(b.Word),
			Bounds:     region(b.Box),
			Confidence: b.Confidence / 100,
		}
	}
	wordBoxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return out
	}
	for _, w := range wordBoxes {
		centre := image.Pt((w.Box.Min.X+w.Box.Max.X)/2, (w.Box.Min.Y+w.Box.Max.Y)/2)
		for i, l := range lineBoxes {
			if centre.In(l.Box) {
				out[i].Words = append(out[i].Words, ocr.TextWord{
					Text:       w.Word,
					Bounds:     region(w.Box),
					Confidence: w.Confidence / 100,
				})
				break
			}
		}
	}
	return out
}

func region(r image.Rectangle) ocr.Region {
	return ocr.Region{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
}

func crop(data []byte, r *ocr.Region) ([]byte, error) {
	if r == nil || r.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
