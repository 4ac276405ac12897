package pdfsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/wudi/pdfmark/observability"
)

// ErrNoRasterizer is returned by command rasterizers whose tool is missing.
var ErrNoRasterizer = errors.New("rasterizer not available")

// Job describes one page to rasterize. Width and Height are the page box in
// points before Rotate is applied.
type Job struct {
	Data          []byte
	Page          int
	DPI           float64
	Width, Height float64
	Rotate        int
}

// Size returns the expected pixel size with Rotate applied.
func (j Job) Size() image.Point {
	w := int(math.Round(j.Width * j.DPI / 72))
	h := int(math.Round(j.Height * j.DPI / 72))
	if j.Rotate == 90 || j.Rotate == 270 {
		w, h = h, w
	}
	return image.Pt(max(1, w), max(1, h))
}

// Rasterizer turns one page into pixels with the page's own /Rotate applied.
type Rasterizer interface {
	Rasterize(ctx context.Context, job Job) (image.Image, error)
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(ctx context.Context, job Job) (image.Image, error)

func (f RasterizerFunc) Rasterize(ctx context.Context, job Job) (image.Image, error) {
	return f(ctx, job)
}

// Paper renders every page as blank white paper of the right size. It is
// the fallback when no external renderer is installed.
type Paper struct{}

func (Paper) Rasterize(ctx context.Context, job Job) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sz := job.Size()
	img := image.NewGray(image.Rect(0, 0, sz.X, sz.Y))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img, nil
}

// Command runs an external renderer that writes one PNG into a temporary
// directory.
type Command struct {
	// Name is the executable looked up on PATH.
	Name string
	// Args builds the argument list for rendering page from in into a PNG
	// whose path is out (poppler appends ".png" itself).
	Args func(job Job, in, out string) []string
	// Output maps out to the file actually produced.
	Output func(out string) string
}

// Poppler renders with pdftoppm.
func Poppler() *Command {
	return &Command{
		Name: "pdftoppm",
		Args: func(job Job, in, out string) []string {
			page := strconv.Itoa(job.Page)
			return []string{
				"-png", "-r", formatDPI(job.DPI),
				"-f", page, "-l", page, "-singlefile",
				in, out,
			}
		},
		Output: func(out string) string { return out + ".png" },
	}
}

// Ghostscript renders with gs.
func Ghostscript() *Command {
	return &Command{
		Name: "gs",
		Args: func(job Job, in, out string) []string {
			page := strconv.Itoa(job.Page)
			return []string{
				"-q", "-dSAFER", "-dBATCH", "-dNOPAUSE",
				"-sDEVICE=png16m", "-r" + formatDPI(job.DPI),
				"-dTextAlphaBits=4", "-dGraphicsAlphaBits=4",
				"-dFirstPage=" + page, "-dLastPage=" + page,
				"-o", out, in,
			}
		},
		Output: func(out string) string { return out },
	}
}

func formatDPI(dpi float64) string { return strconv.FormatFloat(dpi, 'f', 2, 64) }

// Available reports whether the executable is on PATH.
func (c *Command) Available() bool {
	_, err := exec.LookPath(c.Name)
	return err == nil
}

func (c *Command) Rasterize(ctx context.Context, job Job) (image.Image, error) {
	if !c.Available() {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoRasterizer)
	}
	dir, err := os.MkdirTemp("", "pdfmark")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, job.Data, 0o600); err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "page")
	if c.Name == "gs" {
		out += ".png"
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args(job, in, out)...)
	cmd.Dir = dir
	if msg, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", c.Name, err, msg)
	}
	fd, err := os.Open(c.Output(out))
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	img, err := png.Decode(fd)
	if err != nil {
		return nil, fmt.Errorf("%s: decode output: %w", c.Name, err)
	}
	return img, nil
}

var (
	defaultOnce sync.Once
	defaultCmd  *Command
)

// DefaultRasterizer returns the first installed renderer among pdftoppm and
// gs, or Paper when neither is found.
func DefaultRasterizer(log observability.Logger) Rasterizer {
	defaultOnce.Do(func() {
		for _, c := range []*Command{Poppler(), Ghostscript()} {
			if c.Available() {
				defaultCmd = c
				return
			}
		}
	})
	if defaultCmd == nil {
		observability.OrNop(log).Warn("no PDF renderer found, pages render as blank paper")
		return Paper{}
	}
	return defaultCmd
}

// Rotate turns img clockwise by deg, a multiple of 90.
func Rotate(img image.Image, deg int) image.Image {
	deg = ((deg % 360) + 360) % 360
	if deg == 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	dw, dh := w, h
	if deg != 180 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch deg {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}
			si := src.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
