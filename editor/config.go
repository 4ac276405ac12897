package editor

import (
	"image"

	"github.com/wudi/pdfmark/history"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/pages"
	"github.com/wudi/pdfmark/view"
)

// Config holds the session's tunables.
type Config struct {
	// RenderScale is the raster resolution relative to PDF points.
	RenderScale float64
	// HistoryLimit bounds the undo stack.
	HistoryLimit int
	// DefaultPageSize sizes a blank page inserted into an empty session.
	DefaultPageSize image.Point
	// Columns and Zoom are the initial page grid.
	Columns int
	Zoom    float64
	// Viewport is the size of the visible area pages are laid out in.
	Viewport view.Size

	Logger observability.Logger
	Tracer observability.Tracer
}

// DefaultConfig returns the standard editor settings.
func DefaultConfig() Config {
	return Config{
		RenderScale:     pages.DefaultRenderScale,
		HistoryLimit:    history.DefaultLimit,
		DefaultPageSize: pages.DefaultPageSize,
		Columns:         1,
		Zoom:            1,
		Viewport:        view.Size{Width: 1280, Height: 800},
		Logger:          observability.NopLogger{},
		Tracer:          observability.NopTracer(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RenderScale <= 0 {
		c.RenderScale = d.RenderScale
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.DefaultPageSize.X <= 0 || c.DefaultPageSize.Y <= 0 {
		c.DefaultPageSize = d.DefaultPageSize
	}
	if c.Columns < 1 {
		c.Columns = d.Columns
	}
	if c.Zoom <= 0 {
		c.Zoom = d.Zoom
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = d.Viewport
	}
	c.Logger = observability.OrNop(c.Logger)
	if c.Tracer == nil {
		c.Tracer = d.Tracer
	}
	return c
}
