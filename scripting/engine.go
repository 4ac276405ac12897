// Package scripting runs JavaScript against an editing session so
// annotation work can be automated from the command line.
package scripting

import "context"

// Editor is the session surface exposed to scripts. Page numbers are
// 1-based; coordinates are page pixels.
type Editor interface {
	SelectTool(name string) error
	SetColor(hex string) error
	SetStrokeWidth(width float64) error
	SetFontFamily(family string) error
	PointerDown(ctx context.Context, page int, x, y float64) error
	PointerMove(ctx context.Context, page int, x, y float64) error
	PointerUp(ctx context.Context, page int, x, y float64) error
	InsertBlank(afterIndex int) error
	Rotate(ctx context.Context, page, delta int) error
	Undo() error
	Redo() error
	PageCount() int
	Zoom() float64
	SetZoom(z float64) error
	SetColumns(n int) error
	ScrollTo(page int) error
	CurrentPage() int
}

// Engine executes scripts.
type Engine interface {
	Execute(ctx context.Context, script string) (interface{}, error)
	Bind(ed Editor) error
}
