package scripting

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/wudi/pdfmark/observability"
)

// GojaEngine is an Engine backed by the goja runtime. It is not safe for
// concurrent Execute calls.
type GojaEngine struct {
	vm  *goja.Runtime
	ctx context.Context
	log observability.Logger
}

// Option configures a GojaEngine.
type Option func(*GojaEngine)

// WithLogger receives the script's log() calls.
func WithLogger(l observability.Logger) Option {
	return func(e *GojaEngine) { e.log = observability.OrNop(l) }
}

func NewEngine(opts ...Option) *GojaEngine {
	e := &GojaEngine{vm: goja.New(), ctx: context.Background(), log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs script. Canceling ctx interrupts it and returns the
// context's error.
func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	e.ctx = ctx
	defer func() { e.ctx = context.Background() }()

	val, err := e.vm.RunString(script)
	if err != nil {
		if interruptedErr, ok := err.(*goja.InterruptedError); ok {
			if cause := interruptedErr.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val.Export(), nil
}

// Bind exposes ed as global functions: tool, color, width, font, down,
// move, up, stroke, insertBlank, rotate, undo, redo, pageCount and log.
// Editor errors are thrown as JavaScript exceptions.
func (e *GojaEngine) Bind(ed Editor) error {
	must := func(err error) {
		if err != nil {
			panic(e.vm.NewGoError(err))
		}
	}
	pointer := func(fn func(context.Context, int, float64, float64) error) func(int, float64, float64) {
		return func(page int, x, y float64) { must(fn(e.ctx, page, x, y)) }
	}
	bindings := map[string]interface{}{
		"tool":  func(name string) { must(ed.SelectTool(name)) },
		"color": func(hex string) { must(ed.SetColor(hex)) },
		"width": func(w float64) { must(ed.SetStrokeWidth(w)) },
		"font":  func(family string) { must(ed.SetFontFamily(family)) },
		"down":  pointer(ed.PointerDown),
		"move":  pointer(ed.PointerMove),
		"up":    pointer(ed.PointerUp),
		"stroke": func(page int, points [][]float64) {
			if len(points) == 0 {
				return
			}
			for i, p := range points {
				if len(p) < 2 {
					must(fmt.Errorf("stroke: point %d needs x and y", i))
				}
				switch i {
				case 0:
					must(ed.PointerDown(e.ctx, page, p[0], p[1]))
				default:
					must(ed.PointerMove(e.ctx, page, p[0], p[1]))
				}
			}
			last := points[len(points)-1]
			must(ed.PointerUp(e.ctx, page, last[0], last[1]))
		},
		"insertBlank": func(after int) { must(ed.InsertBlank(after)) },
		"rotate":      func(page, delta int) { must(ed.Rotate(e.ctx, page, delta)) },
		"undo":        func() { must(ed.Undo()) },
		"redo":        func() { must(ed.Redo()) },
		"pageCount":   ed.PageCount,
		"zoom": func(z float64) float64 {
			must(ed.SetZoom(z))
			return ed.Zoom()
		},
		"columns":     func(n int) { must(ed.SetColumns(n)) },
		"scrollTo":    func(page int) { must(ed.ScrollTo(page)) },
		"currentPage": ed.CurrentPage,
		"log":         func(msg string) { e.log.Info("script", observability.String("message", msg)) },
	}
	for name, fn := range bindings {
		if err := e.vm.Set(name, fn); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}
