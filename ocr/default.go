package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultEngine Engine = noopEngine{}
)

// DefaultEngine returns the registered default engine. Importing the
// tesseract subpackage registers it; otherwise recognition finds nothing.
func DefaultEngine() Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefaultEngine replaces the default engine.
func SetDefaultEngine(engine Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if engine == nil {
		engine = noopEngine{}
	}
	defaultEngine = engine
}

// PageImage is one rendered page to recognize.
type PageImage struct {
	Page  int
	Image image.Image
}

// RecognizePages encodes each page image and runs engine over them,
// in batch when the engine supports it.
func RecognizePages(ctx context.Context, engine Engine, pages []PageImage, opts ...InputOption) ([]Result, error) {
	inputs := make([]Input, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := InputFromImage(p.Page, p.Image, opts...)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Recognize(_ context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID, Page: input.Page}, nil
}
