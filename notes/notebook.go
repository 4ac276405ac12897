package notes

import (
	"context"
	"sync"
	"time"

	"github.com/wudi/pdfmark/observability"
)

// SaveDelay is the quiet period after the last edit before a save.
const SaveDelay = 500 * time.Millisecond

// Notebook holds the note of the currently open document and saves edits
// once they have been quiet for the debounce delay.
type Notebook struct {
	store Store
	delay time.Duration
	log   observability.Logger

	mu    sync.Mutex
	name  string
	text  string
	dirty bool
	timer *time.Timer
}

// Option configures a Notebook.
type Option func(*Notebook)

// WithDelay overrides SaveDelay.
func WithDelay(d time.Duration) Option {
	return func(n *Notebook) { n.delay = d }
}

func WithLogger(l observability.Logger) Option {
	return func(n *Notebook) { n.log = observability.OrNop(l) }
}

func NewNotebook(store Store, opts ...Option) *Notebook {
	n := &Notebook{store: store, delay: SaveDelay, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Open flushes any pending edit, then loads the note for name. An empty
// name leaves the notebook empty and edits unsaved.
func (n *Notebook) Open(ctx context.Context, name string) (string, error) {
	if err := n.Flush(ctx); err != nil {
		n.log.Warn("flush before open failed", observability.Error("error", err))
	}
	n.mu.Lock()
	n.name, n.text, n.dirty = name, "", false
	n.mu.Unlock()
	if name == "" {
		return "", nil
	}
	text, err := n.store.Load(ctx, name)
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.name == name && !n.dirty {
		n.text = text
	}
	return text, nil
}

// Text returns the current note.
func (n *Notebook) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text
}

// Edit replaces the note and (re)arms the debounce timer.
func (n *Notebook) Edit(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.text = text
	if n.name == "" {
		return
	}
	n.dirty = true
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.delay, func() {
		if err := n.Flush(context.Background()); err != nil {
			n.log.Error("notes save failed", observability.Error("error", err))
		}
	})
}

// Flush saves a pending edit immediately.
func (n *Notebook) Flush(ctx context.Context) error {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !n.dirty {
		n.mu.Unlock()
		return nil
	}
	name, text := n.name, n.text
	n.dirty = false
	n.mu.Unlock()

	if err := n.store.Save(ctx, name, text); err != nil {
		n.mu.Lock()
		if n.name == name {
			n.dirty = true
		}
		n.mu.Unlock()
		return err
	}
	n.log.Debug("notes saved", observability.String("file", name), observability.Int("bytes", len(text)))
	return nil
}
