// Package history records whole-surface snapshots and replays them for
// undo and redo.
//
// The protocol follows the pointer lifecycle: Begin captures the page's
// state when an interaction starts, and the first change event the page's
// surface publishes afterwards commits that capture to the undo stack and
// clears the redo stack. Interactions that change nothing leave no entry.
// Undo and redo restore snapshots with a restoring guard held, so the
// restore itself is never recorded as a new action.
package history

import (
	"fmt"

	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/surface"
)

// DefaultLimit bounds the undo stack; the oldest entry is evicted first.
const DefaultLimit = 50

// PageID identifies a page for the lifetime of a session, independent of
// its current position.
type PageID uint64

// Entry is one recorded state of a page's surface.
type Entry struct {
	Page PageID
	// PageNumber is the page's 1-based position when the entry was made
	// (zero when no resolver is configured).
	PageNumber int
	Snapshot   []byte
}

type tracked struct {
	surface     *surface.Surface
	unsubscribe func()
	before      []byte
	capturing   bool
}

// Manager owns the session-wide undo and redo stacks.
type Manager struct {
	limit     int
	undo      []Entry
	redo      []Entry
	restoring bool
	pages     map[PageID]*tracked
	numberOf  func(PageID) int
	onChange  []func()
	log       observability.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLimit overrides DefaultLimit. Values below 1 are ignored.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithLogger sets the logger used for stack transitions.
func WithLogger(l observability.Logger) Option {
	return func(m *Manager) { m.log = observability.OrNop(l) }
}

// WithPageNumbers sets the resolver that stamps entries with the page's
// current number.
func WithPageNumbers(fn func(PageID) int) Option {
	return func(m *Manager) { m.numberOf = fn }
}

// New returns an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		limit: DefaultLimit,
		pages: make(map[PageID]*tracked),
		log:   observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to run whenever either stack changes.
func (m *Manager) OnChange(fn func()) { m.onChange = append(m.onChange, fn) }

func (m *Manager) changed() {
	for _, fn := range m.onChange {
		fn()
	}
}

// Track starts listening to the surface of page id. Tracking an already
// tracked page replaces its surface.
func (m *Manager) Track(id PageID, s *surface.Surface) {
	if t, ok := m.pages[id]; ok {
		t.unsubscribe()
	}
	t := &tracked{surface: s}
	t.unsubscribe = s.Subscribe(func(surface.Event) { m.commit(id) })
	m.pages[id] = t
}

// Untrack stops listening to page id and drops its entries from both
// stacks.
func (m *Manager) Untrack(id PageID) {
	t, ok := m.pages[id]
	if !ok {
		return
	}
	t.unsubscribe()
	delete(m.pages, id)
	m.undo = without(m.undo, id)
	m.redo = without(m.redo, id)
	m.changed()
}

func without(entries []Entry, id PageID) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.Page != id {
			out = append(out, e)
		}
	}
	return out
}

// Reset untracks every page and empties both stacks.
func (m *Manager) Reset() {
	for _, t := range m.pages {
		t.unsubscribe()
	}
	m.pages = make(map[PageID]*tracked)
	m.undo, m.redo = nil, nil
	m.changed()
}

// Begin captures the pre-interaction state of page id. A capture that is
// never committed is replaced by the next Begin.
func (m *Manager) Begin(id PageID) error {
	if m.restoring {
		return nil
	}
	t, ok := m.pages[id]
	if !ok {
		return fmt.Errorf("begin: page %d is not tracked", id)
	}
	snap, err := t.surface.Serialize()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	t.before = snap
	t.capturing = true
	return nil
}

// Cancel discards the pending capture of page id.
func (m *Manager) Cancel(id PageID) {
	if t, ok := m.pages[id]; ok {
		t.before, t.capturing = nil, false
	}
}

// Record runs fn as one undoable interaction on page id.
func (m *Manager) Record(id PageID, fn func() error) error {
	if err := m.Begin(id); err != nil {
		return err
	}
	defer m.Cancel(id)
	return fn()
}

func (m *Manager) commit(id PageID) {
	if m.restoring {
		return
	}
	t, ok := m.pages[id]
	if !ok || !t.capturing {
		return
	}
	m.push(&m.undo, m.entry(id, t.before))
	m.redo = nil
	t.before, t.capturing = nil, false
	m.log.Debug("history commit", observability.Int("undo", len(m.undo)), observability.Int("page_id", int(id)))
	m.changed()
}

func (m *Manager) entry(id PageID, snap []byte) Entry {
	e := Entry{Page: id, Snapshot: snap}
	if m.numberOf != nil {
		e.PageNumber = m.numberOf(id)
	}
	return e
}

func (m *Manager) push(stack *[]Entry, e Entry) {
	*stack = append(*stack, e)
	if stack == &m.undo && len(m.undo) > m.limit {
		drop := len(m.undo) - m.limit
		m.undo = append([]Entry(nil), m.undo[drop:]...)
	}
}

// Undo restores the most recent undo entry. It reports false when the
// stack is empty.
func (m *Manager) Undo() (Entry, bool, error) {
	return m.step(&m.undo, &m.redo, "undo")
}

// Redo re-applies the most recently undone entry. It reports false when
// the stack is empty.
func (m *Manager) Redo() (Entry, bool, error) {
	return m.step(&m.redo, &m.undo, "redo")
}

func (m *Manager) step(from, to *[]Entry, op string) (Entry, bool, error) {
	if len(*from) == 0 {
		return Entry{}, false, nil
	}
	e := (*from)[len(*from)-1]
	t, ok := m.pages[e.Page]
	if !ok {
		*from = (*from)[:len(*from)-1]
		return Entry{}, false, fmt.Errorf("%s: page %d is not tracked", op, e.Page)
	}
	current, err := t.surface.Serialize()
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.restore(t.surface, e.Snapshot); err != nil {
		return Entry{}, false, fmt.Errorf("%s: %w", op, err)
	}
	*from = (*from)[:len(*from)-1]
	m.push(to, m.entry(e.Page, current))
	t.before, t.capturing = nil, false
	if m.numberOf != nil {
		e.PageNumber = m.numberOf(e.Page)
	}
	m.log.Debug("history "+op, observability.Int("undo", len(m.undo)), observability.Int("redo", len(m.redo)))
	m.changed()
	return e, true, nil
}

func (m *Manager) restore(s *surface.Surface, snap []byte) error {
	m.restoring = true
	defer func() { m.restoring = false }()
	return s.Restore(snap)
}

// Restoring reports whether a restore is in progress.
func (m *Manager) Restoring() bool { return m.restoring }

// CanUndo reports whether Undo would do anything.
func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

// CanRedo reports whether Redo would do anything.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// Len returns the depth of both stacks.
func (m *Manager) Len() (undo, redo int) { return len(m.undo), len(m.redo) }

// Entries returns a copy of the undo stack, oldest first. Snapshots are
// copied too, so callers may keep or modify them freely.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.undo))
	for i, e := range m.undo {
		e.Snapshot = append([]byte(nil), e.Snapshot...)
		out[i] = e
	}
	return out
}
