// Package surface implements the vector annotation layer overlaid on one
// page. A Surface owns its objects exclusively, publishes exactly one Event
// per committed mutation, and can be serialized to a self-contained
// snapshot and restored from one without publishing anything.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an object ID is not on the surface.
var ErrNotFound = errors.New("object not found")

// EventKind names the mutation that produced an Event.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventRemoved
	EventModified
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventModified:
		return "modified"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports one committed mutation.
type Event struct {
	Kind   EventKind
	Object ID
}

// Surface is the annotation layer of one page.
type Surface struct {
	width, height int

	objects []*Object
	pending map[ID]bool
	nextID  ID
	active  ID

	subs    map[int]func(Event)
	subSeq  int
	subKeys []int
}

// New returns an empty surface of the given pixel size.
func New(width, height int) *Surface {
	return &Surface{width: width, height: height, nextID: 1}
}

// Size returns the pixel size of the surface.
func (s *Surface) Size() (int, int) { return s.width, s.height }

// Resize changes the pixel size. Objects keep their coordinates.
func (s *Surface) Resize(width, height int) {
	s.width, s.height = width, height
}

// Subscribe registers fn to receive events in commit order. The returned
// function removes the subscription.
func (s *Surface) Subscribe(fn func(Event)) (unsubscribe func()) {
	if s.subs == nil {
		s.subs = make(map[int]func(Event))
	}
	s.subSeq++
	key := s.subSeq
	s.subs[key] = fn
	s.subKeys = append(s.subKeys, key)
	return func() {
		delete(s.subs, key)
		for i, k := range s.subKeys {
			if k == key {
				s.subKeys = append(s.subKeys[:i], s.subKeys[i+1:]...)
				break
			}
		}
	}
}

func (s *Surface) publish(ev Event) {
	for _, k := range append([]int(nil), s.subKeys...) {
		if fn, ok := s.subs[k]; ok {
			fn(ev)
		}
	}
}

func (s *Surface) index(id ID) int {
	for i, o := range s.objects {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (s *Surface) insert(obj Object) ID {
	o := obj.Clone()
	o.ID = s.nextID
	s.nextID++
	s.objects = append(s.objects, &o)
	return o.ID
}

// Add appends obj on top of every other object and publishes EventAdded.
func (s *Surface) Add(obj Object) ID {
	id := s.insert(obj)
	s.publish(Event{Kind: EventAdded, Object: id})
	return id
}

// AddPending appends obj without publishing; the object is visible and
// can be changed with Preview until Commit or Discard.
func (s *Surface) AddPending(obj Object) ID {
	id := s.insert(obj)
	if s.pending == nil {
		s.pending = make(map[ID]bool)
	}
	s.pending[id] = true
	return id
}

// Commit publishes EventAdded for a pending object.
func (s *Surface) Commit(id ID) error {
	if !s.pending[id] {
		return fmt.Errorf("commit %d: %w", id, ErrNotFound)
	}
	delete(s.pending, id)
	s.publish(Event{Kind: EventAdded, Object: id})
	return nil
}

// Discard drops a pending object without publishing.
func (s *Surface) Discard(id ID) {
	if !s.pending[id] {
		return
	}
	delete(s.pending, id)
	if i := s.index(id); i >= 0 {
		s.objects = append(s.objects[:i], s.objects[i+1:]...)
	}
}

// Remove deletes the object and publishes EventRemoved.
func (s *Surface) Remove(id ID) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.objects = append(s.objects[:i], s.objects[i+1:]...)
	delete(s.pending, id)
	if s.active == id {
		s.active = 0
	}
	s.publish(Event{Kind: EventRemoved, Object: id})
	return true
}

// Update applies fn to the object and publishes EventModified.
func (s *Surface) Update(id ID, fn func(*Object)) bool {
	if !s.Preview(id, fn) {
		return false
	}
	s.publish(Event{Kind: EventModified, Object: id})
	return true
}

// Preview applies fn to the object without publishing. It is used for
// in-progress interactions (a line following the pointer, a drag).
func (s *Surface) Preview(id ID, fn func(*Object)) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	fn(s.objects[i])
	s.objects[i].ID = id
	return true
}

// Move translates the object by (dx, dy) and publishes EventModified.
func (s *Surface) Move(id ID, dx, dy float64) bool {
	return s.Update(id, func(o *Object) { o.Translate(dx, dy) })
}

// Touch publishes EventModified for an object already changed through
// Preview, completing the interaction.
func (s *Surface) Touch(id ID) bool {
	if s.index(id) < 0 {
		return false
	}
	s.publish(Event{Kind: EventModified, Object: id})
	return true
}

// Get returns a copy of the object.
func (s *Surface) Get(id ID) (Object, bool) {
	if i := s.index(id); i >= 0 {
		return s.objects[i].Clone(), true
	}
	return Object{}, false
}

// Objects returns copies of all objects in paint order (bottom first).
func (s *Surface) Objects() []Object {
	out := make([]Object, len(s.objects))
	for i, o := range s.objects {
		out[i] = o.Clone()
	}
	return out
}

// Len returns the number of objects, pending ones included.
func (s *Surface) Len() int { return len(s.objects) }

// SetActive selects the object. Selection is not a content mutation and
// publishes nothing.
func (s *Surface) SetActive(id ID) bool {
	if s.index(id) < 0 {
		return false
	}
	s.active = id
	return true
}

// ClearActive deselects and leaves text editing mode.
func (s *Surface) ClearActive() {
	if i := s.index(s.active); i >= 0 {
		s.objects[i].Editing = false
	}
	s.active = 0
}

// Active returns the selected object.
func (s *Surface) Active() (Object, bool) {
	if s.active == 0 {
		return Object{}, false
	}
	return s.Get(s.active)
}

// SetEditing toggles text editing mode on a text object. Entering or
// leaving edit mode publishes nothing; the edit itself is committed with
// Update.
func (s *Surface) SetEditing(id ID, editing bool) bool {
	i := s.index(id)
	if i < 0 || s.objects[i].Kind != KindText {
		return false
	}
	s.objects[i].Editing = editing
	if editing {
		s.active = id
	}
	return true
}

type snapshot struct {
	Objects []Object `json:"objects"`
}

// Serialize returns a self-contained snapshot of every committed object.
// Pending objects are not part of the snapshot.
func (s *Surface) Serialize() ([]byte, error) {
	snap := snapshot{Objects: make([]Object, 0, len(s.objects))}
	for _, o := range s.objects {
		if s.pending[o.ID] {
			continue
		}
		c := o.Clone()
		c.Editing = false
		snap.Objects = append(snap.Objects, c)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("serialize surface: %w", err)
	}
	return data, nil
}

// Restore atomically replaces all objects with the snapshot content. No
// event is published. The ID counter never moves backwards, so objects
// created after a restore never collide with ones in older snapshots.
func (s *Surface) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("restore surface: %w", err)
	}
	objects := make([]*Object, 0, len(snap.Objects))
	maxID := ID(0)
	for i := range snap.Objects {
		o := snap.Objects[i]
		if o.ID <= 0 {
			return fmt.Errorf("restore surface: object %d has invalid id %d", i, o.ID)
		}
		if o.ID > maxID {
			maxID = o.ID
		}
		objects = append(objects, &o)
	}
	s.objects = objects
	s.pending = nil
	if maxID >= s.nextID {
		s.nextID = maxID + 1
	}
	if s.index(s.active) < 0 {
		s.active = 0
	}
	return nil
}
