// Package selection tracks which gallery images are picked for a composite.
//
// A Set holds at most K image IDs in the order they were picked, without
// duplicates. Toggling a picked image unpicks it; toggling a new image when
// the set is full is ignored rather than evicting an older pick.
package selection

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of images in a composite strip.
const DefaultCapacity = 3

// ErrUnknownImage is returned when toggling an ID the gallery does not hold.
var ErrUnknownImage = errors.New("selection: image not in gallery")

// Outcome is the result of a Toggle.
type Outcome int

const (
	// Added means the image was appended to the selection.
	Added Outcome = iota
	// Removed means the image was already selected and has been unpicked.
	Removed
	// Ignored means the selection was full and nothing changed.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Membership answers whether an image ID currently exists.
type Membership interface {
	Contains(id string) bool
}

// Set is an ordered, bounded set of image IDs. Safe for concurrent use.
type Set struct {
	capacity int
	members  Membership

	mu  sync.Mutex
	ids []string
}

// New creates an empty set of the given capacity. members may be nil, in
// which case any ID is accepted.
func New(capacity int, members Membership) (*Set, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("selection: capacity must be >= 1 (got %d)", capacity)
	}
	return &Set{
		capacity: capacity,
		members:  members,
		ids:      make([]string, 0, capacity),
	}, nil
}

// Toggle picks or unpicks id.
func (s *Set) Toggle(id string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		s.ids = append(s.ids[:i], s.ids[i+1:]...)
		return Removed, nil
	}

	if s.members != nil && !s.members.Contains(id) {
		return Ignored, fmt.Errorf("%w: %s", ErrUnknownImage, id)
	}

	if len(s.ids) >= s.capacity {
		return Ignored, nil
	}

	s.ids = append(s.ids, id)
	return Added, nil
}

// Evict removes id if present and reports whether it was.
func (s *Set) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		s.ids = append(s.ids[:i], s.ids[i+1:]...)
		return true
	}
	return false
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	s.ids = s.ids[:0]
	s.mu.Unlock()
}

// IDs returns the selected IDs in pick order.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Contains reports whether id is selected.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

// Len returns the number of selected IDs.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Full reports whether the set holds Capacity IDs.
func (s *Set) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids) >= s.capacity
}

// Capacity returns K.
func (s *Set) Capacity() int {
	return s.capacity
}

func (s *Set) indexLocked(id string) int {
	for i, v := range s.ids {
		if v == id {
			return i
		}
	}
	return -1
}
