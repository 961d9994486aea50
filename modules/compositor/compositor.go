// Package compositor turns a complete selection into a composite artifact.
//
// Composition is association: the artifact records exactly K images in
// selection order together with the caption, verbatim. Turning an artifact
// into pixels is a separate, optional step (see StripRenderer).
package compositor

import (
	"errors"
	"fmt"
	"time"

	"github.com/LeeRoiii/Photoboots/internal/idgen"
	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

// ErrSelectionIncomplete is returned when the selection does not hold
// exactly K images.
var ErrSelectionIncomplete = errors.New("compositor: selection incomplete")

// Artifact is an ephemeral composite: K images plus a caption.
// It is never added to the gallery.
type Artifact struct {
	ID        string
	Images    []gallery.Image // selection order
	Caption   string          // as entered, may be empty
	CreatedAt time.Time
}

// Compositor builds artifacts of a fixed size.
type Compositor struct {
	capacity int
	newID    idgen.Generator
	now      func() time.Time
}

// Option customises a Compositor.
type Option func(*Compositor)

// WithIDGenerator sets the artifact ID strategy.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(c *Compositor) { c.newID = gen }
}

// WithClock sets the artifact timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Compositor) { c.now = now }
}

// New creates a compositor for composites of capacity images.
func New(capacity int, opts ...Option) (*Compositor, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("compositor: capacity must be >= 1 (got %d)", capacity)
	}
	c := &Compositor{
		capacity: capacity,
		newID:    idgen.Prefixed("cmp_", idgen.Default),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Capacity returns K.
func (c *Compositor) Capacity() int {
	return c.capacity
}

// Compose returns an artifact for images in the given order.
func (c *Compositor) Compose(images []gallery.Image, caption string) (*Artifact, error) {
	if len(images) != c.capacity {
		return nil, fmt.Errorf("%w: need %d images, have %d", ErrSelectionIncomplete, c.capacity, len(images))
	}

	return &Artifact{
		ID:        c.newID(),
		Images:    append([]gallery.Image(nil), images...),
		Caption:   caption,
		CreatedAt: c.now(),
	}, nil
}
