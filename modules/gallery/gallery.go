package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LeeRoiii/Photoboots/internal/idgen"
)

// Gallery is the ordered, persisted collection of captured images.
// All methods are safe for concurrent use.
type Gallery struct {
	store Store
	newID idgen.Generator
	now   func() time.Time

	// mu guards images and serializes persist steps
	mu       sync.Mutex
	images   []Image
	onAppend []func(Image)
	onRemove []func(Image)

	appends      uint64
	removes      uint64
	saves        uint64
	saveFailures uint64
}

// Option customises a Gallery.
type Option func(*Gallery)

// WithIDGenerator sets the ID strategy. Default: idgen.Default (UUIDv7).
func WithIDGenerator(gen idgen.Generator) Option {
	return func(g *Gallery) { g.newID = gen }
}

// WithClock sets the time source used when an appended image has no
// capture time.
func WithClock(now func() time.Time) Option {
	return func(g *Gallery) { g.now = now }
}

// Open loads the gallery from store. A missing or unreadable collection
// yields an empty gallery; only a nil store is an error.
func Open(ctx context.Context, store Store, opts ...Option) (*Gallery, error) {
	if store == nil {
		return nil, fmt.Errorf("gallery: store is required")
	}

	g := &Gallery{
		store: store,
		newID: idgen.Default,
		now:   time.Now,
	}
	for _, o := range opts {
		o(g)
	}

	images, err := store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		slog.Info("gallery: no saved collection, starting empty")
		images = nil
	default:
		slog.Warn("gallery: saved collection unreadable, starting empty", "error", err)
		images = nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.images = make([]Image, 0, len(images))
	// every stored ID is reserved up front so a fresh ID never collides
	// with one that appears later in the payload
	taken := make(map[string]bool, len(images))
	for _, img := range images {
		if img.ID != "" {
			taken[img.ID] = true
		}
	}

	assigned := 0
	claimed := make(map[string]bool, len(images))
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		if img.ID == "" || claimed[img.ID] {
			if img.ID != "" {
				slog.Warn("gallery: duplicate image ID on load, assigning a new one", "id", img.ID)
			}
			img.ID = g.newID()
			for taken[img.ID] {
				img.ID = g.newID()
			}
			taken[img.ID] = true
			assigned++
		}
		claimed[img.ID] = true
		if img.MIME == "" {
			img.MIME = "image/png"
		}
		g.images = append(g.images, img)
	}

	// legacy or duplicate entries just received IDs; write them back so they stay stable
	if assigned > 0 {
		slog.Info("gallery: assigned IDs to imported images", "count", assigned)
		g.persistLocked(ctx)
	}

	slog.Info("gallery: opened", "images", len(g.images))
	return g, nil
}

// OnAppend registers fn to run after every successful Append.
func (g *Gallery) OnAppend(fn func(Image)) {
	g.mu.Lock()
	g.onAppend = append(g.onAppend, fn)
	g.mu.Unlock()
}

// OnRemove registers fn to run after an image is removed, before Remove
// returns.
func (g *Gallery) OnRemove(fn func(Image)) {
	g.mu.Lock()
	g.onRemove = append(g.onRemove, fn)
	g.mu.Unlock()
}

// Append adds an image at the end and persists. It always succeeds in
// memory; a persist failure is logged and counted.
func (g *Gallery) Append(ctx context.Context, in NewImage) Image {
	img := Image{
		Data:       append([]byte(nil), in.Data...),
		MIME:       in.MIME,
		Facing:     in.Facing,
		Shot:       in.Shot,
		CapturedAt: in.CapturedAt,
	}
	if img.MIME == "" {
		img.MIME = "image/png"
	}

	g.mu.Lock()
	img.ID = g.newID()
	if img.CapturedAt.IsZero() {
		img.CapturedAt = g.now()
	}
	g.images = append(g.images, img)
	g.appends++
	g.persistLocked(ctx)
	hooks := append([]func(Image){}, g.onAppend...)
	position := len(g.images) - 1
	g.mu.Unlock()

	slog.Debug("gallery: image appended", "id", img.ID, "position", position, "size_bytes", len(img.Data))

	for _, fn := range hooks {
		fn(img)
	}
	return img
}

// Remove deletes the image at position, shifting later images down, and
// persists. Removal hooks have run by the time Remove returns.
func (g *Gallery) Remove(ctx context.Context, position int) (Image, error) {
	g.mu.Lock()
	if position < 0 || position >= len(g.images) {
		n := len(g.images)
		g.mu.Unlock()
		return Image{}, fmt.Errorf("%w: position %d, gallery has %d images", ErrIndexOutOfRange, position, n)
	}
	return g.removeLocked(ctx, position)
}

// RemoveByID deletes the image with the given ID.
func (g *Gallery) RemoveByID(ctx context.Context, id string) (Image, error) {
	g.mu.Lock()
	position := g.positionLocked(id)
	if position < 0 {
		g.mu.Unlock()
		return Image{}, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	return g.removeLocked(ctx, position)
}

// removeLocked expects g.mu held and releases it.
func (g *Gallery) removeLocked(ctx context.Context, position int) (Image, error) {
	removed := g.images[position]
	g.images = append(g.images[:position:position], g.images[position+1:]...)
	g.removes++
	g.persistLocked(ctx)
	hooks := append([]func(Image){}, g.onRemove...)
	g.mu.Unlock()

	slog.Debug("gallery: image removed", "id", removed.ID, "position", position)

	for _, fn := range hooks {
		fn(removed)
	}
	return removed, nil
}

// Get returns the image at position.
func (g *Gallery) Get(position int) (Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if position < 0 || position >= len(g.images) {
		return Image{}, fmt.Errorf("%w: position %d, gallery has %d images", ErrIndexOutOfRange, position, len(g.images))
	}
	return g.images[position], nil
}

// ByID returns the image with the given ID.
func (g *Gallery) ByID(id string) (Image, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if i := g.positionLocked(id); i >= 0 {
		return g.images[i], true
	}
	return Image{}, false
}

// Contains reports whether id is in the gallery.
func (g *Gallery) Contains(id string) bool {
	_, ok := g.ByID(id)
	return ok
}

// Position returns the current position of id, or -1.
func (g *Gallery) Position(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positionLocked(id)
}

// Images returns a copy of the ordered collection.
func (g *Gallery) Images() []Image {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Image(nil), g.images...)
}

// Len returns the number of images.
func (g *Gallery) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.images)
}

// Stats returns gallery counters.
func (g *Gallery) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Images:       len(g.images),
		Appends:      g.appends,
		Removes:      g.removes,
		Saves:        g.saves,
		SaveFailures: g.saveFailures,
	}
}

func (g *Gallery) positionLocked(id string) int {
	for i, img := range g.images {
		if img.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the full list. Caller holds g.mu, so two mutations
// never interleave their writes.
func (g *Gallery) persistLocked(ctx context.Context) {
	snapshot := append([]Image(nil), g.images...)
	if err := g.store.Save(ctx, snapshot); err != nil {
		g.saveFailures++
		slog.Error("gallery: persist failed, keeping in-memory state",
			"error", err,
			"images", len(snapshot),
			"save_failures", g.saveFailures,
		)
		return
	}
	g.saves++
}
