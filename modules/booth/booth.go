// Package booth wires the capture, gallery, selection and composition
// components into the single object a front end talks to.
//
// The booth owns the user's mutable capture settings. Capture snapshots
// them, so toggling flash or switching camera mid-session only affects the
// next session. Delete, Toggle and Compose are serialized through one lock;
// deleting a selected image evicts it from the selection before Delete
// returns.
package booth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LeeRoiii/Photoboots/modules/capture"
	"github.com/LeeRoiii/Photoboots/modules/compositor"
	"github.com/LeeRoiii/Photoboots/modules/download"
	"github.com/LeeRoiii/Photoboots/modules/eventbus"
	"github.com/LeeRoiii/Photoboots/modules/framesource"
	"github.com/LeeRoiii/Photoboots/modules/gallery"
	"github.com/LeeRoiii/Photoboots/modules/selection"
)

var (
	// ErrNoDownloadSink is returned by Download when no sink is configured.
	ErrNoDownloadSink = errors.New("booth: no download sink configured")

	// ErrNoRenderer is returned by Export when no renderer is configured.
	ErrNoRenderer = errors.New("booth: no composite renderer configured")

	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("booth: closed")
)

// bytesSaver is implemented by sinks that can store a rendered composite.
type bytesSaver interface {
	SaveBytes(ctx context.Context, data []byte, mime string) (string, error)
}

type options struct {
	capacity     int
	settings     capture.Settings
	bus          eventbus.Bus
	sink         download.Sink
	renderer     *compositor.StripRenderer
	captureOpts  []capture.Option
	composerOpts []compositor.Option
}

// Option customises a Booth.
type Option func(*options)

// WithCapacity sets K, the number of images in a composite.
func WithCapacity(k int) Option {
	return func(o *options) { o.capacity = k }
}

// WithSettings sets the initial capture settings.
func WithSettings(s capture.Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithBus sets the notification bus. By default the booth creates one.
func WithBus(b eventbus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithDownloadSink sets where Download writes images.
func WithDownloadSink(s download.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithRenderer enables Export.
func WithRenderer(r *compositor.StripRenderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithCaptureOptions passes options through to the sequencer.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(o *options) { o.captureOpts = append(o.captureOpts, opts...) }
}

// WithCompositorOptions passes options through to the compositor.
func WithCompositorOptions(opts ...compositor.Option) Option {
	return func(o *options) { o.composerOpts = append(o.composerOpts, opts...) }
}

// Booth is the photobooth core.
type Booth struct {
	gallery    *gallery.Gallery
	selection  *selection.Set
	sequencer  *capture.Sequencer
	compositor *compositor.Compositor
	renderer   *compositor.StripRenderer
	sink       download.Sink
	bus        eventbus.Bus

	// opMu serializes delete, toggle and compose.
	opMu sync.Mutex

	mu       sync.Mutex
	settings capture.Settings
	closed   bool
}

// New builds a booth around an opened gallery and a frame source.
func New(g *gallery.Gallery, source framesource.Source, opts ...Option) (*Booth, error) {
	if g == nil {
		return nil, fmt.Errorf("booth: gallery is required")
	}

	o := options{
		capacity: selection.DefaultCapacity,
		settings: capture.Settings{Shots: 1, Facing: framesource.FacingFront, Zoom: 1},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, fmt.Errorf("booth: initial settings: %w", err)
	}
	if o.bus == nil {
		o.bus = eventbus.New()
	}

	sel, err := selection.New(o.capacity, g)
	if err != nil {
		return nil, fmt.Errorf("booth: %w", err)
	}
	comp, err := compositor.New(o.capacity, o.composerOpts...)
	if err != nil {
		return nil, fmt.Errorf("booth: %w", err)
	}

	seqOpts := append([]capture.Option{capture.WithNotifier(o.bus)}, o.captureOpts...)
	seq, err := capture.New(source, g, seqOpts...)
	if err != nil {
		return nil, fmt.Errorf("booth: %w", err)
	}

	b := &Booth{
		gallery:    g,
		selection:  sel,
		sequencer:  seq,
		compositor: comp,
		renderer:   o.renderer,
		sink:       o.sink,
		bus:        o.bus,
		settings:   o.settings,
	}

	g.OnRemove(func(img gallery.Image) {
		if sel.Evict(img.ID) {
			slog.Debug("booth: deleted image evicted from selection", "id", img.ID)
		}
	})

	return b, nil
}

// Bus returns the notification bus for subscribers.
func (b *Booth) Bus() eventbus.Bus { return b.bus }

// Gallery returns the underlying gallery.
func (b *Booth) Gallery() *gallery.Gallery { return b.gallery }

// Sequencer returns the capture sequencer, e.g. to read its State.
func (b *Booth) Sequencer() *capture.Sequencer { return b.sequencer }

// Settings returns the current capture settings.
func (b *Booth) Settings() capture.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings
}

// SetShots sets the number of shots for the next session.
func (b *Booth) SetShots(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.settings
	next.Shots = n
	if err := next.Validate(); err != nil {
		return err
	}
	b.settings = next
	return nil
}

// ToggleFlash flips flash mode and returns the new value.
func (b *Booth) ToggleFlash() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings.Flash = !b.settings.Flash
	return b.settings.Flash
}

// SwitchCamera toggles between the front and back camera.
func (b *Booth) SwitchCamera() framesource.Facing {
	b.mu.Lock()
	b.settings.Facing = b.settings.Facing.Toggle()
	facing := b.settings.Facing
	b.mu.Unlock()

	slog.Info("booth: camera switched", "facing", facing.String())
	b.bus.Publish(eventbus.Event{Kind: eventbus.KindCameraSwitched, Facing: facing.String()})
	return facing
}

// SetZoom sets the zoom factor for the next session.
func (b *Booth) SetZoom(z float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.settings
	next.Zoom = z
	if err := next.Validate(); err != nil {
		return err
	}
	b.settings = next
	return nil
}

// Capture starts a session with a snapshot of the current settings and
// returns immediately. The session stops early when ctx is done.
func (b *Booth) Capture(ctx context.Context) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.sequencer.Start(ctx, b.Settings())
}

// CaptureAndWait runs a session to completion.
func (b *Booth) CaptureAndWait(ctx context.Context) (capture.Result, error) {
	if b.isClosed() {
		return capture.Result{}, ErrClosed
	}
	return b.sequencer.Run(ctx, b.Settings())
}

// Delete removes the image at position. A selected image is unpicked
// before Delete returns.
func (b *Booth) Delete(ctx context.Context, position int) (gallery.Image, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	img, err := b.gallery.Remove(ctx, position)
	if err != nil {
		return gallery.Image{}, err
	}

	b.bus.Publish(eventbus.Event{Kind: eventbus.KindDeleted, ImageID: img.ID, Position: position})
	return img, nil
}

// Toggle picks or unpicks an image by ID. A pick on a full selection is
// ignored and reported with a selection_ignored notification.
func (b *Booth) Toggle(id string) (selection.Outcome, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	return b.toggleLocked(id)
}

// TogglePosition picks or unpicks the image at a gallery position.
func (b *Booth) TogglePosition(position int) (selection.Outcome, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	img, err := b.gallery.Get(position)
	if err != nil {
		return selection.Ignored, err
	}
	return b.toggleLocked(img.ID)
}

func (b *Booth) toggleLocked(id string) (selection.Outcome, error) {
	outcome, err := b.selection.Toggle(id)
	if err != nil {
		return outcome, err
	}

	if outcome == selection.Ignored {
		slog.Debug("booth: selection full, toggle ignored",
			"id", id,
			"capacity", b.selection.Capacity(),
		)
		b.bus.Publish(eventbus.Event{
			Kind:     eventbus.KindSelectionIgnored,
			ImageID:  id,
			Position: b.gallery.Position(id),
		})
	}
	return outcome, nil
}

// Selected returns the selected images in pick order.
func (b *Booth) Selected() []gallery.Image {
	ids := b.selection.IDs()
	out := make([]gallery.Image, 0, len(ids))
	for _, id := range ids {
		if img, ok := b.gallery.ByID(id); ok {
			out = append(out, img)
		}
	}
	return out
}

// Compose builds a composite from the current selection. On success the
// selection is cleared; on failure it is left as is and a composite_failed
// notification is published.
func (b *Booth) Compose(ctx context.Context, caption string) (*compositor.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	art, err := b.compositor.Compose(b.Selected(), caption)
	if err != nil {
		reason := fmt.Sprintf("select exactly %d images", b.compositor.Capacity())
		slog.Warn("booth: composite failed",
			"selected", b.selection.Len(),
			"capacity", b.compositor.Capacity(),
			"error", err,
		)
		b.bus.Publish(eventbus.Event{Kind: eventbus.KindCompositeFailed, Reason: reason})
		return nil, err
	}

	b.selection.Clear()

	slog.Info("booth: composite created", "id", art.ID, "images", len(art.Images), "caption", art.Caption)
	b.bus.Publish(eventbus.Event{Kind: eventbus.KindComposed, ImageID: art.ID})
	return art, nil
}

// Download exports the image at position through the download sink.
func (b *Booth) Download(ctx context.Context, position int) (string, error) {
	if b.sink == nil {
		return "", ErrNoDownloadSink
	}

	img, err := b.gallery.Get(position)
	if err != nil {
		return "", err
	}

	path, err := b.sink.Save(ctx, img)
	if err != nil {
		slog.Warn("booth: download failed", "id", img.ID, "error", err)
		return "", err
	}

	b.bus.Publish(eventbus.Event{Kind: eventbus.KindDownloaded, ImageID: img.ID, Position: position, Path: path})
	return path, nil
}

// Render turns an artifact into PNG bytes.
func (b *Booth) Render(ctx context.Context, art *compositor.Artifact) ([]byte, error) {
	if b.renderer == nil {
		return nil, ErrNoRenderer
	}
	return b.renderer.Render(ctx, art)
}

// Export renders an artifact and writes it through the download sink.
func (b *Booth) Export(ctx context.Context, art *compositor.Artifact) (string, error) {
	saver, ok := b.sink.(bytesSaver)
	if !ok {
		return "", ErrNoDownloadSink
	}

	data, err := b.Render(ctx, art)
	if err != nil {
		return "", err
	}

	path, err := saver.SaveBytes(ctx, data, "image/png")
	if err != nil {
		return "", err
	}

	b.bus.Publish(eventbus.Event{Kind: eventbus.KindDownloaded, ImageID: art.ID, Path: path})
	return path, nil
}

// Close cancels an active session, waits for it to end and closes the bus.
func (b *Booth) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.sequencer.Cancel()

	var waitErr error
	if _, err := b.sequencer.Wait(ctx); err != nil && !errors.Is(err, capture.ErrNoSession) {
		waitErr = fmt.Errorf("booth: waiting for session: %w", err)
	}

	b.bus.Close()
	slog.Info("booth: closed", "images", b.gallery.Len())
	return waitErr
}

func (b *Booth) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
