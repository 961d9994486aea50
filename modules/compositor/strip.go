package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

// StripConfig controls the rendered strip layout.
type StripConfig struct {
	FrameWidth    int         // width of each photo in pixels (default: 320)
	Border        int         // white border around and between photos (default: 16)
	CaptionHeight int         // height of the caption band at the bottom (default: 56)
	Background    color.Color // default: white
	TextColor     color.Color // default: near-black
	CacheTTL      time.Duration
}

// DefaultStripConfig returns the instant-photo layout.
func DefaultStripConfig() StripConfig {
	return StripConfig{
		FrameWidth:    320,
		Border:        16,
		CaptionHeight: 56,
		Background:    color.White,
		TextColor:     color.RGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xFF},
		CacheTTL:      10 * time.Minute,
	}
}

// RenderStats contains decode cache counters.
type RenderStats struct {
	Renders     uint64
	CacheHits   uint64
	CacheMisses uint64
}

// StripRenderer draws an artifact as a vertical bordered PNG strip with
// the caption in a band under the last photo.
type StripRenderer struct {
	cfg StripConfig

	// decoded and scaled frames by image ID
	frames *cache.Cache

	renders atomic.Uint64
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewStripRenderer validates cfg, filling zero fields with defaults.
func NewStripRenderer(cfg StripConfig) (*StripRenderer, error) {
	def := DefaultStripConfig()
	if cfg.FrameWidth == 0 {
		cfg.FrameWidth = def.FrameWidth
	}
	if cfg.Border == 0 {
		cfg.Border = def.Border
	}
	if cfg.CaptionHeight == 0 {
		cfg.CaptionHeight = def.CaptionHeight
	}
	if cfg.Background == nil {
		cfg.Background = def.Background
	}
	if cfg.TextColor == nil {
		cfg.TextColor = def.TextColor
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.FrameWidth < 16 {
		return nil, fmt.Errorf("compositor: frame width must be >= 16 (got %d)", cfg.FrameWidth)
	}
	if cfg.Border < 0 || cfg.CaptionHeight < 0 {
		return nil, fmt.Errorf("compositor: border and caption height must be >= 0")
	}

	return &StripRenderer{
		cfg:    cfg,
		frames: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}, nil
}

// Render returns the strip as PNG bytes.
func (r *StripRenderer) Render(ctx context.Context, a *Artifact) ([]byte, error) {
	if a == nil || len(a.Images) == 0 {
		return nil, fmt.Errorf("compositor: nothing to render")
	}

	frames := make([]image.Image, len(a.Images))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, img := range a.Images {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			f, err := r.frame(img)
			if err != nil {
				return fmt.Errorf("compositor: frame %d (%s): %w", i, img.ID, err)
			}
			frames[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	b := r.cfg.Border
	width := r.cfg.FrameWidth + 2*b
	height := b
	for _, f := range frames {
		height += f.Bounds().Dy() + b
	}
	height += r.cfg.CaptionHeight

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: r.cfg.Background}, image.Point{}, draw.Src)

	y := b
	for _, f := range frames {
		dst := image.Rect(b, y, b+f.Bounds().Dx(), y+f.Bounds().Dy())
		draw.Draw(canvas, dst, f, f.Bounds().Min, draw.Src)
		y += f.Bounds().Dy() + b
	}

	if a.Caption != "" && r.cfg.CaptionHeight > 0 {
		r.drawCaption(canvas, a.Caption, image.Rect(b, y, width-b, height))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("compositor: encode strip: %w", err)
	}

	r.renders.Add(1)
	slog.Debug("compositor: strip rendered",
		"artifact", a.ID,
		"frames", len(frames),
		"size", fmt.Sprintf("%dx%d", width, height),
		"bytes", buf.Len(),
	)
	return buf.Bytes(), nil
}

// Stats returns renderer counters.
func (r *StripRenderer) Stats() RenderStats {
	return RenderStats{
		Renders:     r.renders.Load(),
		CacheHits:   r.hits.Load(),
		CacheMisses: r.misses.Load(),
	}
}

// frame decodes img and scales it to FrameWidth, keeping aspect ratio.
func (r *StripRenderer) frame(img gallery.Image) (image.Image, error) {
	key := fmt.Sprintf("%s@%d", img.ID, r.cfg.FrameWidth)
	if cached, ok := r.frames.Get(key); ok {
		r.hits.Add(1)
		return cached.(image.Image), nil
	}
	r.misses.Add(1)

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	sb := src.Bounds()
	w := r.cfg.FrameWidth
	h := sb.Dy() * w / sb.Dx()
	if h < 1 {
		h = 1
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sb, xdraw.Src, nil)

	r.frames.SetDefault(key, image.Image(scaled))
	return scaled, nil
}

// drawCaption centres text in area, truncating with "..." to fit.
func (r *StripRenderer) drawCaption(dst *image.RGBA, text string, area image.Rectangle) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.cfg.TextColor),
		Face: face,
	}

	text = fitText(d, text, area.Dx())
	advance := d.MeasureString(text).Ceil()

	x := area.Min.X + (area.Dx()-advance)/2
	metrics := face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	baseline := area.Min.Y + (area.Dy()-textHeight)/2 + metrics.Ascent.Ceil()

	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

func fitText(d *font.Drawer, text string, maxWidth int) string {
	if d.MeasureString(text).Ceil() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if d.MeasureString(candidate).Ceil() <= maxWidth {
			return candidate
		}
	}
	return ""
}
