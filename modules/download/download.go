// Package download exports gallery images to files a user can keep.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

// FilePrefix starts every exported file name.
const FilePrefix = "photo-booth-"

// maxCollisions bounds the -N suffixes tried when two exports share a
// millisecond.
const maxCollisions = 100

// ErrEmptyImage is returned for an image without data.
var ErrEmptyImage = errors.New("download: image has no data")

// Sink delivers an image to the user and returns where it went.
type Sink interface {
	Save(ctx context.Context, img gallery.Image) (string, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, img gallery.Image) (string, error)

// Save calls fn.
func (fn SinkFunc) Save(ctx context.Context, img gallery.Image) (string, error) {
	return fn(ctx, img)
}

// Stats contains export counters.
type Stats struct {
	Saved  uint64
	Failed uint64
	Bytes  uint64
}

// FileSink writes images as photo-booth-<unix-ms>.<ext> into a directory.
//
// Safe for concurrent use; an existing file is never overwritten.
type FileSink struct {
	dir string
	now func() time.Time

	saved  atomic.Uint64
	failed atomic.Uint64
	bytes  atomic.Uint64
}

// Option customises a FileSink.
type Option func(*FileSink)

// WithClock replaces time.Now for file naming.
func WithClock(now func() time.Time) Option {
	return func(s *FileSink) { s.now = now }
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string, opts ...Option) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("download: create output directory: %w", err)
	}

	s := &FileSink{dir: dir, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string { return s.dir }

// Save implements Sink.
func (s *FileSink) Save(ctx context.Context, img gallery.Image) (string, error) {
	return s.write(ctx, img.Data, img.MIME)
}

// SaveBytes writes raw encoded data, e.g. a rendered composite.
func (s *FileSink) SaveBytes(ctx context.Context, data []byte, mime string) (string, error) {
	return s.write(ctx, data, mime)
}

func (s *FileSink) write(ctx context.Context, data []byte, mime string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		s.failed.Add(1)
		return "", ErrEmptyImage
	}

	base := fmt.Sprintf("%s%d", FilePrefix, s.now().UnixMilli())
	ext := Extension(mime)

	for i := 0; i < maxCollisions; i++ {
		name := base + "." + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d.%s", base, i, ext)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			s.failed.Add(1)
			return "", fmt.Errorf("download: create file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			s.failed.Add(1)
			return "", fmt.Errorf("download: write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			s.failed.Add(1)
			return "", fmt.Errorf("download: close %s: %w", name, err)
		}

		s.saved.Add(1)
		s.bytes.Add(uint64(len(data)))
		slog.Debug("download: image saved", "path", path, "size_bytes", len(data))
		return path, nil
	}

	s.failed.Add(1)
	return "", fmt.Errorf("download: no free file name for %s", base)
}

// Stats returns export counters.
func (s *FileSink) Stats() Stats {
	return Stats{
		Saved:  s.saved.Load(),
		Failed: s.failed.Load(),
		Bytes:  s.bytes.Load(),
	}
}

// Extension maps an image MIME type to a file extension. Unknown types
// fall back to png, the booth's native encoding.
func Extension(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
