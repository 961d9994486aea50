package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists the collection as one JSON document. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash mid-write leaves the previous collection intact.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("gallery: file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("gallery: mkdir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) ([]Image, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gallery: read %s: %w", s.path, err)
	}
	return decodePayload(data)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, images []Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodePayload(images)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".gallery-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", ErrStorage, err)
	}
	return nil
}
