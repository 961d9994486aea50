package gallery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "gallery.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	g := openTestGallery(t, store)
	imgs := appendN(g, 3)
	g.Remove(ctx, 1)

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != imgs[0].ID || loaded[1].ID != imgs[2].ID {
		t.Errorf("unexpected persisted order: %+v", loaded)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the gallery file, found %d entries", len(entries))
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	os.WriteFile(path, []byte("{truncated"), 0o644)

	store, _ := NewFileStore(path)
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}

	g := openTestGallery(t, store)
	if g.Len() != 0 {
		t.Errorf("expected empty gallery over corrupt file, got %d", g.Len())
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSQLiteStore(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"memory", func(*testing.T) string { return ":memory:" }},
		{"file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "db", "booth.db") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenSQLite(tt.path(t), "")
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			defer store.Close()

			ctx := context.Background()
			if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			g := openTestGallery(t, store)
			imgs := appendN(g, 2)

			loaded, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(loaded) != 2 || loaded[1].ID != imgs[1].ID {
				t.Errorf("unexpected persisted collection: %+v", loaded)
			}
			if string(loaded[0].Data) != string(imgs[0].Data) {
				t.Error("image data did not round trip")
			}
		})
	}
}

func TestSQLiteStoreCollectionsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booth.db")
	ctx := context.Background()

	a, err := OpenSQLite(path, "booth-a")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer a.Close()
	b, _ := OpenSQLite(path, "booth-b")
	defer b.Close()

	if err := a.Save(ctx, []Image{{ID: "1", Data: []byte{1}}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected booth-b to be empty, got %v", err)
	}
}

func TestSQLiteStoreLegacySeed(t *testing.T) {
	store, _ := OpenSQLite(":memory:", DefaultCollection)
	defer store.Close()

	ctx := context.Background()
	if err := store.SeedRaw(ctx, []byte(`["data:image/png;base64,AQID"]`)); err != nil {
		t.Fatalf("SeedRaw failed: %v", err)
	}

	g := openTestGallery(t, store)
	if g.Len() != 1 {
		t.Fatalf("expected 1 imported image, got %d", g.Len())
	}
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMIME string
		wantErr  bool
	}{
		{"png", "data:image/png;base64,AQID", "image/png", false},
		{"no mime", "data:;base64,AQID", "image/png", false},
		{"not data url", "https://example.com/a.png", "", true},
		{"no comma", "data:image/png;base64", "", true},
		{"not base64", "data:image/png,AQID", "", true},
		{"bad base64", "data:image/png;base64,@@", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, raw, err := ParseDataURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDataURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if mime != tt.wantMIME || len(raw) != 3 {
				t.Errorf("got mime=%q raw=%v", mime, raw)
			}
		})
	}
}

func TestDataURLMatchesParse(t *testing.T) {
	img := Image{Data: []byte("hello"), MIME: "image/jpeg"}
	mime, raw, err := ParseDataURL(DataURL(img))
	if err != nil || mime != "image/jpeg" || string(raw) != "hello" {
		t.Errorf("DataURL output not parseable: mime=%q raw=%q err=%v", mime, raw, err)
	}
}
