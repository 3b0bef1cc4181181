package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newDiskHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	return NewHandler(blobs, 0, nil), dir
}

func TestStoreRejectsUnsupportedExtension(t *testing.T) {
	h, _ := newDiskHandler(t)
	for _, name := range []string{"x.exe", "x", "x.png.sh", "script.js"} {
		if _, err := h.Store(context.Background(), name, []byte("data")); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("%s: expected ErrUnsupportedType, got %v", name, err)
		}
	}
}

func TestStoreAcceptsAllowedExtensionsCaseInsensitive(t *testing.T) {
	h, _ := newDiskHandler(t)
	for _, name := range []string{"a.png", "b.JPG", "c.Jpeg", "d.gif", "e.webp", "f.BMP"} {
		url, err := h.Store(context.Background(), name, []byte("data"))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.HasPrefix(url, URLPrefix) {
			t.Fatalf("%s: unexpected url %q", name, url)
		}
	}
}

func TestStoreRejectsOversizedUpload(t *testing.T) {
	h, _ := newDiskHandler(t)
	big := make([]byte, 15<<20)
	if _, err := h.Store(context.Background(), "x.png", big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestStoreGeneratesDistinctReferences(t *testing.T) {
	h, dir := newDiskHandler(t)
	ctx := context.Background()

	first, err := h.Store(ctx, "x.png", []byte("same"))
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	second, err := h.Store(ctx, "x.png", []byte("same"))
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct references, both %q", first)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 stored files, got %d", len(entries))
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_x.png") {
			t.Fatalf("stored name should keep the original filename: %q", e.Name())
		}
	}
}

func TestStoreSanitizesFilename(t *testing.T) {
	h, dir := newDiskHandler(t)
	url, err := h.Store(context.Background(), "../../evil.png", []byte("data"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if strings.Contains(url, "..") {
		t.Fatalf("reference leaks path traversal: %q", url)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || strings.Contains(entries[0].Name(), "..") {
		t.Fatalf("unexpected stored entries: %v", entries)
	}
}

func TestDiskStoreNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	ctx := context.Background()

	if err := blobs.Put(ctx, "key.png", bytes.NewReader([]byte("first")), 5, "image/png"); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := blobs.Put(ctx, "key.png", bytes.NewReader([]byte("second")), 6, "image/png"); err == nil {
		t.Fatal("second put on the same key must fail")
	}
	data, err := os.ReadFile(filepath.Join(dir, "key.png"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("original blob was overwritten: %q", data)
	}
}
