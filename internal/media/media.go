package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// URLPrefix is the public path prefix image references resolve under.
const URLPrefix = "/static/uploads/"

// DefaultMaxBytes caps uploaded images at 10 MiB.
const DefaultMaxBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("invalid file type. Allowed: PNG, JPG, JPEG, GIF, WebP, BMP")
	ErrTooLarge        = errors.New("file size exceeds 10MB limit")
)

var defaultExtensions = []string{"png", "jpg", "jpeg", "gif", "webp", "bmp"}

// BlobStore persists an uploaded blob under a key that must not already
// exist.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Handler validates uploaded image attachments and stores them, producing
// a stable publicly resolvable reference path.
type Handler struct {
	blobs    BlobStore
	maxBytes int64
	allowed  map[string]struct{}
}

// NewHandler builds a media handler over the given blob store. Zero
// maxBytes and empty extensions fall back to the defaults.
func NewHandler(blobs BlobStore, maxBytes int64, extensions []string) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(extensions) == 0 {
		extensions = defaultExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &Handler{blobs: blobs, maxBytes: maxBytes, allowed: allowed}
}

// Store validates the upload and writes it under a collision-resistant
// generated name. A fresh random component per call means an existing
// blob is never overwritten.
func (h *Handler) Store(ctx context.Context, originalFilename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if _, ok := h.allowed[ext]; !ok {
		return "", ErrUnsupportedType
	}
	if int64(len(data)) > h.maxBytes {
		return "", ErrTooLarge
	}
	key := uuid.New().String() + "_" + safeFilename(originalFilename)
	contentType := mimetype.Detect(data).String()
	if err := h.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	slog.Debug("image stored", "key", key, "bytes", len(data), "content_type", contentType)
	return URLPrefix + key, nil
}

func safeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" {
		return "image"
	}
	return name
}
