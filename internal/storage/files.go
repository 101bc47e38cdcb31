// Package storage keeps uploaded page images on disk. Page records in
// the database hold opaque references into this store rather than
// image bytes.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Files stores page images under a single directory with
// UUID-derived names. References returned by Save are the only valid
// inputs to Read; anything path-like is rejected.
type Files struct {
	dir string
}

// NewFiles creates the backing directory if needed.
func NewFiles(dataDir string) (*Files, error) {
	dir := filepath.Join(dataDir, "pages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create page store %s: %w", dir, err)
	}
	return &Files{dir: dir}, nil
}

// Save writes image bytes and returns the reference to read them back.
func (f *Files) Save(data []byte) (string, error) {
	ref := uuid.NewString() + ".img"
	if err := os.WriteFile(filepath.Join(f.dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("save page image: %w", err)
	}
	return ref, nil
}

// Read returns the image bytes for a reference produced by Save.
func (f *Files) Read(ref string) ([]byte, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("read page image %s: %w", ref, err)
	}
	return data, nil
}

// Remove deletes a stored image. Missing files are not an error so
// cleanup can be retried.
func (f *Files) Remove(ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(f.dir, ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove page image %s: %w", ref, err)
	}
	return nil
}

func validateRef(ref string) error {
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid page image reference %q", ref)
	}
	return nil
}
