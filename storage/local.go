package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local is the filesystem backend for the "file" scheme.
type Local struct{}

// NewLocal constructs a local filesystem backend.
func NewLocal() *Local { return &Local{} }

func (l *Local) Scheme() string { return "file" }

func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFile writes to a unique temp file in the target directory and
// renames it into place, so a failed write never leaves a partial file.
func (l *Local) WriteFile(ctx context.Context, path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (l *Local) MakeDirs(ctx context.Context, path string) error {
	return os.MkdirAll(path, 0o755)
}

func (l *Local) Remove(ctx context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Dir returns the parent directory of path under local semantics.
func Dir(path string) string { return filepath.ToSlash(filepath.Dir(path)) }

// Join joins path segments with forward slashes, the separator shared by
// every backend.
func Join(elem ...string) string { return filepath.ToSlash(filepath.Join(elem...)) }
