package storage

import (
	"context"
	"fmt"
)

type stagedFile struct {
	path string
	data []byte
}

// Batch stages a set of file writes against one backend and applies them
// as a unit. Writes happen in staging order; on the first failure every
// file the batch already wrote is removed and the error is returned, so a
// failed commit leaves nothing of the batch visible.
type Batch struct {
	backend Backend
	dirs    []string
	files   []stagedFile
}

// NewBatch returns an empty batch against backend.
func NewBatch(backend Backend) *Batch {
	return &Batch{backend: backend}
}

// MakeDirs records a directory to create before any file is written.
func (b *Batch) MakeDirs(path string) {
	for _, d := range b.dirs {
		if d == path {
			return
		}
	}
	b.dirs = append(b.dirs, path)
}

// Stage records a file write.
func (b *Batch) Stage(path string, data []byte) {
	b.files = append(b.files, stagedFile{path: path, data: data})
}

// Len reports the number of staged file writes.
func (b *Batch) Len() int { return len(b.files) }

// Commit creates the recorded directories and writes the staged files in
// order. On failure, files written by this commit are removed best-effort
// before the error is returned.
func (b *Batch) Commit(ctx context.Context) error {
	for _, dir := range b.dirs {
		if err := b.backend.MakeDirs(ctx, dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	var written []string
	for _, f := range b.files {
		if err := b.backend.WriteFile(ctx, f.path, f.data); err != nil {
			for _, path := range written {
				b.backend.Remove(ctx, path)
			}
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		written = append(written, f.path)
	}

	return nil
}
