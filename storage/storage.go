// Package storage provides the hierarchical file storage capability backing
// projects and repositories.
//
// A Backend exposes read/write/exists/makedirs operations scoped to a
// declared scheme; store construction parses a location string into a
// (scheme, path) pair and binds to the matching backend. The package ships
// local filesystem, in-memory and redis backends, plus the staged Batch
// used to apply a save's writes as a unit with rollback on failure.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Common errors.
var (
	ErrNotFound      = errors.New("file not found")
	ErrUnknownScheme = errors.New("unknown storage scheme")
)

// Backend is a scheme-scoped file store.
type Backend interface {
	// Scheme is the location scheme the backend serves, e.g. "file".
	Scheme() string

	// ReadFile returns the contents of path. Missing files report
	// ErrNotFound.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile replaces the contents of path. The write is all-or-nothing:
	// a failed write never leaves a partial file behind.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Exists reports whether path holds a file.
	Exists(ctx context.Context, path string) (bool, error)

	// MakeDirs creates the directory path and any missing parents.
	MakeDirs(ctx context.Context, path string) error

	// Remove deletes the file at path. Removing a missing file is not an
	// error.
	Remove(ctx context.Context, path string) error
}

// ParseLocation splits a location string into its scheme and path. A
// location without a scheme is local ("file").
func ParseLocation(location string) (scheme, path string) {
	if i := strings.Index(location, "://"); i >= 0 {
		return location[:i], location[i+3:]
	}
	return "file", location
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]func() (Backend, error){
		"file":   func() (Backend, error) { return NewLocal(), nil },
		"memory": func() (Backend, error) { return sharedMemory, nil },
	}

	// The memory scheme resolves to one process-wide store so that two
	// store instances opened on the same memory:// location see the same
	// files.
	sharedMemory = NewMemory()
)

// RegisterBackend installs a backend factory for a scheme, replacing any
// previous registration.
func RegisterBackend(scheme string, factory func() (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[scheme] = factory
}

// ForScheme returns a backend for the given scheme.
func ForScheme(scheme string) (Backend, error) {
	backendsMu.RLock()
	factory, ok := backends[scheme]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return factory()
}
