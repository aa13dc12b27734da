// Package repository implements the durable, append-only versioned
// artifact store.
//
// A repository holds an ordered collection of artifact records per name.
// Versions are assigned by the store in add order, starting at 0 for each
// name. Payload writes are deferred: logging an artifact only appends a
// dirty record, and Save later writes every pending payload plus the
// metadata document as one atomic batch, rolling the in-memory collection
// back if any write fails.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lazyscribe/lazyscribe-go/artifact"
	"github.com/lazyscribe/lazyscribe-go/internal/metrics"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

// Mode controls what an opened store may do.
type Mode string

const (
	// ModeRead loads existing records; all mutating operations fail.
	ModeRead Mode = "r"

	// ModeAppend loads existing records and allows new ones.
	ModeAppend Mode = "a"

	// ModeWrite starts empty, ignoring any existing metadata.
	ModeWrite Mode = "w"

	// ModeWritePlus loads existing records and allows everything.
	ModeWritePlus Mode = "w+"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRead, ModeAppend, ModeWrite, ModeWritePlus:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Entry names one pinned (artifact, version) pair. It serializes as a
// two-element [name, version] array.
type Entry struct {
	Name    string
	Version int
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Name, e.Version})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair [2]any
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	name, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("invalid release entry: %s", data)
	}
	version, ok := pair[1].(float64)
	if !ok {
		return fmt.Errorf("invalid release entry: %s", data)
	}
	e.Name = name
	e.Version = int(version)
	return nil
}

// Repository is the versioned artifact store.
type Repository struct {
	location string
	scheme   string
	path     string
	dir      string
	mode     Mode
	backend  storage.Backend
	logger   *zap.Logger
	stats    *metrics.Collector

	artifacts []*artifact.Artifact
}

// Option configures Open.
type Option func(*Repository)

// WithMode sets the open mode. The default is ModeWrite.
func WithMode(m Mode) Option {
	return func(r *Repository) { r.mode = m }
}

// WithBackend binds the store to an explicit backend instead of resolving
// the location scheme through the backend registry.
func WithBackend(b storage.Backend) Option {
	return func(r *Repository) { r.backend = b }
}

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Open binds a repository to a location string such as
// "experiments/repository.json", "memory://scratch/repository.json" or
// "redis://models/repository.json". In ModeRead, ModeAppend and
// ModeWritePlus an existing metadata document at the location is loaded.
func Open(ctx context.Context, location string, opts ...Option) (*Repository, error) {
	scheme, path := storage.ParseLocation(location)
	r := &Repository{
		location: location,
		scheme:   scheme,
		path:     path,
		dir:      storage.Dir(path),
		mode:     ModeWrite,
		logger:   zap.NewNop(),
		stats:    metrics.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "repository"))

	if _, err := ParseMode(string(r.mode)); err != nil {
		return nil, err
	}

	if r.backend == nil {
		backend, err := storage.ForScheme(scheme)
		if err != nil {
			return nil, err
		}
		r.backend = backend
	}
	if r.backend.Scheme() != scheme {
		return nil, fmt.Errorf("backend scheme %q does not match location scheme %q", r.backend.Scheme(), scheme)
	}

	if r.mode == ModeRead || r.mode == ModeAppend || r.mode == ModeWritePlus {
		exists, err := r.backend.Exists(ctx, r.path)
		if err != nil {
			return nil, err
		}
		if exists {
			if err := r.load(ctx); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// load reads the metadata document and rebuilds the record collection.
// Rebuilt records are clean and carry no payload.
func (r *Repository) load(ctx context.Context) error {
	data, err := r.backend.ReadFile(ctx, r.path)
	if err != nil {
		return fmt.Errorf("failed to read repository metadata: %w", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse repository metadata: %w", err)
	}

	artifacts := make([]*artifact.Artifact, 0, len(entries))
	for _, entry := range entries {
		rec, err := artifact.FromMetadata(entry)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, rec)
	}
	r.artifacts = artifacts

	r.logger.Debug("loaded repository metadata",
		zap.String("location", r.location),
		zap.Int("artifacts", len(artifacts)),
	)
	return nil
}

// Location returns the location string the store was opened with.
func (r *Repository) Location() string { return r.location }

// Scheme returns the backing storage scheme.
func (r *Repository) Scheme() string { return r.scheme }

// Mode returns the open mode.
func (r *Repository) Mode() Mode { return r.mode }

// Artifacts returns the record collection in insertion order.
func (r *Repository) Artifacts() []*artifact.Artifact {
	out := make([]*artifact.Artifact, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// ArtifactNames returns the distinct artifact names, sorted.
func (r *Repository) ArtifactNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, rec := range r.artifacts {
		if !seen[rec.Name] {
			seen[rec.Name] = true
			names = append(names, rec.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Contains reports whether any record with the given name exists.
func (r *Repository) Contains(name string) bool {
	for _, rec := range r.artifacts {
		if rec.Name == name {
			return true
		}
	}
	return false
}

// HasPendingWrites reports whether any record still needs a payload write.
func (r *Repository) HasPendingWrites() bool {
	for _, rec := range r.artifacts {
		if rec.Dirty {
			return true
		}
	}
	return false
}

// LogArtifact appends a new version of the named artifact. The record's
// version is one past the highest existing version for the name, or 0 for
// a new name. Nothing touches the backend until Save.
func (r *Repository) LogArtifact(name string, value any, handlerAlias string, opts ...artifact.Option) (*artifact.Artifact, error) {
	if r.mode == ModeRead {
		return nil, ErrReadOnly
	}

	handler, err := artifact.Lookup(handlerAlias)
	if err != nil {
		return nil, err
	}

	opts = append(opts, artifact.WithVersion(r.nextVersion(name)))
	rec := artifact.New(handler, name, value, opts...)
	r.artifacts = append(r.artifacts, rec)

	if handler.OutputOnly() {
		r.logger.Warn("artifact is output-only and will not read back as the original value",
			zap.String("name", name),
			zap.String("handler", handlerAlias),
		)
	}
	r.stats.ArtifactLogged("repository", handlerAlias)

	r.logger.Debug("logged artifact",
		zap.String("name", name),
		zap.Int("version", rec.Version),
		zap.String("handler", handlerAlias),
	)
	return rec, nil
}

// Append adds a record promoted from another store. The record keeps its
// creation timestamp and payload, receives the next version for its name,
// and is written on the next Save. The record must be strictly newer than
// the latest stored version of the same name.
func (r *Repository) Append(rec *artifact.Artifact) error {
	if r.mode == ModeRead {
		return ErrReadOnly
	}

	if latest := r.latest(rec.Name); latest != nil && !rec.CreatedAt.After(latest.CreatedAt) {
		return fmt.Errorf("%w: %q at %s, latest is %s",
			ErrStale, rec.Name,
			rec.CreatedAt.Format(artifact.TimeLayout),
			latest.CreatedAt.Format(artifact.TimeLayout),
		)
	}

	rec.Version = r.nextVersion(rec.Name)
	rec.Dirty = true
	r.artifacts = append(r.artifacts, rec)

	r.logger.Debug("appended promoted artifact",
		zap.String("name", rec.Name),
		zap.Int("version", rec.Version),
	)
	return nil
}

// Filter returns a read-only repository scoped to exactly the given
// (name, version) pairs. Reads against the filtered store cannot see any
// other version, even after this store advances.
func (r *Repository) Filter(entries []Entry) (*Repository, error) {
	filtered := &Repository{
		location: r.location,
		scheme:   r.scheme,
		path:     r.path,
		dir:      r.dir,
		mode:     ModeRead,
		backend:  r.backend,
		logger:   r.logger,
		stats:    r.stats,
	}
	for _, entry := range entries {
		rec, err := r.GetArtifact(entry.Name, ByIndex(entry.Version))
		if err != nil {
			return nil, err
		}
		filtered.artifacts = append(filtered.artifacts, rec.Clone())
	}
	return filtered, nil
}

// latest returns the record with the greatest creation timestamp for the
// name, ignoring expiry, or nil.
func (r *Repository) latest(name string) *artifact.Artifact {
	var out *artifact.Artifact
	for _, rec := range r.artifacts {
		if rec.Name != name {
			continue
		}
		if out == nil || !rec.CreatedAt.Before(out.CreatedAt) {
			out = rec
		}
	}
	return out
}

func (r *Repository) nextVersion(name string) int {
	version := -1
	for _, rec := range r.artifacts {
		if rec.Name == name && rec.Version > version {
			version = rec.Version
		}
	}
	return version + 1
}

// payloadPath is the backend path for a record's payload bytes.
func (r *Repository) payloadPath(rec *artifact.Artifact) string {
	return storage.Join(r.dir, rec.Name, rec.FileName)
}
