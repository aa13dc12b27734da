// Package project implements the working store: a collection of
// experiments with structured metadata and deferred-write artifacts, plus
// the promotion protocol that republishes experiment artifacts into a
// durable repository.
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/user"
	"strings"

	"go.uber.org/zap"

	"github.com/lazyscribe/lazyscribe-go/artifact"
	"github.com/lazyscribe/lazyscribe-go/internal/metrics"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

// Mode controls what an opened project may do.
type Mode string

const (
	// ModeRead loads existing experiments; all mutating operations fail.
	ModeRead Mode = "r"

	// ModeAppend loads existing experiments and allows new ones, but
	// loaded experiments stay read-only.
	ModeAppend Mode = "a"

	// ModeWrite starts empty, ignoring any existing metadata.
	ModeWrite Mode = "w"

	// ModeWritePlus loads existing experiments and allows everything,
	// including edits to loaded experiments.
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

// Project is the working store for experiment tracking.
type Project struct {
	location string
	scheme   string
	path     string
	dir      string
	mode     Mode
	author   string
	backend  storage.Backend
	logger   *zap.Logger
	stats    *metrics.Collector
	catalog  *Catalog

	experiments []*Experiment
}

// Option configures Open.
type Option func(*Project)

// WithMode sets the open mode. The default is ModeWrite.
func WithMode(m Mode) Option {
	return func(p *Project) { p.mode = m }
}

// WithAuthor sets the author recorded on new experiments and on edits.
// The default is the current OS user.
func WithAuthor(author string) Option {
	return func(p *Project) { p.author = author }
}

// WithBackend binds the project to an explicit backend instead of
// resolving the location scheme through the backend registry.
func WithBackend(b storage.Backend) Option {
	return func(p *Project) { p.backend = b }
}

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Project) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCatalog registers the project in a catalog, which is also used to
// resolve cross-project experiment dependencies when loading.
func WithCatalog(c *Catalog) Option {
	return func(p *Project) { p.catalog = c }
}

// Open binds a project to a location string such as "project.json" or
// "memory://team/project.json". In ModeRead, ModeAppend and ModeWritePlus
// an existing metadata document at the location is loaded.
func Open(ctx context.Context, location string, opts ...Option) (*Project, error) {
	scheme, path := storage.ParseLocation(location)
	p := &Project{
		location: location,
		scheme:   scheme,
		path:     path,
		dir:      storage.Dir(path),
		mode:     ModeWrite,
		logger:   zap.NewNop(),
		stats:    metrics.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "project"))

	if _, err := ParseMode(string(p.mode)); err != nil {
		return nil, err
	}
	if p.author == "" {
		p.author = currentUser()
	}

	if p.backend == nil {
		backend, err := storage.ForScheme(scheme)
		if err != nil {
			return nil, err
		}
		p.backend = backend
	}
	if p.backend.Scheme() != scheme {
		return nil, fmt.Errorf("backend scheme %q does not match location scheme %q", p.backend.Scheme(), scheme)
	}

	if p.mode == ModeRead || p.mode == ModeAppend || p.mode == ModeWritePlus {
		exists, err := p.backend.Exists(ctx, p.path)
		if err != nil {
			return nil, err
		}
		if exists {
			if err := p.load(ctx); err != nil {
				return nil, err
			}
		}
	}

	if p.catalog != nil {
		p.catalog.register(p)
	}
	return p, nil
}

func currentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}

// load reads the metadata document and rebuilds the experiment
// collection. Rebuilt artifacts are clean and carry no payload. In
// ModeRead and ModeAppend the loaded experiments are read-only.
func (p *Project) load(ctx context.Context) error {
	data, err := p.backend.ReadFile(ctx, p.path)
	if err != nil {
		return fmt.Errorf("failed to read project metadata: %w", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse project metadata: %w", err)
	}

	experiments := make([]*Experiment, 0, len(entries))
	for _, entry := range entries {
		exp, err := p.experimentFromMetadata(entry)
		if err != nil {
			return err
		}
		exp.readonly = p.mode == ModeRead || p.mode == ModeAppend
		experiments = append(experiments, exp)
	}
	p.experiments = experiments

	p.logger.Debug("loaded project metadata",
		zap.String("location", p.location),
		zap.Int("experiments", len(experiments)),
	)
	return nil
}

// Location returns the location string the project was opened with.
func (p *Project) Location() string { return p.location }

// Scheme returns the backing storage scheme.
func (p *Project) Scheme() string { return p.scheme }

// Mode returns the open mode.
func (p *Project) Mode() Mode { return p.mode }

// Author returns the author recorded on new experiments.
func (p *Project) Author() string { return p.author }

// Experiments returns the experiment collection in insertion order.
func (p *Project) Experiments() []*Experiment {
	out := make([]*Experiment, len(p.experiments))
	copy(out, p.experiments)
	return out
}

// Log creates a new experiment, appends it to the project and returns it
// for metric, parameter and artifact logging.
func (p *Project) Log(name string) (*Experiment, error) {
	if p.mode == ModeRead {
		return nil, ErrReadOnly
	}
	exp := newExperiment(p, name)
	p.experiments = append(p.experiments, exp)

	p.logger.Debug("logged experiment",
		zap.String("name", name),
		zap.String("slug", exp.Slug),
	)
	return exp, nil
}

// Append adds an existing experiment, typically one built elsewhere.
func (p *Project) Append(exp *Experiment) error {
	if p.mode == ModeRead {
		return ErrReadOnly
	}
	p.experiments = append(p.experiments, exp)
	return nil
}

// Get returns the experiment matching the given slug or short slug. When
// several experiments share a short slug, the first one added wins.
func (p *Project) Get(slug string) (*Experiment, error) {
	for _, exp := range p.experiments {
		if exp.Slug == slug || exp.ShortSlug == slug {
			return exp, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrExperimentNotFound, slug)
}

// Contains reports whether any experiment matches the slug or short slug.
func (p *Project) Contains(slug string) bool {
	_, err := p.Get(slug)
	return err == nil
}

// Save writes the metadata document and every pending artifact payload as
// one atomic batch. Payloads are staged ahead of the metadata document,
// so a failed payload write also discards the metadata write. On failure
// every experiment is rolled back to exclude artifacts that were never
// durably persisted, and the error is returned wrapping ErrSave.
//
// Experiments edited since open are re-attributed to the current author
// before the document is written.
func (p *Project) Save(ctx context.Context) error {
	if p.mode == ModeRead {
		return ErrReadOnly
	}

	for _, exp := range p.experiments {
		if exp.edited {
			exp.LastUpdatedBy = p.author
		}
	}

	batch := storage.NewBatch(p.backend)
	batch.MakeDirs(p.dir)

	var pending []*artifact.Artifact
	for _, exp := range p.experiments {
		for _, rec := range exp.Artifacts {
			if !rec.Dirty {
				continue
			}
			data, err := p.payloadBytes(ctx, rec)
			if err != nil {
				p.rollback()
				p.stats.SaveFailed("project")
				return fmt.Errorf("%w: artifact %q: %w", ErrSave, rec.Name, err)
			}
			batch.MakeDirs(exp.Path())
			batch.Stage(storage.Join(exp.Path(), rec.FileName), data)
			pending = append(pending, rec)
		}
	}

	metadata, err := p.metadataBytes()
	if err != nil {
		p.rollback()
		p.stats.SaveFailed("project")
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	batch.Stage(p.path, metadata)

	if err := batch.Commit(ctx); err != nil {
		p.rollback()
		p.stats.SaveFailed("project")
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	for _, rec := range pending {
		rec.Dirty = false
	}
	for _, exp := range p.experiments {
		exp.edited = false
		exp.displaced = nil
	}
	p.stats.SaveSucceeded("project")

	p.logger.Debug("saved project",
		zap.String("location", p.location),
		zap.Int("payloads", len(pending)),
	)
	return nil
}

func (p *Project) payloadBytes(ctx context.Context, rec *artifact.Artifact) ([]byte, error) {
	if rec.Value != nil {
		handler, err := artifact.Lookup(rec.Handler)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := handler.Write(rec.Value, &buf, rec.WriterOptions); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if src := rec.Source(); src != nil {
		return src(ctx)
	}
	return nil, fmt.Errorf("record has neither an in-memory value nor a payload source")
}

func (p *Project) metadataBytes() ([]byte, error) {
	entries := make([]map[string]any, 0, len(p.experiments))
	for _, exp := range p.experiments {
		entries = append(entries, exp.metadata())
	}
	return json.MarshalIndent(entries, "", "  ")
}

// rollback drops every artifact that has not been durably written and
// restores any durably written record an overwrite displaced, leaving the
// collection exactly as durable storage has it.
func (p *Project) rollback() {
	for _, exp := range p.experiments {
		kept := exp.Artifacts[:0]
		for _, rec := range exp.Artifacts {
			if !rec.Dirty {
				kept = append(kept, rec)
				continue
			}
			if orig, ok := exp.displaced[rec.Name]; ok {
				kept = append(kept, orig)
			}
		}
		exp.Artifacts = kept
		exp.displaced = nil
	}
}

func (p *Project) experimentFromMetadata(m map[string]any) (*Experiment, error) {
	exp := &Experiment{
		Name:          stringField(m, "name"),
		Slug:          stringField(m, "slug"),
		ShortSlug:     stringField(m, "short_slug"),
		Author:        stringField(m, "author"),
		LastUpdatedBy: stringField(m, "last_updated_by"),
		Metrics:       mapField(m, "metrics"),
		Parameters:    mapField(m, "parameters"),
		Dependencies:  make(map[string]*Experiment),
		projectPath:   p.path,
		dir:           p.dir,
		backend:       p.backend,
		logger:        p.logger,
		stats:         p.stats,
	}

	var err error
	if exp.CreatedAt, err = artifact.ParseTime(stringField(m, "created_at")); err != nil {
		return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}
	if exp.LastUpdated, err = artifact.ParseTime(stringField(m, "last_updated")); err != nil {
		return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}

	if tags, ok := m["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				exp.Tags = append(exp.Tags, s)
			}
		}
	}

	if tests, ok := m["tests"].([]any); ok {
		for _, raw := range tests {
			tm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			exp.Tests = append(exp.Tests, &Test{
				Name:        stringField(tm, "name"),
				Description: stringField(tm, "description"),
				Metrics:     mapField(tm, "metrics"),
			})
		}
	}

	if arts, ok := m["artifacts"].([]any); ok {
		for _, raw := range arts {
			am, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			rec, err := artifact.FromMetadata(am)
			if err != nil {
				return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
			}
			exp.Artifacts = append(exp.Artifacts, rec)
		}
	}

	if deps, ok := m["dependencies"].([]any); ok {
		for _, raw := range deps {
			ref, ok := raw.(string)
			if !ok {
				continue
			}
			dep, err := p.resolveDependency(ref)
			if err != nil {
				return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
			}
			exp.Dependencies[dep.ShortSlug] = dep
		}
	}

	return exp, nil
}

// resolveDependency looks up a "projectPath|slug" reference through the
// catalog the project was opened with.
func (p *Project) resolveDependency(ref string) (*Experiment, error) {
	path, slug, found := strings.Cut(ref, "|")
	if !found {
		return nil, fmt.Errorf("invalid dependency reference %q", ref)
	}
	if p.catalog == nil {
		return nil, fmt.Errorf("dependency %q needs a catalog to resolve", ref)
	}
	return p.catalog.resolve(path, slug)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return make(map[string]any)
}
