package project

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lazyscribe/lazyscribe-go/artifact"
	"github.com/lazyscribe/lazyscribe-go/internal/metrics"
	"github.com/lazyscribe/lazyscribe-go/internal/slug"
	"github.com/lazyscribe/lazyscribe-go/repository"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

// Test is a named group of non-global metrics within an experiment.
type Test struct {
	Name        string
	Description string
	Metrics     map[string]any
}

// LogMetric records a metric on the test, overwriting any existing key.
func (t *Test) LogMetric(name string, value any) {
	if t.Metrics == nil {
		t.Metrics = make(map[string]any)
	}
	t.Metrics[name] = value
}

// Experiment is a single run inside a project: structured metadata
// (metrics, parameters, tags, tests) plus the artifacts logged during the
// run. Experiments are created through Project.Log.
type Experiment struct {
	Name          string
	Slug          string
	ShortSlug     string
	Author        string
	LastUpdatedBy string
	Metrics       map[string]any
	Parameters    map[string]any
	Tags          []string
	CreatedAt     time.Time
	LastUpdated   time.Time

	// Dependencies maps short slugs of upstream experiments, usually in
	// other projects, to the experiments themselves.
	Dependencies map[string]*Experiment

	Tests     []*Test
	Artifacts []*artifact.Artifact

	readonly    bool
	edited      bool
	projectPath string
	dir         string
	backend     storage.Backend
	logger      *zap.Logger
	stats       *metrics.Collector

	// displaced holds, per artifact name, the durably written record that
	// an overwrite replaced. A failed save restores these.
	displaced map[string]*artifact.Artifact
}

func newExperiment(p *Project, name string) *Experiment {
	now := artifact.Now()
	e := &Experiment{
		Name:          name,
		ShortSlug:     slug.Make(name),
		Slug:          slug.Make(fmt.Sprintf("%s-%s", name, now.Format("20060102150405"))),
		Author:        p.author,
		LastUpdatedBy: p.author,
		Metrics:       make(map[string]any),
		Parameters:    make(map[string]any),
		Dependencies:  make(map[string]*Experiment),
		CreatedAt:     now,
		LastUpdated:   now,
		projectPath:   p.path,
		dir:           p.dir,
		backend:       p.backend,
		logger:        p.logger,
		stats:         p.stats,
	}
	return e
}

// touch marks the experiment edited and advances its last-updated
// timestamp. Save uses the edited flag to re-attribute the experiment to
// the current author.
func (e *Experiment) touch() {
	e.edited = true
	e.LastUpdated = artifact.Now()
}

// Path is the directory associated with the experiment, where its artifact
// payloads are persisted.
func (e *Experiment) Path() string {
	return storage.Join(e.dir, e.Slug)
}

// ReadOnly reports whether the experiment was loaded in read-only mode.
func (e *Experiment) ReadOnly() bool { return e.readonly }

// LogMetric records a global metric, overwriting any existing key.
func (e *Experiment) LogMetric(name string, value any) error {
	if e.readonly {
		return ErrReadOnly
	}
	e.touch()
	e.Metrics[name] = value
	return nil
}

// LogParameter records a run parameter, overwriting any existing key.
func (e *Experiment) LogParameter(name string, value any) error {
	if e.readonly {
		return ErrReadOnly
	}
	e.touch()
	e.Parameters[name] = value
	return nil
}

// AddTags appends tags not already present.
func (e *Experiment) AddTags(tags ...string) error {
	if e.readonly {
		return ErrReadOnly
	}
	e.touch()
	for _, tag := range tags {
		exists := false
		for _, t := range e.Tags {
			if t == tag {
				exists = true
				break
			}
		}
		if !exists {
			e.Tags = append(e.Tags, tag)
		}
	}
	return nil
}

// LogTest adds a test to the experiment and returns it for metric logging.
func (e *Experiment) LogTest(name, description string) (*Test, error) {
	if e.readonly {
		return nil, ErrReadOnly
	}
	test := &Test{Name: name, Description: description, Metrics: make(map[string]any)}
	e.Tests = append(e.Tests, test)
	e.touch()
	return test, nil
}

// AddDependency records an upstream experiment, keyed by its short slug.
func (e *Experiment) AddDependency(dep *Experiment) error {
	if e.readonly {
		return ErrReadOnly
	}
	e.touch()
	e.Dependencies[dep.ShortSlug] = dep
	return nil
}

// ArtifactOption configures artifact logging on an experiment.
type ArtifactOption func(*artifactOptions)

type artifactOptions struct {
	overwrite bool
	recOpts   []artifact.Option
}

// WithOverwrite replaces an existing artifact with the same name instead
// of failing.
func WithOverwrite() ArtifactOption {
	return func(o *artifactOptions) { o.overwrite = true }
}

// WithFileName overrides the derived payload file name.
func WithFileName(fname string) ArtifactOption {
	return func(o *artifactOptions) { o.recOpts = append(o.recOpts, artifact.WithFileName(fname)) }
}

// WithCreatedAt overrides the record creation timestamp.
func WithCreatedAt(t time.Time) ArtifactOption {
	return func(o *artifactOptions) { o.recOpts = append(o.recOpts, artifact.WithCreatedAt(t)) }
}

// WithWriterOptions supplies handler-specific write parameters.
func WithWriterOptions(opts map[string]any) ArtifactOption {
	return func(o *artifactOptions) { o.recOpts = append(o.recOpts, artifact.WithWriterOptions(opts)) }
}

// WithExpiry marks the artifact as invalid at and after t.
func WithExpiry(t time.Time) ArtifactOption {
	return func(o *artifactOptions) { o.recOpts = append(o.recOpts, artifact.WithExpiry(t)) }
}

// LogArtifact associates an artifact with the experiment. The payload is
// not written until the owning project's Save. Logging a name that already
// exists fails unless WithOverwrite is given.
func (e *Experiment) LogArtifact(name string, value any, handlerAlias string, opts ...ArtifactOption) error {
	if e.readonly {
		return ErrReadOnly
	}

	var options artifactOptions
	for _, opt := range opts {
		opt(&options)
	}

	handler, err := artifact.Lookup(handlerAlias)
	if err != nil {
		return err
	}

	rec := artifact.New(handler, name, value, options.recOpts...)

	replaced := false
	for i, existing := range e.Artifacts {
		if existing.Name != name {
			continue
		}
		if !options.overwrite {
			return fmt.Errorf("%w: %q; use another name or overwrite", ErrArtifactExists, name)
		}
		if !existing.Dirty {
			if e.displaced == nil {
				e.displaced = make(map[string]*artifact.Artifact)
			}
			e.displaced[name] = existing
		}
		e.Artifacts[i] = rec
		replaced = true
		break
	}
	if !replaced {
		e.Artifacts = append(e.Artifacts, rec)
	}
	e.touch()

	if handler.OutputOnly() {
		e.logger.Warn("artifact is output-only and will not read back as the original value",
			zap.String("name", name),
			zap.String("handler", handlerAlias),
		)
	}
	e.stats.ArtifactLogged("project", handlerAlias)
	return nil
}

// LoadOption configures payload reads.
type LoadOption func(*loadOptions)

type loadOptions struct {
	validate bool
	readOpts map[string]any
}

// WithoutValidation skips the runtime-compatibility check.
func WithoutValidation() LoadOption {
	return func(o *loadOptions) { o.validate = false }
}

// WithReadOptions passes handler-specific options to the payload read.
func WithReadOptions(opts map[string]any) LoadOption {
	return func(o *loadOptions) { o.readOpts = opts }
}

// LoadArtifact reads the named artifact's payload back through its
// handler, validating the runtime environment against the stored
// compatibility fields first.
func (e *Experiment) LoadArtifact(ctx context.Context, name string, opts ...LoadOption) (any, error) {
	options := loadOptions{validate: true}
	for _, opt := range opts {
		opt(&options)
	}

	rec := e.findArtifact(name)
	if rec == nil {
		return nil, fmt.Errorf("%w: no artifact with name %q", ErrArtifactNotFound, name)
	}

	handler, err := artifact.Lookup(rec.Handler)
	if err != nil {
		return nil, err
	}
	if options.validate && !artifact.Compatible(rec, handler) {
		return nil, &repository.LoadError{Name: name, Stored: rec.Compat, Current: handler.CompatFields()}
	}

	data, err := e.backend.ReadFile(ctx, storage.Join(e.Path(), rec.FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %q: %w", name, err)
	}
	value, err := handler.Read(bytes.NewReader(data), options.readOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %q: %w", name, err)
	}

	if handler.OutputOnly() {
		e.logger.Warn("artifact is output-only; the loaded value is not the original",
			zap.String("name", name),
		)
	}
	e.stats.ArtifactRead("project", rec.Handler)
	return value, nil
}

func (e *Experiment) findArtifact(name string) *artifact.Artifact {
	for _, rec := range e.Artifacts {
		if rec.Name == name {
			return rec
		}
	}
	return nil
}

// newer reports whether e wins a merge conflict against other: later
// last-updated timestamp, ties broken by later creation timestamp.
func (e *Experiment) newer(other *Experiment) bool {
	if !e.LastUpdated.Equal(other.LastUpdated) {
		return e.LastUpdated.After(other.LastUpdated)
	}
	return e.CreatedAt.After(other.CreatedAt)
}

// metadata serializes the experiment for the project metadata document.
func (e *Experiment) metadata() map[string]any {
	deps := make([]string, 0, len(e.Dependencies))
	for _, dep := range e.Dependencies {
		deps = append(deps, fmt.Sprintf("%s|%s", dep.projectPath, dep.Slug))
	}
	sort.Strings(deps)

	tests := make([]map[string]any, 0, len(e.Tests))
	for _, test := range e.Tests {
		tests = append(tests, map[string]any{
			"name":        test.Name,
			"description": test.Description,
			"metrics":     test.Metrics,
		})
	}

	arts := make([]map[string]any, 0, len(e.Artifacts))
	for _, rec := range e.Artifacts {
		arts = append(arts, rec.Metadata())
	}

	return map[string]any{
		"name":            e.Name,
		"slug":            e.Slug,
		"short_slug":      e.ShortSlug,
		"author":          e.Author,
		"last_updated_by": e.LastUpdatedBy,
		"metrics":         e.Metrics,
		"parameters":      e.Parameters,
		"tags":            e.Tags,
		"created_at":      e.CreatedAt.Format(artifact.TimeLayout),
		"last_updated":    e.LastUpdated.Format(artifact.TimeLayout),
		"dependencies":    deps,
		"tests":           tests,
		"artifacts":       arts,
	}
}
