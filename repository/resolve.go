package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lazyscribe/lazyscribe-go/artifact"
)

// Match selects the timestamp matching strategy for version resolution.
type Match string

const (
	// MatchExact resolves only a record whose creation timestamp equals
	// the selector exactly.
	MatchExact Match = "exact"

	// MatchAsOf resolves the latest record not newer than the selector.
	MatchAsOf Match = "asof"
)

type resolveQuery struct {
	index    *int
	ts       *time.Time
	raw      string
	match    Match
	validate bool
	readOpts map[string]any
}

// ResolveOption configures version resolution and payload reads. Without a
// version selector the latest record is resolved.
type ResolveOption func(*resolveQuery)

// ByIndex selects the record carrying the given integer version, as
// assigned by the store (0-indexed per name).
func ByIndex(version int) ResolveOption {
	return func(q *resolveQuery) { q.index = &version }
}

// ByTime selects a record by creation timestamp, interpreted according to
// the match strategy.
func ByTime(t time.Time) ResolveOption {
	return func(q *resolveQuery) {
		ts := t.UTC().Truncate(time.Second)
		q.ts = &ts
	}
}

// ByTimeString selects a record by a creation timestamp string in
// artifact.TimeLayout.
func ByTimeString(s string) ResolveOption {
	return func(q *resolveQuery) { q.raw = s }
}

// WithMatch sets the timestamp matching strategy. The default is
// MatchExact.
func WithMatch(m Match) ResolveOption {
	return func(q *resolveQuery) { q.match = m }
}

// WithoutValidation skips the runtime-compatibility check when loading a
// payload.
func WithoutValidation() ResolveOption {
	return func(q *resolveQuery) { q.validate = false }
}

// WithReadOptions passes handler-specific options to the payload read.
func WithReadOptions(opts map[string]any) ResolveOption {
	return func(q *resolveQuery) { q.readOpts = opts }
}

func newResolveQuery(opts []ResolveOption) resolveQuery {
	q := resolveQuery{match: MatchExact, validate: true}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// GetArtifact resolves a record without touching its payload.
func (r *Repository) GetArtifact(name string, opts ...ResolveOption) (*artifact.Artifact, error) {
	q := newResolveQuery(opts)
	return r.search(name, q)
}

// GetArtifactMetadata resolves a record and returns its persisted form.
func (r *Repository) GetArtifactMetadata(name string, opts ...ResolveOption) (map[string]any, error) {
	rec, err := r.GetArtifact(name, opts...)
	if err != nil {
		return nil, err
	}
	return rec.Metadata(), nil
}

// LoadArtifact resolves a record, validates the runtime environment
// against its stored compatibility fields, and reads the payload back
// through its handler. Validation can be skipped with WithoutValidation.
func (r *Repository) LoadArtifact(ctx context.Context, name string, opts ...ResolveOption) (any, error) {
	q := newResolveQuery(opts)
	rec, err := r.search(name, q)
	if err != nil {
		return nil, err
	}

	handler, err := artifact.Lookup(rec.Handler)
	if err != nil {
		return nil, err
	}
	if q.validate && !artifact.Compatible(rec, handler) {
		return nil, &LoadError{Name: name, Stored: rec.Compat, Current: handler.CompatFields()}
	}

	data, err := r.backend.ReadFile(ctx, r.payloadPath(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %q: %w", name, err)
	}
	value, err := handler.Read(bytes.NewReader(data), q.readOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %q: %w", name, err)
	}

	if handler.OutputOnly() {
		r.logger.Warn("artifact is output-only; the loaded value is not the original",
			zap.String("name", name),
		)
	}
	r.stats.ArtifactRead("repository", rec.Handler)

	return value, nil
}

// search resolves a record by name and version selector. Records whose
// expiry has passed are invisible to resolution.
func (r *Repository) search(name string, q resolveQuery) (*artifact.Artifact, error) {
	if q.match != MatchExact && q.match != MatchAsOf {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMatch, q.match)
	}
	if q.raw != "" {
		ts, err := artifact.ParseTime(q.raw)
		if err != nil {
			return nil, err
		}
		q.ts = &ts
	}

	now := artifact.Now()
	var matching []*artifact.Artifact
	for _, rec := range r.artifacts {
		if rec.Name == name && !rec.Expired(now) {
			matching = append(matching, rec)
		}
	}
	if len(matching) == 0 {
		return nil, fmt.Errorf("%w: no artifact with name %q", ErrNotFound, name)
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].CreatedAt.Before(matching[j].CreatedAt)
	})

	switch {
	case q.index != nil:
		v := *q.index
		for _, rec := range matching {
			if rec.Version == v {
				return rec, nil
			}
		}
		return nil, fmt.Errorf("%w: no artifact named %q with version %d", ErrNotFound, name, v)

	case q.ts != nil:
		ts := *q.ts
		if q.match == MatchExact {
			for _, rec := range matching {
				if rec.CreatedAt.Equal(ts) {
					return rec, nil
				}
			}
			return nil, fmt.Errorf("%w: no artifact named %q with version %s",
				ErrNotFound, name, ts.Format(artifact.TimeLayout))
		}
		// As-of: the latest record whose timestamp is at or before the
		// selector. A selector older than every record predates the store.
		if ts.Before(matching[0].CreatedAt) {
			return nil, fmt.Errorf("%w: version %s predates the earliest version %s",
				ErrNotFound,
				ts.Format(artifact.TimeLayout),
				matching[0].CreatedAt.Format(artifact.TimeLayout))
		}
		for i := len(matching) - 1; i >= 0; i-- {
			if !matching[i].CreatedAt.After(ts) {
				return matching[i], nil
			}
		}
		// Unreachable: the predate check guarantees a match.
		return nil, fmt.Errorf("%w: no artifact with name %q", ErrNotFound, name)

	default:
		return matching[len(matching)-1], nil
	}
}
