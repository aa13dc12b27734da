// Package release pins repository artifact versions under a named tag.
//
// A release records, for every artifact name in a repository, the latest
// version available when the release was cut. Applying the release back
// to the repository later yields a read-only view scoped to exactly those
// versions, no matter how far the repository has advanced since.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lazyscribe/lazyscribe-go/artifact"
	"github.com/lazyscribe/lazyscribe-go/repository"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

// Common errors.
var (
	// ErrNotFound reports that no release matches the selector.
	ErrNotFound = errors.New("release not found")

	// ErrInvalidMatch reports a selector and matching strategy that
	// cannot be combined, such as an as-of match against a tag.
	ErrInvalidMatch = errors.New("invalid match")

	// ErrDirtyRepository reports cutting a release from a repository
	// that is writable or has unsaved records.
	ErrDirtyRepository = errors.New("repository must be read-only and fully saved")
)

// Release pins a set of (artifact, version) pairs under a tag.
type Release struct {
	Tag       string
	CreatedAt time.Time
	Artifacts []repository.Entry
}

type releaseDoc struct {
	Tag       string             `json:"tag"`
	Artifacts []repository.Entry `json:"artifacts"`
	CreatedAt string             `json:"created_at"`
}

// MarshalJSON implements json.Marshaler.
func (r Release) MarshalJSON() ([]byte, error) {
	return json.Marshal(releaseDoc{
		Tag:       r.Tag,
		Artifacts: r.Artifacts,
		CreatedAt: r.CreatedAt.Format(artifact.TimeLayout),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Release) UnmarshalJSON(data []byte) error {
	var doc releaseDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	createdAt, err := artifact.ParseTime(doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("release %q: %w", doc.Tag, err)
	}
	r.Tag = doc.Tag
	r.Artifacts = doc.Artifacts
	r.CreatedAt = createdAt
	return nil
}

// Checkout returns a read-only repository scoped to the release's pinned
// versions.
func (r *Release) Checkout(repo *repository.Repository) (*repository.Repository, error) {
	return repo.Filter(r.Artifacts)
}

// CreateOption configures Create.
type CreateOption func(*Release)

// WithCreatedAt overrides the release creation timestamp.
func WithCreatedAt(t time.Time) CreateOption {
	return func(r *Release) { r.CreatedAt = t.UTC().Truncate(time.Second) }
}

// Create cuts a release from a repository by pinning the latest version
// of every artifact name. The repository must be opened read-only and
// hold no unsaved records, so the pinned versions are exactly what is on
// durable storage.
func Create(repo *repository.Repository, tag string, opts ...CreateOption) (*Release, error) {
	if repo.Mode() != repository.ModeRead {
		return nil, fmt.Errorf("%w: mode is %q", ErrDirtyRepository, repo.Mode())
	}
	if repo.HasPendingWrites() {
		return nil, fmt.Errorf("%w: unsaved artifacts present", ErrDirtyRepository)
	}

	rel := &Release{Tag: tag, CreatedAt: artifact.Now()}
	for _, opt := range opts {
		opt(rel)
	}

	for _, name := range repo.ArtifactNames() {
		rec, err := repo.GetArtifact(name)
		if errors.Is(err, repository.ErrNotFound) {
			// Every version of the name has expired; nothing to pin.
			continue
		}
		if err != nil {
			return nil, err
		}
		rel.Artifacts = append(rel.Artifacts, repository.Entry{Name: name, Version: rec.Version})
	}
	return rel, nil
}

type findQuery struct {
	tag   string
	ts    *time.Time
	match repository.Match
}

// FindOption configures Find. Without a selector the release with the
// latest creation timestamp is returned.
type FindOption func(*findQuery)

// ByTag selects the release with exactly this tag.
func ByTag(tag string) FindOption {
	return func(q *findQuery) { q.tag = tag }
}

// ByTime selects by creation timestamp, honoring the matching strategy.
func ByTime(t time.Time) FindOption {
	return func(q *findQuery) {
		ts := t.UTC().Truncate(time.Second)
		q.ts = &ts
	}
}

// WithMatch sets the timestamp matching strategy. The default is
// repository.MatchExact.
func WithMatch(m repository.Match) FindOption {
	return func(q *findQuery) { q.match = m }
}

// Find resolves one release out of a collection by tag, by creation
// timestamp, or latest when no selector is given. As-of matching applies
// to timestamps only and follows the repository's rules: a timestamp
// before the earliest release is an error, and a timestamp on or after a
// release's creation selects that release until a newer one starts.
func Find(releases []*Release, opts ...FindOption) (*Release, error) {
	query := findQuery{match: repository.MatchExact}
	for _, opt := range opts {
		opt(&query)
	}
	if query.match != repository.MatchExact && query.match != repository.MatchAsOf {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMatch, query.match)
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("%w: no releases", ErrNotFound)
	}

	sorted := make([]*Release, len(releases))
	copy(sorted, releases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	switch {
	case query.tag != "":
		if query.match == repository.MatchAsOf {
			return nil, fmt.Errorf("%w: as-of matching needs a timestamp, not a tag", ErrInvalidMatch)
		}
		for _, rel := range sorted {
			if rel.Tag == query.tag {
				return rel, nil
			}
		}
		return nil, fmt.Errorf("%w: tag %q", ErrNotFound, query.tag)

	case query.ts != nil:
		if query.match == repository.MatchExact {
			for _, rel := range sorted {
				if rel.CreatedAt.Equal(*query.ts) {
					return rel, nil
				}
			}
			return nil, fmt.Errorf("%w: created at %s", ErrNotFound, query.ts.Format(artifact.TimeLayout))
		}
		if query.ts.Before(sorted[0].CreatedAt) {
			return nil, fmt.Errorf("%w: %s predates the earliest release %q (%s)",
				ErrNotFound,
				query.ts.Format(artifact.TimeLayout),
				sorted[0].Tag,
				sorted[0].CreatedAt.Format(artifact.TimeLayout),
			)
		}
		for i := len(sorted) - 1; i >= 0; i-- {
			if !sorted[i].CreatedAt.After(*query.ts) {
				return sorted[i], nil
			}
		}
		return nil, fmt.Errorf("%w: created at or before %s", ErrNotFound, query.ts.Format(artifact.TimeLayout))

	default:
		return sorted[len(sorted)-1], nil
	}
}

// Save writes the release collection as a JSON document at path.
func Save(ctx context.Context, backend storage.Backend, path string, releases []*Release) error {
	data, err := json.MarshalIndent(releases, "", "  ")
	if err != nil {
		return err
	}
	return backend.WriteFile(ctx, path, data)
}

// Load reads a release collection written by Save.
func Load(ctx context.Context, backend storage.Backend, path string) ([]*Release, error) {
	data, err := backend.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	var releases []*Release
	if err := json.Unmarshal(data, &releases); err != nil {
		return nil, fmt.Errorf("failed to parse releases document: %w", err)
	}
	return releases, nil
}
