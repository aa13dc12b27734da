package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/lazyscribe/lazyscribe-go/internal/slug"
)

// TimeLayout is the timestamp format used in persisted metadata and in
// string version selectors. Seconds precision, no zone.
const TimeLayout = "2006-01-02T15:04:05"

// Now returns the current UTC time truncated to seconds precision, the
// granularity at which record timestamps are stored and compared.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// ParseTime parses a timestamp in TimeLayout.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// SourceFunc reads the payload bytes of a record's durable copy in the
// store it was promoted from. It is consulted at save time when the record
// carries no in-memory value.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Artifact is a single versioned record held by a store.
type Artifact struct {
	// Name identifies the artifact. Names are not unique within a store;
	// records sharing a name are the versions of that artifact.
	Name string

	// FileName is the stable path segment the payload is persisted under.
	FileName string

	// Value is the in-memory payload. It is nil after a record is loaded
	// from persisted metadata until the payload is explicitly read back.
	Value any

	// WriterOptions are handler-specific write parameters supplied when the
	// artifact was logged. Never persisted.
	WriterOptions map[string]any

	// CreatedAt is the record creation timestamp. For a fixed name, records
	// are ordered by CreatedAt and version numbers follow that order.
	CreatedAt time.Time

	// Version is the non-negative, per-name version assigned by the store.
	Version int

	// Handler is the alias of the serialization handler for the payload.
	Handler string

	// Compat holds the handler's identity-relevant compatibility fields as
	// captured when the record was constructed.
	Compat map[string]string

	// Expiry optionally marks voluntary invalidation. Resolution skips
	// records whose expiry is at or before the lookup time; nothing is
	// deleted automatically.
	Expiry *time.Time

	// Dirty reports whether the payload still needs to be durably written.
	Dirty bool

	source SourceFunc
}

// Option configures record construction.
type Option func(*Artifact)

// WithFileName overrides the derived payload file name.
func WithFileName(fname string) Option {
	return func(a *Artifact) { a.FileName = fname }
}

// WithCreatedAt overrides the record creation timestamp.
func WithCreatedAt(t time.Time) Option {
	return func(a *Artifact) { a.CreatedAt = t.UTC().Truncate(time.Second) }
}

// WithWriterOptions supplies handler-specific write parameters.
func WithWriterOptions(opts map[string]any) Option {
	return func(a *Artifact) { a.WriterOptions = opts }
}

// WithVersion sets the version. Stores assign versions; this exists for
// reconstructing records from persisted metadata.
func WithVersion(v int) Option {
	return func(a *Artifact) { a.Version = v }
}

// WithExpiry marks the record as invalid at and after t.
func WithExpiry(t time.Time) Option {
	return func(a *Artifact) {
		expiry := t.UTC().Truncate(time.Second)
		a.Expiry = &expiry
	}
}

// AsClean marks the record as already durably written. Used when loading
// records from persisted metadata.
func AsClean() Option {
	return func(a *Artifact) { a.Dirty = false }
}

// New constructs a record for value under the given handler. CreatedAt
// defaults to Now and FileName is derived from the name, the timestamp and
// the handler suffix when not overridden. New records are dirty.
func New(h Handler, name string, value any, opts ...Option) *Artifact {
	a := &Artifact{
		Name:      name,
		Value:     value,
		CreatedAt: Now(),
		Handler:   h.Alias(),
		Compat:    h.CompatFields(),
		Dirty:     true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.FileName == "" {
		a.FileName = fmt.Sprintf("%s-%s.%s", slug.Make(name), a.CreatedAt.Format("20060102150405"), h.Suffix())
	}
	return a
}

// Clone returns a copy of the record with its own option and compat maps.
// The payload value is shared, not deep-copied.
func (a *Artifact) Clone() *Artifact {
	c := *a
	if a.WriterOptions != nil {
		c.WriterOptions = make(map[string]any, len(a.WriterOptions))
		for k, v := range a.WriterOptions {
			c.WriterOptions[k] = v
		}
	}
	if a.Compat != nil {
		c.Compat = make(map[string]string, len(a.Compat))
		for k, v := range a.Compat {
			c.Compat[k] = v
		}
	}
	if a.Expiry != nil {
		expiry := *a.Expiry
		c.Expiry = &expiry
	}
	return &c
}

// SetSource attaches the durable location of the record's original copy.
// Save uses it to copy the payload bytes when Value is nil.
func (a *Artifact) SetSource(src SourceFunc) { a.source = src }

// Source returns the payload source, or nil when the record has none.
func (a *Artifact) Source() SourceFunc { return a.source }

// Expired reports whether the record's expiry, if any, is at or before t.
func (a *Artifact) Expired(t time.Time) bool {
	return a.Expiry != nil && !a.Expiry.After(t)
}

// Metadata returns the persisted form of the record: the fixed fields plus
// the handler compatibility fields flattened alongside them. The payload
// and the dirty flag never appear.
func (a *Artifact) Metadata() map[string]any {
	m := map[string]any{
		"name":       a.Name,
		"fname":      a.FileName,
		"handler":    a.Handler,
		"created_at": a.CreatedAt.Format(TimeLayout),
		"version":    a.Version,
	}
	if a.Expiry != nil {
		m["expiry"] = a.Expiry.Format(TimeLayout)
	} else {
		m["expiry"] = nil
	}
	for k, v := range a.Compat {
		m[k] = v
	}
	return m
}

// FromMetadata reconstructs a record from its persisted form. Fields beyond
// the fixed set are treated as handler compatibility fields. Records
// rebuilt this way are clean and carry no payload.
func FromMetadata(m map[string]any) (*Artifact, error) {
	name, ok := m["name"].(string)
	if !ok {
		return nil, fmt.Errorf("artifact metadata missing name: %v", m)
	}
	fname, ok := m["fname"].(string)
	if !ok {
		return nil, fmt.Errorf("artifact %q metadata missing fname", name)
	}
	handler, ok := m["handler"].(string)
	if !ok {
		return nil, fmt.Errorf("artifact %q metadata missing handler", name)
	}
	createdRaw, ok := m["created_at"].(string)
	if !ok {
		return nil, fmt.Errorf("artifact %q metadata missing created_at", name)
	}
	createdAt, err := ParseTime(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("artifact %q: %w", name, err)
	}

	version := 0
	switch v := m["version"].(type) {
	case float64:
		version = int(v)
	case int:
		version = v
	default:
		return nil, fmt.Errorf("artifact %q metadata missing version", name)
	}

	a := &Artifact{
		Name:      name,
		FileName:  fname,
		Handler:   handler,
		CreatedAt: createdAt,
		Version:   version,
		Compat:    make(map[string]string),
	}

	if raw, ok := m["expiry"].(string); ok && raw != "" {
		expiry, err := ParseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", name, err)
		}
		a.Expiry = &expiry
	}

	for k, v := range m {
		switch k {
		case "name", "fname", "handler", "created_at", "version", "expiry":
			continue
		}
		if s, ok := v.(string); ok {
			a.Compat[k] = s
		} else {
			a.Compat[k] = fmt.Sprint(v)
		}
	}

	return a, nil
}
