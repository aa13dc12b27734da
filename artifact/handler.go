package artifact

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"runtime"
	"strings"
	"sync"
)

// ErrUnknownHandler is returned when no handler is registered for an alias.
var ErrUnknownHandler = errors.New("unknown artifact handler")

// Handler is the serialization capability for one payload format.
type Handler interface {
	// Alias is the dispatch key used to select the handler.
	Alias() string

	// Suffix is the file suffix for payloads written by the handler.
	Suffix() string

	// Binary reports whether payloads are binary rather than text. It
	// selects the open mode against backends that distinguish the two.
	Binary() bool

	// OutputOnly reports whether payloads cannot be read back as the value
	// originally logged. Output-only artifacts surface a warning on both
	// add and read.
	OutputOnly() bool

	// CompatFields reports the identity-relevant fields captured from the
	// current runtime. A stored record and the current environment are
	// compatible iff these maps are equal; no other record field
	// participates in the comparison.
	CompatFields() map[string]string

	// Read deserializes a payload.
	Read(r io.Reader, opts map[string]any) (any, error)

	// Write serializes value into w.
	Write(value any, w io.Writer, opts map[string]any) error
}

// Compatible reports whether the record's stored compatibility fields match
// a freshly constructed handler for the current runtime.
func Compatible(a *Artifact, h Handler) bool {
	return maps.Equal(a.Compat, h.CompatFields())
}

// Registry maps handler aliases to factories.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]func() Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]func() Handler)}
}

// Register adds a handler factory under its alias. Registering an alias
// twice is a configuration error.
func (r *Registry) Register(alias string, factory func() Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[alias]; ok {
		return fmt.Errorf("handler alias %q already registered", alias)
	}
	r.handlers[alias] = factory
	return nil
}

// Lookup constructs the handler registered under alias.
func (r *Registry) Lookup(alias string) (Handler, error) {
	r.mu.RLock()
	factory, ok := r.handlers[alias]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, alias)
	}
	return factory(), nil
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	builtin := func(alias string, factory func() Handler) {
		if err := r.Register(alias, factory); err != nil {
			panic(err)
		}
	}
	builtin(AliasJSON, func() Handler { return NewJSONHandler() })
	builtin(AliasYAML, func() Handler { return NewYAMLHandler() })
	builtin(AliasText, func() Handler { return NewTextHandler() })
	builtin(AliasRaw, func() Handler { return NewRawHandler() })
	builtin(AliasReport, func() Handler { return NewReportHandler() })
	return r
}()

// Register adds a handler factory to the default registry.
func Register(alias string, factory func() Handler) error {
	return defaultRegistry.Register(alias, factory)
}

// Lookup constructs a handler from the default registry.
func Lookup(alias string) (Handler, error) {
	return defaultRegistry.Lookup(alias)
}

// goVersion returns the running toolchain's major.minor version, the Go
// analogue of a serialization library version for compatibility checks.
func goVersion() string {
	v := strings.TrimPrefix(runtime.Version(), "go")
	if parts := strings.SplitN(v, ".", 3); len(parts) >= 2 {
		return parts[0] + "." + parts[1]
	}
	return v
}
