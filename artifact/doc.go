// Package artifact provides the artifact record model and the pluggable
// serialization handler capability shared by projects and repositories.
//
// An Artifact is a named, versioned record of an opaque payload. The record
// itself is a value object: the payload lives in memory until the owning
// store persists it, and only the record metadata (never the payload or the
// dirty flag) is serialized into the store's metadata document.
//
// Handlers own the format-specific read/write logic for payloads and are
// resolved by a string alias through the package registry. Each handler
// declares an explicit set of identity-relevant compatibility fields; a
// record read in a different runtime environment fails validation when the
// stored fields disagree with a freshly constructed handler's fields.
package artifact
