package project

import "errors"

// Common errors.
var (
	// ErrReadOnly reports a mutating operation against a project or
	// experiment opened in read-only mode.
	ErrReadOnly = errors.New("project is in read-only mode")

	// ErrExperimentNotFound reports an unknown experiment slug.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrArtifactNotFound reports an unknown artifact name within an
	// experiment.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactExists reports logging an artifact under a name already
	// taken without requesting overwrite.
	ErrArtifactExists = errors.New("artifact already exists")

	// ErrSchemeMismatch reports a promotion between stores on different
	// storage backends.
	ErrSchemeMismatch = errors.New("source and target storage schemes do not match")

	// ErrSave reports a failed save. The project has been rolled back to
	// the last durable state before the error is returned.
	ErrSave = errors.New("save failed")

	// ErrInvalidMode reports an unrecognized open mode.
	ErrInvalidMode = errors.New("invalid mode")
)
