package repository

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrNotFound reports a resolution failure: unknown artifact name,
	// out-of-range integer version, exact-timestamp miss, or an as-of
	// timestamp predating the earliest version.
	ErrNotFound = errors.New("artifact not found")

	// ErrReadOnly reports a mutating operation against a store opened in
	// read-only mode.
	ErrReadOnly = errors.New("repository is in read-only mode")

	// ErrStale reports a promotion whose record is not strictly newer than
	// the latest stored version of the same name.
	ErrStale = errors.New("artifact is not newer than the latest stored version")

	// ErrSave reports a failed save. The store has been rolled back to the
	// last durable state before the error is returned.
	ErrSave = errors.New("save failed")

	// ErrInvalidMode reports an unrecognized open mode.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidMatch reports an unrecognized match strategy.
	ErrInvalidMatch = errors.New("invalid match strategy")
)

// LoadError reports that the runtime environment does not match the
// environment an artifact was written in. It carries both compatibility
// parameter sets for diagnosis.
type LoadError struct {
	Name    string
	Stored  map[string]string
	Current map[string]string
}

func (e *LoadError) Error() string {
	stored, _ := json.Marshal(e.Stored)
	current, _ := json.Marshal(e.Current)
	return fmt.Sprintf(
		"runtime environments do not match for artifact %q: artifact parameters %s, current parameters %s",
		e.Name, stored, current,
	)
}
