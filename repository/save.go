package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazyscribe/lazyscribe-go/artifact"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

// Save writes the metadata document and every pending payload as one
// atomic batch. Payloads are staged ahead of the metadata document, so a
// failed payload write also discards the metadata write. On failure the
// in-memory collection is rolled back to exclude every record that was
// never durably persisted, and the error is returned wrapping ErrSave.
func (r *Repository) Save(ctx context.Context) error {
	if r.mode == ModeRead {
		return ErrReadOnly
	}

	batch := storage.NewBatch(r.backend)
	batch.MakeDirs(r.dir)

	var pending []*artifact.Artifact
	for _, rec := range r.artifacts {
		if !rec.Dirty {
			r.logger.Debug("artifact already persisted",
				zap.String("name", rec.Name),
				zap.Int("version", rec.Version),
			)
			continue
		}

		data, err := r.payloadBytes(ctx, rec)
		if err != nil {
			r.rollback()
			r.stats.SaveFailed("repository")
			return fmt.Errorf("%w: artifact %q: %w", ErrSave, rec.Name, err)
		}

		batch.MakeDirs(storage.Join(r.dir, rec.Name))
		batch.Stage(r.payloadPath(rec), data)
		pending = append(pending, rec)

		if handler, err := artifact.Lookup(rec.Handler); err == nil && handler.OutputOnly() {
			r.logger.Warn("artifact is output-only and will not read back as the original value",
				zap.String("name", rec.Name),
			)
		}
	}

	metadata, err := r.metadataBytes()
	if err != nil {
		r.rollback()
		r.stats.SaveFailed("repository")
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	batch.Stage(r.path, metadata)

	if err := batch.Commit(ctx); err != nil {
		r.rollback()
		r.stats.SaveFailed("repository")
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	for _, rec := range pending {
		rec.Dirty = false
	}
	r.stats.SaveSucceeded("repository")

	r.logger.Debug("saved repository",
		zap.String("location", r.location),
		zap.Int("payloads", len(pending)),
	)
	return nil
}

// payloadBytes serializes a pending record's payload: through its handler
// when the value is in memory, or by copying the bytes of the durable
// source it was promoted from.
func (r *Repository) payloadBytes(ctx context.Context, rec *artifact.Artifact) ([]byte, error) {
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

// metadataBytes serializes the full record collection in insertion order.
// Map keys marshal sorted, keeping the document deterministic.
func (r *Repository) metadataBytes() ([]byte, error) {
	entries := make([]map[string]any, 0, len(r.artifacts))
	for _, rec := range r.artifacts {
		entries = append(entries, rec.Metadata())
	}
	return json.MarshalIndent(entries, "", "  ")
}

// rollback drops every record that has not been durably written. All dirty
// records are new by the record lifecycle, so removing them restores the
// collection to exactly what is on durable storage.
func (r *Repository) rollback() {
	kept := r.artifacts[:0]
	for _, rec := range r.artifacts {
		if !rec.Dirty {
			kept = append(kept, rec)
		}
	}
	r.artifacts = kept
}
