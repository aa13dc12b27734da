package project

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazyscribe/lazyscribe-go/repository"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

// PromoteArtifact republishes one of the experiment's artifacts into a
// repository. The promoted record keeps its creation timestamp and
// becomes the next version of its name in the repository. Nothing is
// written until the repository's Save: a record logged but not yet saved
// carries its in-memory value across, while a persisted record is
// byte-copied from the experiment's storage at save time.
//
// Both stores must live on the same storage scheme, and the repository
// rejects records that are not strictly newer than its latest version of
// the same name.
func (e *Experiment) PromoteArtifact(ctx context.Context, repo *repository.Repository, name string) error {
	rec := e.findArtifact(name)
	if rec == nil {
		return fmt.Errorf("%w: no artifact with name %q", ErrArtifactNotFound, name)
	}

	if e.backend.Scheme() != repo.Scheme() {
		return fmt.Errorf("%w: experiment on %q, repository on %q",
			ErrSchemeMismatch, e.backend.Scheme(), repo.Scheme())
	}

	promoted := rec.Clone()
	if promoted.Value == nil {
		src := e.backend
		path := storage.Join(e.Path(), rec.FileName)
		promoted.SetSource(func(ctx context.Context) ([]byte, error) {
			return src.ReadFile(ctx, path)
		})
	}

	if err := repo.Append(promoted); err != nil {
		return err
	}
	e.stats.Promoted()

	e.logger.Info("promoted artifact",
		zap.String("name", name),
		zap.Int("version", promoted.Version),
		zap.String("repository", repo.Location()),
	)
	return nil
}
