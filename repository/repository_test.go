package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazyscribe/lazyscribe-go/artifact"
	"github.com/lazyscribe/lazyscribe-go/storage"
)

func openTestRepo(t *testing.T, mode Mode) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), "memory://models/repository.json",
		WithMode(mode),
		WithBackend(storage.NewMemory()),
	)
	require.NoError(t, err)
	return repo
}

func ts(value string) time.Time {
	t, err := artifact.ParseTime(value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOpen(t *testing.T) {
	t.Run("default mode is write", func(t *testing.T) {
		repo, err := Open(context.Background(), "memory://open/repository.json",
			WithBackend(storage.NewMemory()))
		require.NoError(t, err)
		assert.Equal(t, ModeWrite, repo.Mode())
		assert.Equal(t, "memory", repo.Scheme())
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := Open(context.Background(), "memory://open/repository.json",
			WithMode(Mode("rw")), WithBackend(storage.NewMemory()))
		assert.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("backend scheme must match location", func(t *testing.T) {
		_, err := Open(context.Background(), "file://open/repository.json",
			WithBackend(storage.NewMemory()))
		assert.Error(t, err)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := Open(context.Background(), "s3://bucket/repository.json")
		assert.ErrorIs(t, err, storage.ErrUnknownScheme)
	})
}

func TestLogArtifactAssignsContiguousVersions(t *testing.T) {
	repo := openTestRepo(t, ModeWrite)

	first, err := repo.LogArtifact("features", []any{"col1"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")))
	require.NoError(t, err)
	second, err := repo.LogArtifact("features", []any{"col1", "col2"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-20T13:23:30")))
	require.NoError(t, err)
	other, err := repo.LogArtifact("model", map[string]any{"w": 0.1}, artifact.AliasJSON)
	require.NoError(t, err)

	assert.Equal(t, 0, first.Version)
	assert.Equal(t, 1, second.Version)
	assert.Equal(t, 0, other.Version, "versions are per name")
	assert.Equal(t, []string{"features", "model"}, repo.ArtifactNames())
	assert.True(t, repo.Contains("features"))
	assert.False(t, repo.Contains("missing"))
	assert.True(t, repo.HasPendingWrites())
}

func TestLogArtifactReadOnly(t *testing.T) {
	repo := openTestRepo(t, ModeRead)
	_, err := repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, repo.Save(context.Background()), ErrReadOnly)
}

func TestGetArtifactResolution(t *testing.T) {
	repo := openTestRepo(t, ModeWrite)
	_, err := repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")))
	require.NoError(t, err)
	_, err = repo.LogArtifact("features", []any{"a", "b"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-20T13:23:30")))
	require.NoError(t, err)

	t.Run("latest by default", func(t *testing.T) {
		rec, err := repo.GetArtifact("features")
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Version)
	})

	t.Run("by index", func(t *testing.T) {
		rec, err := repo.GetArtifact("features", ByIndex(0))
		require.NoError(t, err)
		assert.Equal(t, ts("2025-01-01T00:00:00"), rec.CreatedAt)
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := repo.GetArtifact("features", ByIndex(2))
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetArtifact("features", ByIndex(-1))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("exact timestamp", func(t *testing.T) {
		rec, err := repo.GetArtifact("features", ByTimeString("2025-01-20T13:23:30"))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Version)
	})

	t.Run("exact timestamp miss", func(t *testing.T) {
		_, err := repo.GetArtifact("features", ByTimeString("2025-01-10T00:00:00"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("asof between versions resolves the earlier one", func(t *testing.T) {
		rec, err := repo.GetArtifact("features",
			ByTimeString("2025-01-10T00:00:00"), WithMatch(MatchAsOf))
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Version)
	})

	t.Run("asof on the boundary resolves that version", func(t *testing.T) {
		rec, err := repo.GetArtifact("features",
			ByTime(ts("2025-01-20T13:23:30")), WithMatch(MatchAsOf))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Version)
	})

	t.Run("asof after everything resolves latest", func(t *testing.T) {
		rec, err := repo.GetArtifact("features",
			ByTime(ts("2030-01-01T00:00:00")), WithMatch(MatchAsOf))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Version)
	})

	t.Run("asof predating the store fails", func(t *testing.T) {
		_, err := repo.GetArtifact("features",
			ByTimeString("2024-12-31T23:59:59"), WithMatch(MatchAsOf))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := repo.GetArtifact("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid match strategy", func(t *testing.T) {
		_, err := repo.GetArtifact("features", WithMatch(Match("fuzzy")))
		assert.ErrorIs(t, err, ErrInvalidMatch)
	})

	t.Run("malformed timestamp string", func(t *testing.T) {
		_, err := repo.GetArtifact("features", ByTimeString("yesterday"))
		assert.Error(t, err)
	})
}

func TestExpiredVersionsAreInvisible(t *testing.T) {
	repo := openTestRepo(t, ModeWrite)
	past := artifact.Now().Add(-time.Hour)

	_, err := repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")))
	require.NoError(t, err)
	_, err = repo.LogArtifact("features", []any{"a", "b"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-20T13:23:30")),
		artifact.WithExpiry(past))
	require.NoError(t, err)

	rec, err := repo.GetArtifact("features")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Version, "expired latest is skipped")

	_, err = repo.GetArtifact("features", ByIndex(1))
	assert.ErrorIs(t, err, ErrNotFound, "expired records are invisible to version lookup")
}

func TestVersionLookupSurvivesExpiry(t *testing.T) {
	repo := openTestRepo(t, ModeWrite)
	past := artifact.Now().Add(-time.Hour)

	_, err := repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")),
		artifact.WithExpiry(past))
	require.NoError(t, err)
	_, err = repo.LogArtifact("features", []any{"a", "b"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-20T13:23:30")))
	require.NoError(t, err)

	// The live record keeps version 1 even though the expired version 0
	// no longer resolves.
	rec, err := repo.GetArtifact("features", ByIndex(1))
	require.NoError(t, err)
	assert.Equal(t, ts("2025-01-20T13:23:30"), rec.CreatedAt)

	_, err = repo.GetArtifact("features", ByIndex(0))
	assert.ErrorIs(t, err, ErrNotFound)

	pinned, err := repo.Filter([]Entry{{Name: "features", Version: 1}})
	require.NoError(t, err)
	got, err := pinned.GetArtifact("features")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func TestSaveAndReload(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	repo, err := Open(ctx, "memory://saved/repository.json",
		WithMode(ModeWrite), WithBackend(backend))
	require.NoError(t, err)

	_, err = repo.LogArtifact("features", []any{"col1", "col2"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")))
	require.NoError(t, err)
	_, err = repo.LogArtifact("notes", "hello", artifact.AliasText,
		artifact.WithCreatedAt(ts("2025-01-02T00:00:00")))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx))
	assert.False(t, repo.HasPendingWrites())

	reopened, err := Open(ctx, "memory://saved/repository.json",
		WithMode(ModeRead), WithBackend(backend))
	require.NoError(t, err)
	assert.Equal(t, []string{"features", "notes"}, reopened.ArtifactNames())

	value, err := reopened.LoadArtifact(ctx, "features")
	require.NoError(t, err)
	assert.Equal(t, []any{"col1", "col2"}, value)

	text, err := reopened.LoadArtifact(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestSaveIsIdempotentForCleanRecords(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	repo, err := Open(ctx, "memory://idem/repository.json",
		WithMode(ModeWrite), WithBackend(backend))
	require.NoError(t, err)

	_, err = repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx))
	require.NoError(t, repo.Save(ctx), "saving again with nothing pending succeeds")
}

func TestLoadArtifactValidation(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	repo, err := Open(ctx, "memory://compat/repository.json",
		WithMode(ModeWrite), WithBackend(backend))
	require.NoError(t, err)

	rec, err := repo.LogArtifact("model", map[string]any{"w": 0.5}, artifact.AliasJSON)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx))

	// Forge a record written by a different runtime.
	rec.Compat["go_version"] = "1.2"

	_, err = repo.LoadArtifact(ctx, "model")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "model", loadErr.Name)
	assert.Contains(t, loadErr.Error(), "go_version")

	value, err := repo.LoadArtifact(ctx, "model", WithoutValidation())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"w": 0.5}, value)
}

func TestSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	repo, err := Open(ctx, "memory://rollback/repository.json",
		WithMode(ModeWrite), WithBackend(backend))
	require.NoError(t, err)

	_, err = repo.LogArtifact("good", []any{"a"}, artifact.AliasJSON)
	require.NoError(t, err)
	// A text artifact with a non-string payload fails at serialization.
	_, err = repo.LogArtifact("bad", 42, artifact.AliasText)
	require.NoError(t, err)

	err = repo.Save(ctx)
	require.ErrorIs(t, err, ErrSave)

	assert.Empty(t, repo.Artifacts(), "both pending records are dropped")
	exists, err := backend.Exists(ctx, "rollback/repository.json")
	require.NoError(t, err)
	assert.False(t, exists, "no metadata document is written on failure")

	// The store stays usable after a rollback.
	_, err = repo.LogArtifact("good", []any{"a"}, artifact.AliasJSON)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx))

	value, err := repo.LoadArtifact(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, value)
}

func TestFilterPinsVersions(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	repo, err := Open(ctx, "memory://filter/repository.json",
		WithMode(ModeWrite), WithBackend(backend))
	require.NoError(t, err)

	_, err = repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx))

	pinned, err := repo.Filter([]Entry{{Name: "features", Version: 0}})
	require.NoError(t, err)
	assert.Equal(t, ModeRead, pinned.Mode())

	// Advance the source store past the pin.
	_, err = repo.LogArtifact("features", []any{"a", "b"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-02-01T00:00:00")))
	require.NoError(t, err)

	rec, err := pinned.GetArtifact("features")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Version)

	_, err = pinned.GetArtifact("features", ByIndex(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilterUnknownEntry(t *testing.T) {
	repo := openTestRepo(t, ModeWrite)
	_, err := repo.Filter([]Entry{{Name: "missing", Version: 0}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetArtifactMetadata(t *testing.T) {
	repo := openTestRepo(t, ModeWrite)
	_, err := repo.LogArtifact("features", []any{"a"}, artifact.AliasJSON,
		artifact.WithCreatedAt(ts("2025-01-01T00:00:00")))
	require.NoError(t, err)

	m, err := repo.GetArtifactMetadata("features")
	require.NoError(t, err)
	assert.Equal(t, "features", m["name"])
	assert.Equal(t, "2025-01-01T00:00:00", m["created_at"])
	assert.NotContains(t, m, "dirty")
}

func TestEntryJSONRoundTrip(t *testing.T) {
	entry := Entry{Name: "features", Version: 3}
	data, err := entry.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["features", 3]`, string(data))

	var decoded Entry
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, entry, decoded)

	assert.Error(t, decoded.UnmarshalJSON([]byte(`[3, "features"]`)))
}
