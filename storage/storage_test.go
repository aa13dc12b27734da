package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		scheme   string
		path     string
	}{
		{name: "bare path is local", location: "project.json", scheme: "file", path: "project.json"},
		{name: "explicit file scheme", location: "file://data/project.json", scheme: "file", path: "data/project.json"},
		{name: "memory scheme", location: "memory://scratch/project.json", scheme: "memory", path: "scratch/project.json"},
		{name: "redis scheme", location: "redis://models/repository.json", scheme: "redis", path: "models/repository.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheme, path := ParseLocation(tt.location)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestForScheme(t *testing.T) {
	t.Run("known schemes", func(t *testing.T) {
		for _, scheme := range []string{"file", "memory"} {
			backend, err := ForScheme(scheme)
			require.NoError(t, err)
			assert.Equal(t, scheme, backend.Scheme())
		}
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := ForScheme("s3")
		assert.ErrorIs(t, err, ErrUnknownScheme)
	})

	t.Run("memory scheme is process shared", func(t *testing.T) {
		a, err := ForScheme("memory")
		require.NoError(t, err)
		b, err := ForScheme("memory")
		require.NoError(t, err)

		ctx := context.Background()
		require.NoError(t, a.WriteFile(ctx, "shared/probe.txt", []byte("x")))
		data, err := b.ReadFile(ctx, "shared/probe.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), data)
	})
}
