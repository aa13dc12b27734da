package artifact

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("lookup registered alias", func(t *testing.T) {
		handler, err := Lookup(AliasJSON)
		require.NoError(t, err)
		assert.Equal(t, AliasJSON, handler.Alias())
	})

	t.Run("unknown alias", func(t *testing.T) {
		_, err := Lookup("parquet")
		assert.ErrorIs(t, err, ErrUnknownHandler)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("custom", func() Handler { return NewTextHandler() }))
		assert.Error(t, r.Register("custom", func() Handler { return NewTextHandler() }))
	})

	t.Run("built-in aliases cannot be shadowed", func(t *testing.T) {
		assert.Error(t, Register(AliasJSON, func() Handler { return NewTextHandler() }))
	})
}

func TestJSONHandlerRoundTrip(t *testing.T) {
	handler := NewJSONHandler()
	value := map[string]any{"features": []any{"col1", "col2"}, "n": float64(10)}

	var buf bytes.Buffer
	require.NoError(t, handler.Write(value, &buf, nil))

	out, err := handler.Read(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, value, out)
}

func TestJSONHandlerIndent(t *testing.T) {
	handler := NewJSONHandler()

	var buf bytes.Buffer
	require.NoError(t, handler.Write(map[string]any{"a": 1}, &buf, map[string]any{"indent": "  "}))
	assert.Contains(t, buf.String(), "\n  \"a\"")
}

func TestYAMLHandlerRoundTrip(t *testing.T) {
	handler := NewYAMLHandler()
	value := map[string]any{"stage": "prod", "threshold": 0.5}

	var buf bytes.Buffer
	require.NoError(t, handler.Write(value, &buf, nil))

	out, err := handler.Read(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, value, out)
}

func TestTextHandler(t *testing.T) {
	handler := NewTextHandler()

	var buf bytes.Buffer
	require.NoError(t, handler.Write("hello world", &buf, nil))
	assert.Equal(t, "hello world", buf.String())

	out, err := handler.Read(strings.NewReader("hello world"), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	assert.Error(t, handler.Write(42, &buf, nil))
}

func TestRawHandler(t *testing.T) {
	handler := NewRawHandler()
	payload := []byte{0x00, 0x01, 0xff}

	var buf bytes.Buffer
	require.NoError(t, handler.Write(payload, &buf, nil))

	out, err := handler.Read(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	assert.True(t, handler.Binary())
	assert.Error(t, handler.Write("not bytes", &buf, nil))
}

func TestReportHandlerIsOutputOnly(t *testing.T) {
	handler := NewReportHandler()
	assert.True(t, handler.OutputOnly())

	var buf bytes.Buffer
	require.NoError(t, handler.Write(map[string]int{"rows": 3}, &buf, nil))

	out, err := handler.Read(&buf, nil)
	require.NoError(t, err)
	_, isString := out.(string)
	assert.True(t, isString, "report reads back as rendered text")
}

func TestCompatible(t *testing.T) {
	handler := NewJSONHandler()
	rec := New(handler, "model", map[string]any{"a": 1})
	assert.True(t, Compatible(rec, handler))

	stale := rec.Clone()
	stale.Compat["go_version"] = "1.2"
	assert.False(t, Compatible(stale, handler))

	extra := rec.Clone()
	extra.Compat["library"] = "joblib"
	assert.False(t, Compatible(extra, handler))
}
