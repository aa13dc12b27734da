package artifact

import (
	"encoding/json"
	"io"
)

// AliasJSON selects the JSON handler.
const AliasJSON = "json"

// JSONHandler reads and writes JSON-serializable payloads.
type JSONHandler struct {
	goVersion string
}

// NewJSONHandler constructs a JSON handler for the current runtime.
func NewJSONHandler() *JSONHandler {
	return &JSONHandler{goVersion: goVersion()}
}

func (h *JSONHandler) Alias() string    { return AliasJSON }
func (h *JSONHandler) Suffix() string   { return "json" }
func (h *JSONHandler) Binary() bool     { return false }
func (h *JSONHandler) OutputOnly() bool { return false }

func (h *JSONHandler) CompatFields() map[string]string {
	return map[string]string{"go_version": h.goVersion}
}

// Read decodes the payload into generic Go values (maps, slices, float64,
// string, bool, nil).
func (h *JSONHandler) Read(r io.Reader, opts map[string]any) (any, error) {
	var out any
	dec := json.NewDecoder(r)
	if n, ok := opts["use_number"].(bool); ok && n {
		dec.UseNumber()
	}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Write encodes value as JSON. The "indent" writer option selects the
// indentation string.
func (h *JSONHandler) Write(value any, w io.Writer, opts map[string]any) error {
	enc := json.NewEncoder(w)
	if indent, ok := opts["indent"].(string); ok {
		enc.SetIndent("", indent)
	}
	return enc.Encode(value)
}
