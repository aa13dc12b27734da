package artifact

import (
	"io"

	"gopkg.in/yaml.v3"
)

// AliasYAML selects the YAML handler.
const AliasYAML = "yaml"

// YAMLHandler reads and writes YAML-serializable payloads.
type YAMLHandler struct {
	goVersion string
}

// NewYAMLHandler constructs a YAML handler for the current runtime.
func NewYAMLHandler() *YAMLHandler {
	return &YAMLHandler{goVersion: goVersion()}
}

func (h *YAMLHandler) Alias() string    { return AliasYAML }
func (h *YAMLHandler) Suffix() string   { return "yaml" }
func (h *YAMLHandler) Binary() bool     { return false }
func (h *YAMLHandler) OutputOnly() bool { return false }

func (h *YAMLHandler) CompatFields() map[string]string {
	return map[string]string{"go_version": h.goVersion}
}

// Read decodes the payload into generic Go values.
func (h *YAMLHandler) Read(r io.Reader, opts map[string]any) (any, error) {
	var out any
	if err := yaml.NewDecoder(r).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Write encodes value as YAML. The "indent" writer option selects the
// indentation width.
func (h *YAMLHandler) Write(value any, w io.Writer, opts map[string]any) error {
	enc := yaml.NewEncoder(w)
	if indent, ok := opts["indent"].(int); ok {
		enc.SetIndent(indent)
	}
	if err := enc.Encode(value); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
