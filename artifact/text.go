package artifact

import (
	"fmt"
	"io"
)

// Aliases for the plain-payload handlers.
const (
	AliasText   = "text"
	AliasRaw    = "raw"
	AliasReport = "report"
)

// TextHandler reads and writes string payloads verbatim.
type TextHandler struct{}

// NewTextHandler constructs a text handler.
func NewTextHandler() *TextHandler { return &TextHandler{} }

func (h *TextHandler) Alias() string                   { return AliasText }
func (h *TextHandler) Suffix() string                  { return "txt" }
func (h *TextHandler) Binary() bool                    { return false }
func (h *TextHandler) OutputOnly() bool                { return false }
func (h *TextHandler) CompatFields() map[string]string { return map[string]string{} }

func (h *TextHandler) Read(r io.Reader, opts map[string]any) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (h *TextHandler) Write(value any, w io.Writer, opts map[string]any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("text handler requires a string payload, got %T", value)
	}
	_, err := io.WriteString(w, s)
	return err
}

// RawHandler reads and writes byte-slice payloads verbatim.
type RawHandler struct{}

// NewRawHandler constructs a raw bytes handler.
func NewRawHandler() *RawHandler { return &RawHandler{} }

func (h *RawHandler) Alias() string                   { return AliasRaw }
func (h *RawHandler) Suffix() string                  { return "bin" }
func (h *RawHandler) Binary() bool                    { return true }
func (h *RawHandler) OutputOnly() bool                { return false }
func (h *RawHandler) CompatFields() map[string]string { return map[string]string{} }

func (h *RawHandler) Read(r io.Reader, opts map[string]any) (any, error) {
	return io.ReadAll(r)
}

func (h *RawHandler) Write(value any, w io.Writer, opts map[string]any) error {
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("raw handler requires a []byte payload, got %T", value)
	}
	_, err := w.Write(data)
	return err
}

// ReportHandler renders payloads to text for human consumption. Reading
// back returns the rendered text, not the original value, so the handler
// is output-only.
type ReportHandler struct{}

// NewReportHandler constructs a report handler.
func NewReportHandler() *ReportHandler { return &ReportHandler{} }

func (h *ReportHandler) Alias() string                   { return AliasReport }
func (h *ReportHandler) Suffix() string                  { return "txt" }
func (h *ReportHandler) Binary() bool                    { return false }
func (h *ReportHandler) OutputOnly() bool                { return true }
func (h *ReportHandler) CompatFields() map[string]string { return map[string]string{} }

func (h *ReportHandler) Read(r io.Reader, opts map[string]any) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (h *ReportHandler) Write(value any, w io.Writer, opts map[string]any) error {
	switch v := value.(type) {
	case string:
		_, err := io.WriteString(w, v)
		return err
	case fmt.Stringer:
		_, err := io.WriteString(w, v.String())
		return err
	default:
		_, err := fmt.Fprintf(w, "%v", v)
		return err
	}
}
