package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format string

// Supported document encodings.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. An empty name means JSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json or yaml)", name)
	}
}

// FormatFromPath picks the format from a file extension; anything that is
// not .yaml/.yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode reads one document from r into v.
func Decode(r io.Reader, format Format, v any) error {
	if format == FormatYAML {
		return yaml.NewDecoder(r).Decode(v)
	}
	return json.NewDecoder(r).Decode(v)
}

// Encode writes v to w. JSON output is indented.
func Encode(w io.Writer, format Format, v any) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadFile decodes the document at path into v.
//
//nolint:gosec // G304: Path is provided by user.
func loadFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, FormatFromPath(path), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// LoadModelAnalysis reads a model structural analysis document.
func LoadModelAnalysis(path string) (*ModelAnalysis, error) {
	var doc ModelAnalysis
	if err := loadFile(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadPerfAnalysis reads a performance analysis document.
// An empty path means no document and returns nil.
func LoadPerfAnalysis(path string) (*PerfAnalysis, error) {
	if path == "" {
		return nil, nil
	}
	var doc PerfAnalysis
	if err := loadFile(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadLossAnalysis reads a loss analysis document.
// An empty path means no document and returns nil.
func LoadLossAnalysis(path string) (*LossAnalysis, error) {
	if path == "" {
		return nil, nil
	}
	var doc LossAnalysis
	if err := loadFile(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// WriteFile encodes v to path, or to stdout when path is empty or "-".
func WriteFile(path string, format Format, v any) error {
	if path == "" || path == "-" {
		return Encode(os.Stdout, format, v)
	}
	f, err := os.Create(path) //nolint:gosec // G304: Path is provided by user.
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Encode(f, format, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
