// Package export serializes a finished report for static consumption.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ahstewart/signal-snapshot/internal/analytics"
)

// Document is the static export envelope around one report.
type Document struct {
	Version int               `json:"version"`
	Report  *analytics.Report `json:"report"`
}

// Write serializes the report as an indented JSON document. The report is
// already fully computed; this is pure serialization of its shape.
func Write(w io.Writer, report *analytics.Report) error {
	doc := Document{Version: 1, Report: report}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// Flatten renders the report as a single-level key/value map with dotted
// paths, for consumers that cannot walk nested structures.
func Flatten(report *analytics.Report) (map[string]interface{}, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to rebuild report tree: %w", err)
	}

	flat := make(map[string]interface{})
	flattenInto(flat, "", tree)
	return flat, nil
}

func flattenInto(dst map[string]interface{}, prefix string, v interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			flattenInto(dst, join(prefix, k), child)
		}
	case []interface{}:
		for i, child := range node {
			flattenInto(dst, fmt.Sprintf("%s.%d", prefix, i), child)
		}
	default:
		dst[prefix] = v
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
