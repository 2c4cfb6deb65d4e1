package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/attrsync/internal/ir"
)

// marshalAttributes converts an attribute list to JSON TEXT for storage.
// HTML escaping is disabled so stored values read exactly as they were
// in the input.
func marshalAttributes(attrs ir.Attributes) (string, error) {
	if attrs == nil {
		attrs = ir.Attributes{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(attrs); err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// unmarshalAttributes parses JSON TEXT back to an attribute list.
func unmarshalAttributes(data string) (ir.Attributes, error) {
	if data == "" {
		return ir.Attributes{}, nil
	}
	var attrs ir.Attributes
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	if attrs == nil {
		attrs = ir.Attributes{}
	}
	return attrs, nil
}

// joinIDs renders asset ids the way the remote filter expects them.
func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// splitIDs reverses joinIDs. An empty column is an empty list.
func splitIDs(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// parseFingerprint parses a stored fingerprint column.
func parseFingerprint(s string) (ir.Fingerprint, error) {
	fp, err := ir.ParseFingerprint(s)
	if err != nil {
		return ir.Fingerprint{}, fmt.Errorf("unmarshal fingerprint: %w", err)
	}
	return fp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
