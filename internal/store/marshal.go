package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalLabels converts run labels to JSON TEXT.
// json.Encoder sorts map keys, so equal label sets store identical text.
func marshalLabels(labels map[string]string) (string, error) {
	if len(labels) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(labels); err != nil {
		return "", fmt.Errorf("marshal labels: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalLabels parses JSON TEXT to run labels.
func unmarshalLabels(data string) (map[string]string, error) {
	labels := map[string]string{}
	if data == "" || data == "{}" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(data), &labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	return labels, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
