package storage

import (
	"encoding/json"
	"fmt"
	"math"
)

// nanToken encodes a NaN payload value, which encoding/json refuses to
// marshal. NaN is a legal cell value here (the coercion engine maps failed
// number parses to NaN), so payloads use an extended-JSON style wrapper for
// it, mirroring how document databases serialize non-finite doubles.
const nanToken = "NaN"

var nanWrapper = map[string]any{"$numberDouble": nanToken}

// encodePayload marshals a document payload to JSON text, replacing NaN
// values with the extended wrapper.
func encodePayload(payload map[string]any) (string, error) {
	safe := sanitizeValue(payload)
	b, err := json.Marshal(safe)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(b), nil
}

// decodePayload unmarshals JSON text back into a payload, restoring NaN
// values from their wrappers.
func decodePayload(text string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	restored := restoreValue(raw)
	payload, ok := restored.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is not an object")
	}
	return payload, nil
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return nanWrapper
		}
		return val
	case float32:
		return sanitizeValue(float64(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func restoreValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if token, ok := val["$numberDouble"].(string); ok && token == nanToken {
				return math.NaN()
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = restoreValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = restoreValue(item)
		}
		return out
	default:
		return v
	}
}
