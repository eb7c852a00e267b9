package activity

import (
	"encoding/json"
	"fmt"
)

// TruncatedMarker ends a string field that was cut short.
const TruncatedMarker = "\n... [TRUNCATED] ..."

// Truncator shrinks event data that exceeds a byte limit.
type Truncator interface {
	Truncate(data map[string]any, limit int) (map[string]any, *TruncationMeta, error)
}

// GreedyTruncator cuts every top-level field larger than half the limit.
// Long strings keep their head; other values are replaced by a placeholder.
type GreedyTruncator struct{}

// Truncate returns data unchanged when it fits, otherwise a truncated copy.
// A limit <= 0 disables truncation.
func (GreedyTruncator) Truncate(data map[string]any, limit int) (map[string]any, *TruncationMeta, error) {
	if limit <= 0 {
		return data, nil, nil
	}

	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to measure event data: %w", err)
	}
	size := len(serialized)
	if size <= limit {
		return data, nil, nil
	}

	var out map[string]any
	if err := json.Unmarshal(serialized, &out); err != nil {
		return nil, nil, fmt.Errorf("failed to copy event data: %w", err)
	}

	threshold := limit / 2
	for key, value := range out {
		if s, ok := value.(string); ok {
			if len(s) > threshold {
				out[key] = s[:threshold] + TruncatedMarker
			}
			continue
		}
		encoded, _ := json.Marshal(value)
		if len(encoded) > threshold {
			out[key] = map[string]string{
				"_truncated": "value exceeded size limit",
				"_type":      fmt.Sprintf("%T", value),
			}
		}
	}

	return out, &TruncationMeta{
		Truncated:    true,
		OriginalSize: size,
		TruncatedAt:  limit,
		Reason:       fmt.Sprintf("event data exceeded %d bytes", limit),
	}, nil
}
