package vectorstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// validateValue checks that v is one of the payload value kinds.
func validateValue(path string, v any) error {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case Payload:
		return validatePayload(path, val)
	case map[string]any:
		return validatePayload(path, val)
	case []any:
		for i, item := range val {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("payload value %s has unsupported type %T", path, v)
	}
}

func validatePayload(path string, p map[string]any) error {
	for k, v := range p {
		child := k
		if path != "" {
			child = path + "." + k
		}
		if err := validateValue(child, v); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports whether every value in p is a supported kind.
func (p Payload) Validate() error {
	return validatePayload("", p)
}

// stamp returns a copy of p with key set to the RFC 3339 form of now.
func stamp(p Payload, key string, now time.Time) map[string]any {
	out := make(map[string]any, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = now.UTC().Format(time.RFC3339)
	return out
}
