package memory

import (
	"encoding/json"
	"fmt"
)

// RawMetadataKey holds the original text of metadata that failed to decode.
const RawMetadataKey = "_raw"

// Metadata is optional structured data attached to records. Values are
// scalars: string, float64, bool or nil.
type Metadata map[string]any

// Scalars returns a copy of m with every value coerced to a scalar. Integers
// become float64; composite values are replaced by their JSON text.
func (m Metadata) Scalars() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = scalar(v)
	}
	return out
}

func scalar(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// String returns the value under key when it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Raw reports whether m wraps undecodable text, and returns it.
func (m Metadata) Raw() (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	s, ok := m[RawMetadataKey].(string)
	return s, ok
}

// EncodeMetadata serializes m as JSON text. Empty metadata encodes to
// ok=false so callers can store NULL.
func EncodeMetadata(m Metadata) (text string, ok bool, err error) {
	if len(m) == 0 {
		return "", false, nil
	}
	if raw, isRaw := m.Raw(); isRaw {
		return raw, true, nil
	}
	b, err := json.Marshal(m.Scalars())
	if err != nil {
		return "", false, Wrap(ErrCodeMalformedMetadata, "encode metadata", err)
	}
	return string(b), true, nil
}

// DecodeMetadata parses stored metadata text. Text that is not a JSON object
// is kept verbatim under RawMetadataKey.
func DecodeMetadata(text string) Metadata {
	if text == "" {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(text), &m); err != nil || m == nil {
		return Metadata{RawMetadataKey: text}
	}
	return m.Scalars()
}
