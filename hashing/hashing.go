// Package hashing implements the deterministic canonical-JSON content digest
// every cache write and journal comparison depends on. Two payloads that are
// structurally equal — regardless of the key order they were produced in —
// must hash identically, or the weekly full refresh would needlessly
// re-append journal entries for every entity it touches.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash returns the canonical content digest of payload. payload is first
// decoded through encoding/json with UseNumber so integers and floats
// round-trip in their shortest decimal form, then re-encoded with object
// keys sorted lexicographically at every nesting level and arrays left in
// their original order, and finally hashed with SHA-256.
//
// Hash is pure: calling it twice on equivalent JSON (independent of map key
// insertion order) yields the same digest.
func Hash(payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("hashing: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashJSON is Hash applied to an already-serialized JSON document, re-parsed
// with UseNumber so the digest is independent of the original formatting or
// key order.
func HashJSON(raw []byte) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("hashing: decode: %w", err)
	}
	return Hash(v)
}

// Canonicalize serializes payload with sorted object keys and preserved
// array order, suitable for hashing or for byte-equality comparisons.
func Canonicalize(payload any) ([]byte, error) {
	// Round-trip through JSON first so map[string]any, struct values, and
	// json.Number all normalize to the same in-memory shape.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf []byte
	buf, err = appendCanonical(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if val {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case json.Number:
		return append(buf, val.String()...), nil
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, encoded...), nil
	case []any:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, encodedKey...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("hashing: unsupported type %T", v)
	}
}
