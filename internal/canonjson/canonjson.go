// Package canonjson produces a deterministic, key-sorted JSON encoding used
// to fingerprint tool calls. It intentionally never emits insignificant whitespace so two
// semantically equal values always produce byte-identical output.
package canonjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Encode returns the canonical JSON encoding of v: object keys sorted
// lexicographically at every nesting level, no extraneous whitespace.
func Encode(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the canonical JSON encoding of v as a string, suitable
// for use as a map key or dedup token. For a value that cannot be
// JSON-encoded at all it returns "<unencodable:...>" carrying the encoding
// error instead of panicking (tool-call arguments always originate from
// decoded JSON, so this path is not expected in practice).
func Fingerprint(v any) string {
	out, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("<unencodable:%v>", err)
	}
	return string(out)
}

// normalize round-trips v through encoding/json so arbitrary Go values
// (structs, maps with non-string-but-marshalable values) land on the
// map[string]any / []any / scalar shape writeValue understands.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]any:
		return writeObject(buf, val)
	case []any:
		return writeArray(buf, val)
	default:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	}
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyEnc, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(keyEnc)
		buf.WriteByte(':')
		if err := writeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}
