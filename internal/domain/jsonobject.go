package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one key/value member of a JSON object, kept in source order.
type Field struct {
	Key   string
	Value json.RawMessage
}

// decodeObject splits a JSON object into its members without reordering them.
// Duplicate keys keep the last occurrence, matching encoding/json semantics.
func decodeObject(data []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read object start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var fields []Field
	seen := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string key %v", ErrNotObject, keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read value of %q: %w", key, err)
		}

		if i, dup := seen[key]; dup {
			fields[i].Value = raw
			continue
		}
		seen[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read object end: %w", err)
	}
	return fields, nil
}

// objectWriter builds a JSON object with a fixed member order.
type objectWriter struct {
	buf bytes.Buffer
	n   int
	err error
}

func newObjectWriter() *objectWriter {
	w := &objectWriter{}
	w.buf.WriteByte('{')
	return w
}

// raw appends a member whose value is already encoded JSON.
func (w *objectWriter) raw(key string, value json.RawMessage) {
	if w.err != nil {
		return
	}
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	keyJSON, err := marshalNoEscape(key)
	if err != nil {
		w.err = err
		return
	}
	if w.n > 0 {
		w.buf.WriteByte(',')
	}
	w.buf.Write(keyJSON)
	w.buf.WriteByte(':')
	w.buf.Write(value)
	w.n++
}

// value appends a member, encoding v without HTML escaping.
func (w *objectWriter) value(key string, v any) {
	if w.err != nil {
		return
	}
	encoded, err := marshalNoEscape(v)
	if err != nil {
		w.err = fmt.Errorf("encode %q: %w", key, err)
		return
	}
	w.raw(key, encoded)
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// marshalNoEscape encodes v the way the corpus files are written: UTF-8 text
// and comparison operators stay literal instead of becoming \u003c escapes.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Value is a JSON value carried through verbatim. Corpus files are not
// consistent about the type of some fields (answer is a string in some
// categories and a list in others, year is sometimes numeric), so these
// are kept as written and only interpreted on demand.
type Value json.RawMessage

// TextValue wraps s as a JSON string value.
func TextValue(s string) Value {
	b, _ := marshalNoEscape(s)
	return Value(b)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = append((*v)[:0], data...)
	return nil
}

// IsZero reports whether the value is absent or null.
func (v Value) IsZero() bool {
	trimmed := bytes.TrimSpace(v)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Text renders the value as plain text. Strings are unquoted, lists are
// joined with ", " and other scalars are returned as written.
func (v Value) Text() string {
	if v.IsZero() {
		return ""
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}

	var list []Value
	if err := json.Unmarshal(v, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, ", ")
	}

	return string(bytes.TrimSpace(v))
}
