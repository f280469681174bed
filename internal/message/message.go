// Package message implements the property message exchanged with a remote
// automation engine: an ordered mapping of string keys to string values that
// carries either a dispatch (command request) or a result.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Reserved keys understood by the engine.
const (
	KeyCommand        = "command"
	KeyTarget         = "target"
	KeyResultCode     = "resultCode"
	KeyResultInfo     = "resultInfo"
	KeyIsRemoteResult = "isRemoteResult"
	KeyChangeTimeout  = "changeTimeout"
)

// Property is a single key/value pair of a Message.
type Property struct {
	Key   string `json:"key" cbor:"key"`
	Value string `json:"value" cbor:"value"`
}

// Message is an ordered string→string mapping. Keys are case-sensitive and
// keep the order of their first insertion. The zero value is an empty message
// ready to use.
type Message struct {
	keys   []string
	values map[string]string
}

// New returns an empty Message.
func New() *Message {
	return &Message{values: make(map[string]string)}
}

// Of builds a Message from alternating key/value arguments.
// It panics if given an odd number of arguments.
func Of(kv ...string) *Message {
	if len(kv)%2 == 1 {
		panic("message.Of: odd argument count")
	}
	m := New()
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// FromProperties builds a Message from ordered pairs. Later duplicates
// overwrite the value but keep the first position.
func FromProperties(props []Property) *Message {
	m := New()
	for _, p := range props {
		m.Set(p.Key, p.Value)
	}
	return m
}

// Set stores value under key.
func (m *Message) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// SetInt stores the canonical decimal form of v under key.
func (m *Message) SetInt(key string, v int) {
	m.Set(key, strconv.Itoa(v))
}

// SetBool stores "true" or "false" under key.
func (m *Message) SetBool(key string, v bool) {
	m.Set(key, strconv.FormatBool(v))
}

// Get returns the value for key and whether it is set.
func (m *Message) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value for key, or "" when unset.
func (m *Message) Value(key string) string {
	v, _ := m.Get(key)
	return v
}

// Has reports whether key is set.
func (m *Message) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Int parses the value for key as a decimal integer.
func (m *Message) Int(key string) (int, error) {
	v, ok := m.Get(key)
	if !ok {
		return 0, fmt.Errorf("key %q not set", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("key %q: %w", key, err)
	}
	return n, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Message) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Message) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Properties returns the ordered key/value pairs.
func (m *Message) Properties() []Property {
	if m == nil {
		return nil
	}
	out := make([]Property, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, Property{Key: k, Value: m.values[k]})
	}
	return out
}

// Clone returns a deep copy. Cloning nil yields an empty message.
func (m *Message) Clone() *Message {
	out := New()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// Command returns the command name.
func (m *Message) Command() string { return m.Value(KeyCommand) }

// Target returns the logical sub-target on the remote side.
func (m *Message) Target() string { return m.Value(KeyTarget) }

// String renders the message as key=value pairs for logs.
func (m *Message) String() string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%q", k, m.values[k])
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON encodes the message as a JSON object in key order.
func (m *Message) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping the document's key order.
// Non-string scalar values are stored in their canonical JSON text form;
// nested objects, arrays and null are rejected.
func (m *Message) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode message: expected object")
	}

	out := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode message: expected key")
		}
		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		switch v := tok.(type) {
		case string:
			out.Set(key, v)
		case json.Number:
			out.Set(key, v.String())
		case bool:
			out.SetBool(key, v)
		case nil:
			return fmt.Errorf("decode message: key %q is null", key)
		default:
			return fmt.Errorf("decode message: key %q must be a scalar", key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	*m = *out
	return nil
}
