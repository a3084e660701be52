package table

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field is one key/value pair of an ordered mapping.
type Field struct {
	Key   string
	Value any
}

// Fields is a mapping that remembers the order its keys were written in.
// Nested mappings decode as Fields, sequences as []any and scalars as the
// value yaml.v3 resolves for their tag, except numbers written in JSON syntax,
// which decode as json.Number holding their literal text.
type Fields []Field

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	for _, kv := range f {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Keys returns the keys in order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f))
	for i, kv := range f {
		keys[i] = kv.Key
	}
	return keys
}

// Set replaces the value of an existing key in place, or appends the key.
func (f Fields) Set(key string, value any) Fields {
	for i, kv := range f {
		if kv.Key == key {
			f[i].Value = value
			return f
		}
	}
	return append(f, Field{Key: key, Value: value})
}

// Clone returns a copy whose top level can be modified without touching f.
// Nested values are shared.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// UnmarshalYAML decodes a mapping node, keeping key order.
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, kindName(node.Kind))
	}
	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if key.ShortTag() == "!!merge" {
			merged, err := mergeFields(val)
			if err != nil {
				return err
			}
			for _, kv := range merged {
				if !out.Has(kv.Key) {
					out = append(out, kv)
				}
			}
			continue
		}
		v, err := decodeValue(val)
		if err != nil {
			return err
		}
		out = out.Set(key.Value, v)
	}
	*f = out
	return nil
}

// MarshalJSON writes the mapping as a JSON object in key order without HTML
// escaping.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalJSON(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalJSON(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", kv.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. Numbers decode as
// json.Number so integers survive a round trip unchanged.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}
	out, err := decodeJSONObject(dec)
	if err != nil {
		return err
	}
	*f = out
	return nil
}

// decodeJSONObject reads members up to and including the closing brace.
func decodeJSONObject(dec *json.Decoder) (Fields, error) {
	out := Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		v, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}
		out = out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		return decodeJSONObject(dec)
	case '[':
		items := []any{}
		for dec.More() {
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return items, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", d)
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeValue(node *yaml.Node) (any, error) {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.MappingNode:
		var f Fields
		if err := f.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return f, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	default:
		if n, ok := literalNumber(node); ok {
			return n, nil
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil
	}
}

// literalNumber keeps the source text of an int or float scalar that is
// already a valid JSON number, so 1.0 and 1e3 are written back as authored.
func literalNumber(node *yaml.Node) (json.Number, bool) {
	if tag := node.ShortTag(); tag != "!!int" && tag != "!!float" {
		return "", false
	}
	v := node.Value
	if v == "" || (v[0] != '-' && (v[0] < '0' || v[0] > '9')) || !json.Valid([]byte(v)) {
		return "", false
	}
	return json.Number(v), true
}

func mergeFields(node *yaml.Node) (Fields, error) {
	node = resolveAlias(node)
	if node.Kind == yaml.SequenceNode {
		var out Fields
		for _, item := range node.Content {
			var f Fields
			if err := f.UnmarshalYAML(item); err != nil {
				return nil, err
			}
			for _, kv := range f {
				if !out.Has(kv.Key) {
					out = append(out, kv)
				}
			}
		}
		return out, nil
	}
	var f Fields
	err := f.UnmarshalYAML(node)
	return f, err
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown node"
}
