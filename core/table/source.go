// Package table models braille table definitions: the YAML source a human
// writes, and the JSON document generated from it.
package table

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/braille-lib/core/errors"
)

// Defaults applied to header fields the source leaves out.
const (
	DefaultSchemaVersion = "1.0"
	DefaultCellSize      = 6
)

// Header holds the table-level metadata of a braille table. Every field is
// optional in the source; ApplyDefaults fills the gaps.
type Header struct {
	SchemaVersion string
	SystemID      string
	SystemName    string
	Version       string
	Source        string
	Locale        string
	BrailleType   string
	CellSize      int
	// Settings is passed through untouched. Nil when the source has none.
	Settings Fields

	cellSizeSet bool
}

// ApplyDefaults fills schema_version and cell_size when the source left them
// out. Missing strings stay empty.
func (h *Header) ApplyDefaults() {
	if h.SchemaVersion == "" {
		h.SchemaVersion = DefaultSchemaVersion
	}
	if !h.cellSizeSet {
		h.CellSize = DefaultCellSize
		h.cellSizeSet = true
	}
}

// SetCellSize records an explicit cell size so ApplyDefaults keeps it, even 0.
func (h *Header) SetCellSize(n int) {
	h.CellSize = n
	h.cellSizeSet = true
}

// Source is a parsed table definition.
type Source struct {
	Header
	Entries []Fields
}

// Parse decodes a YAML table definition. path is used in error messages only.
//
// An empty document returns an error matching errors.ErrEmpty. A document
// without an entries key is a table with no entries.
func Parse(data []byte, path string) (*Source, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("YAML", path, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, errors.Wrapf(errors.ErrEmpty, "%s: empty document", path)
	}
	root := resolveAlias(doc.Content[0])
	if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
		return nil, errors.Wrapf(errors.ErrEmpty, "%s: empty document", path)
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.NewParse("YAML", path, fmt.Sprintf("top level must be a mapping, got %s", kindName(root.Kind)))
	}

	src := &Source{Entries: []Fields{}}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, resolveAlias(root.Content[i+1])
		if err := src.set(key, val); err != nil {
			return nil, errors.NewParse("YAML", path, err.Error())
		}
	}
	src.ApplyDefaults()
	return src, nil
}

func (s *Source) set(key string, val *yaml.Node) error {
	switch key {
	case "schema_version":
		s.SchemaVersion = scalarText(val)
	case "system_id":
		s.SystemID = scalarText(val)
	case "system_name":
		s.SystemName = scalarText(val)
	case "version":
		s.Version = scalarText(val)
	case "source":
		s.Source = scalarText(val)
	case "locale":
		s.Locale = scalarText(val)
	case "braille_type":
		s.BrailleType = scalarText(val)
	case "cell_size":
		if isNull(val) {
			return nil
		}
		n, err := strconv.Atoi(val.Value)
		if err != nil || val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: cell_size must be an integer", val.Line)
		}
		s.SetCellSize(n)
	case "settings":
		if isNull(val) {
			return nil
		}
		var f Fields
		if err := f.UnmarshalYAML(val); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		s.Settings = f
	case "entries":
		if isNull(val) {
			return nil
		}
		if val.Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: entries must be a sequence", val.Line)
		}
		for n, item := range val.Content {
			var f Fields
			if err := f.UnmarshalYAML(item); err != nil {
				return fmt.Errorf("entry %d: %w", n, err)
			}
			s.Entries = append(s.Entries, f)
		}
	}
	return nil
}

// scalarText returns the literal text of a scalar, so `schema_version: 2.0`
// stays "2.0" rather than becoming a float.
func scalarText(n *yaml.Node) string {
	if n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return ""
	}
	return n.Value
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
