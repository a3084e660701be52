package table

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// SchemaURI is written as the "$schema" member of every generated document.
const SchemaURI = "https://json-schema.org/draft/2020-12/schema"

// Document is the generated JSON form of a braille table.
type Document struct {
	Schema        string   `json:"$schema"`
	SchemaVersion string   `json:"schema_version"`
	SystemID      string   `json:"system_id"`
	SystemName    string   `json:"system_name"`
	Version       string   `json:"version"`
	Source        string   `json:"source"`
	Locale        string   `json:"locale"`
	BrailleType   string   `json:"braille_type"`
	CellSize      int      `json:"cell_size"`
	GeneratedAt   string   `json:"generated_at"`
	Entries       []Fields `json:"entries"`
	Settings      Fields   `json:"settings,omitempty"`
}

// Build enriches every entry of src and stamps the document with now in UTC.
// Entries keep their source order.
func Build(src *Source, now time.Time, mode Mode) *Document {
	h := src.Header
	h.ApplyDefaults()

	entries := make([]Fields, 0, len(src.Entries))
	for _, e := range src.Entries {
		entries = append(entries, Enrich(e, mode))
	}
	return &Document{
		Schema:        SchemaURI,
		SchemaVersion: h.SchemaVersion,
		SystemID:      h.SystemID,
		SystemName:    h.SystemName,
		Version:       h.Version,
		Source:        h.Source,
		Locale:        h.Locale,
		BrailleType:   h.BrailleType,
		CellSize:      h.CellSize,
		GeneratedAt:   now.UTC().Format(time.RFC3339Nano),
		Entries:       entries,
		Settings:      h.Settings,
	}
}

// Encode writes the document as two-space indented JSON. Non-ASCII text such as
// the braille glyphs is written as UTF-8, not escaped.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Bytes returns the encoded document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a generated document back, keeping entry field order.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
