package convert

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/FocuswithJustin/braille-lib/core/errors"
)

// ManifestName is the manifest file written into the output directory.
const ManifestName = "manifest.json"

// Manifest lists the outputs of a run with the hash of the source each one
// was generated from.
type Manifest struct {
	RunID       string          `json:"run_id"`
	GeneratedAt string          `json:"generated_at"`
	Mode        string          `json:"mode"`
	Files       []ManifestEntry `json:"files"`
}

// ManifestEntry is one generated file, with paths relative to the output
// directory where possible.
type ManifestEntry struct {
	Output     string `json:"output"`
	Source     string `json:"source"`
	SourceHash string `json:"blake3"`
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
}

// BuildManifest collects the successful results of report.
func (c *Converter) BuildManifest(report *Report) *Manifest {
	m := &Manifest{
		RunID:       report.RunID,
		GeneratedAt: report.Started.Format(time.RFC3339),
		Mode:        string(c.opts.Mode),
		Files:       []ManifestEntry{},
	}
	for _, res := range report.Results {
		if res.Err != nil {
			continue
		}
		out := res.Output
		if rel, err := filepath.Rel(c.opts.OutputDir, res.Output); err == nil {
			out = filepath.ToSlash(rel)
		}
		m.Files = append(m.Files, ManifestEntry{
			Output:     out,
			Source:     filepath.ToSlash(res.Input),
			SourceHash: res.SourceHash,
			Entries:    res.Entries,
			Bytes:      res.Bytes,
		})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Output < m.Files[j].Output })
	return m
}

// WriteManifest writes the manifest for report to OutputDir/manifest.json and
// returns its path.
func (c *Converter) WriteManifest(report *Report) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.BuildManifest(report)); err != nil {
		return "", errors.Wrap(err, "encode manifest")
	}
	path := filepath.Join(c.opts.OutputDir, ManifestName)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "manifest", ID: path, Err: err}
		}
		return nil, errors.NewIO("read", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapParse("JSON", path, err)
	}
	return &m, nil
}

// Entry returns the entry generated from source. A nil manifest has none.
func (m *Manifest) Entry(source string) (ManifestEntry, bool) {
	if m == nil {
		return ManifestEntry{}, false
	}
	source = filepath.ToSlash(source)
	for _, f := range m.Files {
		if f.Source == source {
			return f, true
		}
	}
	return ManifestEntry{}, false
}

// Unchanged reports whether the manifest records source with the given hash.
func (m *Manifest) Unchanged(source, hash string) bool {
	f, ok := m.Entry(source)
	return ok && f.SourceHash == hash
}

// unchanged returns the previous manifest entry for in when the source hash
// and the rendering mode both match the previous run.
func (c *Converter) unchanged(in, hash string) (ManifestEntry, bool) {
	prev := c.opts.Previous
	if prev == nil || prev.Mode != string(c.opts.Mode) {
		return ManifestEntry{}, false
	}
	if !prev.Unchanged(in, hash) {
		return ManifestEntry{}, false
	}
	return prev.Entry(in)
}
