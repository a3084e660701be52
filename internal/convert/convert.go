// Package convert turns braille table sources (YAML) into the generated JSON
// documents, one file at a time or a whole directory per run.
//
// In a directory run every file is independent: a file that fails to parse
// or write is logged, recorded in the Report and skipped.
package convert

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookgo/atomicfile"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/braille-lib/core/errors"
	"github.com/FocuswithJustin/braille-lib/core/table"
	"github.com/FocuswithJustin/braille-lib/internal/logging"
	"github.com/FocuswithJustin/braille-lib/internal/metrics"
	"github.com/FocuswithJustin/braille-lib/internal/validation"
)

const (
	DefaultSourceDir = "data/source"
	DefaultOutputDir = "data/output"
	DefaultSystem    = "ueb"
)

// Systems lists the braille systems a system run accepts.
var Systems = []string{"ueb", "kana", "nemeth"}

// ErrNoSources is returned when a directory holds no YAML sources.
var ErrNoSources = errors.Wrap(errors.ErrEmpty, "no YAML source files found")

// Injectable for tests.
var (
	createAtomic = func(path string, mode os.FileMode) (atomicWriter, error) {
		return atomicfile.New(path, mode)
	}
	readFile = os.ReadFile
)

type atomicWriter interface {
	Write(p []byte) (int, error)
	Close() error
	Abort() error
}

// Options configures a Converter. Zero values take the documented defaults.
type Options struct {
	SourceDir string
	OutputDir string
	Mode      table.Mode
	// Recursive makes directory runs descend into sub-directories. Outputs
	// mirror the sub-directory layout under OutputDir.
	Recursive bool
	// Clock stamps generated_at. Defaults to time.Now.
	Clock func() time.Time
	// Previous, when set, skips sources whose hash it records and whose
	// output still exists. A manifest written in another Mode skips nothing.
	Previous *Manifest
}

// Converter runs conversions with fixed options.
type Converter struct {
	opts Options
}

// New returns a Converter with defaults applied to opts.
func New(opts Options) *Converter {
	if opts.SourceDir == "" {
		opts.SourceDir = DefaultSourceDir
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.Mode == "" {
		opts.Mode = table.ModeCells
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Converter{opts: opts}
}

// Options returns the effective options.
func (c *Converter) Options() Options { return c.opts }

// Result describes one converted source file.
type Result struct {
	Input      string `json:"source"`
	Output     string `json:"output"`
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
	SourceHash string `json:"blake3"`
	// Skipped is set when the source was unchanged since Previous.
	Skipped bool  `json:"-"`
	Err     error `json:"-"`
}

// Report collects the results of one run.
type Report struct {
	RunID   string
	Started time.Time
	Results []Result
}

func newReport(now time.Time) *Report {
	return &Report{RunID: uuid.NewString(), Started: now.UTC()}
}

// Converted counts files written in this run.
func (r *Report) Converted() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			n++
		}
	}
	return n
}

// Skipped counts unchanged files.
func (r *Report) Skipped() int {
	n := 0
	for _, res := range r.Results {
		if res.Skipped {
			n++
		}
	}
	return n
}

// Failed returns the failed results.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err is non-nil only when every file of the run failed.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(r.Results) == 0 || len(failed) < len(r.Results) {
		return nil
	}
	return errors.Wrapf(failed[0].Err, "all %d source files failed", len(failed))
}

// Summary renders a one-line description of the run.
func (r *Report) Summary() string {
	var total int64
	entries := 0
	for _, res := range r.Results {
		if res.Skipped {
			continue
		}
		total += res.Bytes
		entries += res.Entries
	}
	summary := fmt.Sprintf("converted %d of %d files, %d entries, %s written",
		r.Converted(), len(r.Results), entries, humanize.Bytes(uint64(total)))
	if n := r.Skipped(); n > 0 {
		summary += fmt.Sprintf(", %d unchanged", n)
	}
	return summary
}

// ConvertFile converts one source file. An empty out writes
// OutputDir/<stem>.json.
func (c *Converter) ConvertFile(ctx context.Context, in, out string) (Result, error) {
	start := time.Now()
	res, err := c.convertFile(in, out)
	res.Err = err
	if !res.Skipped {
		metrics.RecordFile(string(c.opts.Mode), res.Entries, err, time.Since(start))
	}
	if err != nil {
		logging.FileFailed(ctx, in, err)
		return res, err
	}
	if res.Skipped {
		logging.LoggerFromContext(ctx).Debug("file_unchanged", "source", in, "output", res.Output)
		return res, nil
	}
	logging.FileConverted(ctx, in, res.Output, res.Entries,
		"mode", string(c.opts.Mode), "bytes", res.Bytes)
	return res, nil
}

func (c *Converter) convertFile(in, out string) (Result, error) {
	res := Result{Input: in}
	if err := validation.ValidatePath(in); err != nil {
		return res, &errors.ValidationError{Field: "input", Value: in, Message: err.Error(), Err: err}
	}
	info, err := os.Stat(in)
	if err != nil {
		if os.IsNotExist(err) {
			return res, &errors.NotFoundError{Resource: "source file", ID: in, Err: err}
		}
		return res, errors.NewIO("stat", in, err)
	}
	if info.IsDir() {
		return res, errors.NewValidation("input", in, "is a directory")
	}
	if err := validation.ValidateFileSize(info.Size()); err != nil {
		return res, &errors.ValidationError{Field: "input", Value: in, Message: err.Error(), Err: err}
	}

	data, err := readFile(in)
	if err != nil {
		return res, errors.NewIO("read", in, err)
	}
	sum := blake3.Sum256(data)
	res.SourceHash = hex.EncodeToString(sum[:])

	if out == "" {
		out = filepath.Join(c.opts.OutputDir, stem(in)+".json")
	}
	if prev, ok := c.unchanged(in, res.SourceHash); ok {
		if info, err := os.Stat(out); err == nil && !info.IsDir() {
			res.Output = out
			res.Entries = prev.Entries
			res.Bytes = prev.Bytes
			res.Skipped = true
			return res, nil
		}
	}

	src, err := table.Parse(data, in)
	if err != nil {
		return res, err
	}
	doc := table.Build(src, c.opts.Clock(), c.opts.Mode)
	encoded, err := doc.Bytes()
	if err != nil {
		return res, errors.Wrapf(err, "encode %s", in)
	}

	if err := writeAtomic(out, encoded); err != nil {
		return res, err
	}
	res.Output = out
	res.Entries = len(doc.Entries)
	res.Bytes = int64(len(encoded))
	return res, nil
}

// ConvertDir converts every .yaml and .yml file in dir, in sorted order.
func (c *Converter) ConvertDir(ctx context.Context, dir string) (*Report, error) {
	files, err := c.sources(dir)
	if err != nil {
		return nil, err
	}

	report := newReport(c.opts.Clock())
	ctx = logging.WithRunID(ctx, report.RunID)
	logging.InfoContext(ctx, "conversion started", "dir", dir, "files", len(files), "mode", string(c.opts.Mode))

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		in := filepath.Join(dir, rel)
		out := filepath.Join(c.opts.OutputDir, filepath.Dir(rel), stem(rel)+".json")
		res, _ := c.ConvertFile(ctx, in, out)
		report.Results = append(report.Results, res)
	}

	logging.InfoContext(ctx, "conversion finished", "summary", report.Summary())
	return report, nil
}

// ConvertSystem converts SourceDir/<system>. An empty system means DefaultSystem.
func (c *Converter) ConvertSystem(ctx context.Context, system string) (*Report, error) {
	if system == "" {
		system = DefaultSystem
	}
	if !IsSystem(system) {
		return nil, errors.NewValidation("system", system,
			fmt.Sprintf("unknown braille system, want one of %s", strings.Join(Systems, ", ")))
	}
	return c.ConvertDir(ctx, filepath.Join(c.opts.SourceDir, system))
}

// IsSystem reports whether name is one of Systems.
func IsSystem(name string) bool {
	for _, s := range Systems {
		if s == name {
			return true
		}
	}
	return false
}

// sources lists YAML files under dir as paths relative to dir.
func (c *Converter) sources(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "source directory", ID: dir, Err: err}
		}
		return nil, errors.NewIO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidation("dir", dir, "not a directory")
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !c.opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSource(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("walk", dir, err)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNoSources, "%s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// IsSource reports whether path has a YAML extension.
func IsSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIO("create directory for", path, err)
	}
	f, err := createAtomic(path, 0644)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return errors.NewIO("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("commit", path, err)
	}
	return nil
}
