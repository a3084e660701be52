// Command braille converts braille table definitions, encodes dot patterns
// and runs chorded-keyboard sessions.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/braille-lib/core/braille"
	"github.com/FocuswithJustin/braille-lib/core/chord"
	"github.com/FocuswithJustin/braille-lib/core/errors"
	"github.com/FocuswithJustin/braille-lib/core/table"
	"github.com/FocuswithJustin/braille-lib/internal/bundle"
	"github.com/FocuswithJustin/braille-lib/internal/chordserver"
	"github.com/FocuswithJustin/braille-lib/internal/convert"
	"github.com/FocuswithJustin/braille-lib/internal/index"
	"github.com/FocuswithJustin/braille-lib/internal/logging"
	"github.com/FocuswithJustin/braille-lib/internal/sqlite"
	"github.com/FocuswithJustin/braille-lib/internal/validation"
	"github.com/FocuswithJustin/braille-lib/internal/watch"
)

const version = "0.2.0"

// stdout receives command output. Logs go to stderr.
var stdout io.Writer = os.Stdout

// stdin feeds `chord replay -`.
var stdin io.Reader = os.Stdin

// CLI defines the command-line interface for braille.
var CLI struct {
	// Global flags
	LogLevel  string          `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" enum:"debug,info,warn,error" env:"BRAILLE_LOG_LEVEL"`
	LogFormat string          `name:"log-format" help:"Log format (text, json)" default:"text" enum:"text,json" env:"BRAILLE_LOG_FORMAT"`
	Config    kong.ConfigFlag `help:"Load flag defaults from a JSON file" type:"path"`

	Convert ConvertCmd `cmd:"" help:"Convert YAML table definitions to JSON"`
	Encode  EncodeCmd  `cmd:"" help:"Encode dot descriptors as braille cells"`
	Chord   ChordGroup `cmd:"" help:"Chorded keyboard input"`
	Bundle  BundleCmd  `cmd:"" help:"Pack generated tables into a tar.xz bundle"`
	Index   IndexCmd   `cmd:"" help:"Load generated tables into a SQLite index"`
	Lookup  LookupCmd  `cmd:"" help:"Look up entries by id, print text or glyph"`
	Layouts LayoutsCmd `cmd:"" help:"List chord keyboard layouts"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ChordGroup contains chord session commands.
type ChordGroup struct {
	Replay ChordReplayCmd `cmd:"" help:"Replay a key script through a chord session"`
	Serve  ChordServeCmd  `cmd:"" help:"Serve chord sessions over WebSocket"`
}

// ConvertCmd converts one file, one directory or one braille system.
type ConvertCmd struct {
	Input       string `short:"i" help:"Source file or directory" type:"path"`
	Output      string `short:"o" help:"Output file (single file input only)" type:"path"`
	System      string `short:"s" help:"Braille system to convert when no input is given" default:"ueb" enum:"ueb,kana,nemeth"`
	SourceDir   string `name:"source-dir" help:"Root of the per-system source directories" default:"data/source" type:"path"`
	OutputDir   string `name:"output-dir" help:"Directory for generated tables" default:"data/output" type:"path"`
	Mode        string `help:"Cell rendering mode (cells, combined)" default:"cells" enum:"cells,combined"`
	Recursive   bool   `short:"r" help:"Descend into sub-directories"`
	Manifest    bool   `help:"Write manifest.json to the output directory"`
	Incremental bool   `help:"Skip sources unchanged since the last manifest (implies --manifest)"`
	Watch       bool   `short:"w" help:"Keep running and convert sources as they change"`
}

func (c *ConvertCmd) Run(ctx context.Context) error {
	mode, err := table.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	opts := convert.Options{
		SourceDir: c.SourceDir,
		OutputDir: c.OutputDir,
		Mode:      mode,
		Recursive: c.Recursive,
	}
	if c.Incremental {
		prev, err := convert.ReadManifest(filepath.Join(c.OutputDir, convert.ManifestName))
		switch {
		case err == nil:
			opts.Previous = prev
		case errors.Is(err, errors.ErrNotFound):
			logging.Debug("no previous manifest, converting everything", "output_dir", c.OutputDir)
		default:
			return err
		}
	}
	conv := convert.New(opts)

	var dir string
	if c.Input != "" {
		if err := validation.ValidatePath(c.Input); err != nil {
			return fmt.Errorf("invalid input path: %w", err)
		}
		info, err := os.Stat(c.Input)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.NewNotFound("input", c.Input)
			}
			return errors.NewIO("stat", c.Input, err)
		}
		if !info.IsDir() {
			res, err := conv.ConvertFile(ctx, c.Input, c.Output)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s -> %s (%d entries)\n", res.Input, res.Output, res.Entries)
			if c.Watch {
				return c.watchFile(ctx, conv, c.Input, res.Output)
			}
			return nil
		}
		dir = c.Input
	} else {
		dir = filepath.Join(c.SourceDir, c.System)
	}
	if c.Output != "" {
		logging.Warn("--output is ignored for directory input", "output", c.Output)
	}

	var report *convert.Report
	if c.Input != "" {
		report, err = conv.ConvertDir(ctx, dir)
	} else {
		report, err = conv.ConvertSystem(ctx, c.System)
	}
	if err != nil {
		return err
	}
	printReport(report)
	if c.Manifest || c.Incremental {
		path, err := conv.WriteManifest(report)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "manifest: %s\n", path)
	}
	if err := report.Err(); err != nil {
		return err
	}
	if c.Watch {
		return c.watchDir(ctx, conv, dir)
	}
	return nil
}

func printReport(report *convert.Report) {
	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			fmt.Fprintf(stdout, "FAIL %s: %v\n", res.Input, res.Err)
		case res.Skipped:
			fmt.Fprintf(stdout, "skip %s\n", res.Input)
		default:
			fmt.Fprintf(stdout, "ok   %s -> %s (%d entries)\n", res.Input, res.Output, res.Entries)
		}
	}
	fmt.Fprintln(stdout, report.Summary())
}

func (c *ConvertCmd) watchFile(ctx context.Context, conv *convert.Converter, in, out string) error {
	logging.Info("watching for changes", "path", in)
	return watch.Watch(ctx, []string{in}, watch.Options{}, func(ctx context.Context, path string) error {
		_, err := conv.ConvertFile(ctx, in, out)
		return err
	})
}

func (c *ConvertCmd) watchDir(ctx context.Context, conv *convert.Converter, dir string) error {
	paths := []string{dir}
	if c.Recursive {
		paths = nil
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return errors.NewIO("walk", dir, err)
		}
	}
	logging.Info("watching for changes", "dir", dir, "directories", len(paths))
	return watch.Watch(ctx, paths, watch.Options{Match: convert.IsSource}, func(ctx context.Context, path string) error {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out := filepath.Join(conv.Options().OutputDir, filepath.Dir(rel),
			strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))+".json")
		_, err = conv.ConvertFile(ctx, path, out)
		return err
	})
}

// EncodeCmd prints the cell for a set of dot descriptors.
type EncodeCmd struct {
	Dots  []string `arg:"" help:"Dot descriptors such as 1, 12 or 145"`
	Cells bool     `help:"Print one cell per descriptor instead of combining them"`
}

func (c *EncodeCmd) Run() error {
	if c.Cells {
		cells := braille.EncodeCells(c.Dots)
		for i, cell := range cells {
			mask := uint8(cell - braille.Base)
			fmt.Fprintf(stdout, "%s\t%s\t%s\tdots=%s\n", c.Dots[i], string(cell), braille.Codepoint(cell), braille.Dots(mask))
		}
		fmt.Fprintf(stdout, "%s\t%s\n", braille.Glyphs(cells), braille.Codepoints(cells))
		return nil
	}
	mask := braille.MaskOf(c.Dots...)
	cell := braille.Cell(mask)
	fmt.Fprintf(stdout, "%s\t%s\tdots=%s\tmask=0x%02X\n", string(cell), braille.Codepoint(cell), braille.Dots(mask), mask)
	return nil
}

// ChordReplayCmd feeds a key script through a session and prints the cells.
type ChordReplayCmd struct {
	Script string         `arg:"" help:"Key script file, or - for stdin" type:"existingfile"`
	Layout string         `short:"l" help:"Keyboard layout" default:"fds-jkl"`
	Keys   map[string]int `help:"Custom key to dot map replacing --layout, e.g. a=1;s=2;d=3"`
}

func (c *ChordReplayCmd) Run(ctx context.Context) error {
	layout, err := resolveLayout(c.Layout, c.Keys)
	if err != nil {
		return err
	}
	src, err := c.source()
	if err != nil {
		return err
	}
	session := chord.NewSession(layout,
		chord.EmitterFunc(func(cell rune, mask uint8) error {
			logging.ChordEmitted(layout.Name, cell, mask)
			return chord.TextEmitter{W: stdout}.Emit(cell, mask)
		}),
		chord.ForwarderFunc(func(ev chord.Event) error {
			logging.Debug("key passed through", "key", ev.Key, "direction", ev.Dir.String())
			return nil
		}),
	)
	if err := chord.Run(ctx, src, session); err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	if st := session.State(); st.Phase() != chord.Idle {
		logging.Warn("script ended inside a chord", "held", strings.Join(st.HeldKeys(), ","))
	}
	return nil
}

func (c *ChordReplayCmd) source() (chord.Source, error) {
	if c.Script == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.NewIO("read", "stdin", err)
		}
		src, err := chord.ScriptSource("stdin", string(data))
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	events, err := chord.LoadScript(c.Script)
	if err != nil {
		return nil, err
	}
	return chord.NewSliceSource(events), nil
}

// ChordServeCmd serves chord sessions until interrupted.
type ChordServeCmd struct {
	Addr    string         `help:"Listen address" default:"127.0.0.1:8765"`
	Layout  string         `short:"l" help:"Default keyboard layout" default:"fds-jkl"`
	Keys    map[string]int `help:"Custom key to dot map used as the default layout, e.g. a=1;s=2;d=3"`
	Origins []string       `help:"Additional allowed browser origins (* allows any)"`
}

func (c *ChordServeCmd) Run(ctx context.Context) error {
	layout, err := resolveLayout(c.Layout, c.Keys)
	if err != nil {
		return err
	}
	srv := chordserver.New(chordserver.Config{
		Addr:           c.Addr,
		Layout:         layout,
		AllowedOrigins: c.Origins,
	})
	return srv.ListenAndServe(ctx)
}

// resolveLayout returns a custom layout built from keys when any are given,
// otherwise the named built-in layout.
func resolveLayout(name string, keys map[string]int) (chord.Layout, error) {
	if len(keys) > 0 {
		l, err := chord.NewLayout("custom", keys, chord.SpaceKey)
		if err != nil {
			return chord.Layout{}, &errors.ValidationError{Field: "keys", Message: err.Error(), Err: err}
		}
		return l, nil
	}
	l, ok := chord.LookupLayout(name)
	if !ok {
		return chord.Layout{}, errors.NewValidation("layout", name,
			fmt.Sprintf("unknown layout, want one of %s", strings.Join(chord.LayoutNames(), ", ")))
	}
	return l, nil
}

// BundleCmd packs an output directory, or reads an existing bundle.
type BundleCmd struct {
	Dir     string `help:"Directory of generated tables" default:"data/output" type:"path"`
	Out     string `help:"Bundle file to write" type:"path"`
	From    string `help:"Existing bundle to read; lists its entries unless --extract or --cat is given" type:"path"`
	Extract string `help:"Unpack the --from bundle into this directory" type:"path"`
	Cat     string `help:"Print one entry of the --from bundle"`
}

func (c *BundleCmd) Run() error {
	var entries []bundle.Entry
	var err error
	switch {
	case c.From != "" && c.Cat != "":
		data, err := bundle.ReadFile(c.From, c.Cat)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	case c.From != "" && c.Extract != "":
		if err := validation.ValidatePath(c.Extract); err != nil {
			return fmt.Errorf("invalid extract path: %w", err)
		}
		entries, err = bundle.Extract(c.From, c.Extract)
	case c.From != "":
		entries, err = bundle.List(c.From)
	case c.Extract != "" || c.Cat != "":
		return errors.NewValidation("from", "", "--extract and --cat need --from")
	case c.Out != "":
		if err := validation.ValidatePath(c.Out); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
		entries, err = bundle.Create(c.Dir, c.Out)
	default:
		return errors.NewValidation("out", "", "either --out or --from is required")
	}
	if err != nil {
		return err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
		fmt.Fprintf(stdout, "%8s  %s\n", humanize.Bytes(uint64(e.Size)), e.Name)
	}
	fmt.Fprintf(stdout, "%d files, %s\n", len(entries), humanize.Bytes(uint64(total)))
	return nil
}

// IndexCmd loads generated JSON tables into the index database.
type IndexCmd struct {
	DB     string   `help:"Index database path" default:"data/braille.db" type:"path"`
	Inputs []string `arg:"" help:"Generated JSON tables or directories of them" type:"path"`
}

func (c *IndexCmd) Run(ctx context.Context) error {
	x, err := index.Open(ctx, c.DB)
	if err != nil {
		return err
	}
	defer x.Close()

	files, err := tableFiles(c.Inputs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Wrap(errors.ErrEmpty, "no JSON tables found")
	}
	for _, path := range files {
		name, n, err := x.LoadFile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "loaded %s (%d entries)\n", name, n)
	}

	systems, err := x.Systems(ctx)
	if err != nil {
		return err
	}
	for _, s := range systems {
		fmt.Fprintf(stdout, "%s\t%s\t%d tables\t%d entries\n", s.ID, s.Name, s.Tables, s.Entries)
	}
	return nil
}

// tableFiles expands directories to the JSON tables beneath them, leaving out
// manifests.
func tableFiles(inputs []string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewNotFound("input", in)
			}
			return nil, errors.NewIO("stat", in, err)
		}
		if !info.IsDir() {
			files = append(files, in)
			continue
		}
		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || d.Name() == convert.ManifestName || !strings.EqualFold(filepath.Ext(path), ".json") {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, errors.NewIO("walk", in, err)
		}
	}
	return files, nil
}

// LookupCmd searches the index.
type LookupCmd struct {
	DB    string `help:"Index database path" default:"data/braille.db" type:"path"`
	Query string `arg:"" help:"Entry id, print text or braille glyph"`
}

func (c *LookupCmd) Run(ctx context.Context) error {
	x, err := index.OpenReadOnly(ctx, c.DB)
	if err != nil {
		return err
	}
	defer x.Close()

	matches, err := x.Lookup(ctx, c.Query)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return errors.NewNotFound("entry", c.Query)
	}
	for _, m := range matches {
		fmt.Fprintf(stdout, "%s/%s#%d\t%s\t%s\t%s\t%s\tdots=%s\n",
			m.System, m.Table, m.Position, m.ID, m.Print, m.Braille, m.Unicode, m.Dots)
	}
	return nil
}

// LayoutsCmd lists the built-in layouts.
type LayoutsCmd struct{}

func (c *LayoutsCmd) Run() error {
	for _, name := range chord.LayoutNames() {
		marker := " "
		if name == chord.DefaultLayout {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s\n", marker, chord.LayoutByName(name))
	}
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "braille version %s (sqlite %s, %s)\n", version, info.DriverType, info.Package)
	return nil
}

func initLogging(level, format string) error {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	f, err := logging.ParseFormat(format)
	if err != nil {
		return err
	}
	logging.InitLogger(lvl, f)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("braille"),
		kong.Description("Braille tables, dot encoding and chord input"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON),
	)
	ctx.FatalIfErrorf(initLogging(CLI.LogLevel, CLI.LogFormat))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx.BindTo(runCtx, (*context.Context)(nil))

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
