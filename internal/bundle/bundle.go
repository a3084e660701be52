// Package bundle packs generated braille tables into a single .tar.xz file
// and reads such bundles back.
//
// Bundles are reproducible: entries are sorted, and mod times, modes and
// owners are fixed, so the same tables always give the same bytes.
package bundle

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/facebookgo/atomicfile"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/braille-lib/core/errors"
	"github.com/FocuswithJustin/braille-lib/internal/validation"
)

// Extension is the file extension of a bundle.
const Extension = ".tar.xz"

// Epoch is the mod time written for every entry.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Injectable for tests.
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// Entry is one file in a bundle.
type Entry struct {
	Name string
	Size int64
}

// Create writes every .json file under srcDir into dst. Names inside the
// bundle are slash-separated paths relative to srcDir.
func Create(srcDir, dst string) ([]Entry, error) {
	names, err := collect(srcDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Wrapf(errors.ErrEmpty, "no JSON tables in %s", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, errors.NewIO("create directory for", dst, err)
	}
	f, err := atomicfile.New(dst, 0644)
	if err != nil {
		return nil, errors.NewIO("create", dst, err)
	}
	entries, err := write(f, srcDir, names)
	if err != nil {
		_ = f.Abort()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, errors.NewIO("commit", dst, err)
	}
	return entries, nil
}

func collect(srcDir string) ([]string, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "output directory", ID: srcDir, Err: err}
		}
		return nil, errors.NewIO("stat", srcDir, err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidation("dir", srcDir, "not a directory")
	}

	var names []string
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("walk", srcDir, err)
	}
	sort.Strings(names)
	return names, nil
}

func write(w io.Writer, srcDir string, names []string) ([]Entry, error) {
	xw, err := xzNewWriter(w)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create xz writer")
	}
	tw := tar.NewWriter(xw)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(srcDir, filepath.FromSlash(name)))
		if err != nil {
			return nil, errors.NewIO("read", name, err)
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Size:     int64(len(data)),
			Mode:     0644,
			ModTime:  Epoch,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, errors.Wrapf(err, "write header %s", name)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, errors.Wrapf(err, "write %s", name)
		}
		entries = append(entries, Entry{Name: name, Size: hdr.Size})
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "close tar")
	}
	if err := xw.Close(); err != nil {
		return nil, errors.Wrap(err, "close xz")
	}
	return entries, nil
}

// Visitor is called for each bundle entry. Return true to stop.
type Visitor func(hdr *tar.Header, content io.Reader) (stop bool, err error)

// Iterate opens the bundle at path and calls visit for each regular file.
func Iterate(path string, visit Visitor) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &errors.NotFoundError{Resource: "bundle", ID: path, Err: err}
		}
		return errors.NewIO("open", path, err)
	}
	defer f.Close()

	kind, err := validation.ValidateFileType(f, path)
	if err != nil {
		return &errors.ValidationError{Field: "bundle", Value: path, Message: err.Error(), Err: err}
	}
	if kind != validation.FileTypeTarXZ {
		return errors.Wrapf(errors.ErrUnsupported, "bundle %s is %s, want tar+xz", path, kind)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.NewIO("seek", path, err)
	}

	xr, err := xzNewReader(f)
	if err != nil {
		return errors.WrapParse("xz", path, err)
	}
	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WrapParse("tar", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		stop, err := visit(hdr, tr)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// List returns the entries of the bundle at path in stored order.
func List(path string) ([]Entry, error) {
	var entries []Entry
	err := Iterate(path, func(hdr *tar.Header, _ io.Reader) (bool, error) {
		entries = append(entries, Entry{Name: hdr.Name, Size: hdr.Size})
		return false, nil
	})
	return entries, err
}

// ReadFile returns the content of one entry.
func ReadFile(path, name string) ([]byte, error) {
	var data []byte
	found := false
	err := Iterate(path, func(hdr *tar.Header, r io.Reader) (bool, error) {
		if hdr.Name != name {
			return false, nil
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return true, errors.NewIO("read", name, err)
		}
		data, found = b, true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFound("bundle entry", name)
	}
	return data, nil
}

// Extract unpacks the bundle into dstDir. Entry names that would escape
// dstDir are rejected.
func Extract(path, dstDir string) ([]Entry, error) {
	var entries []Entry
	err := Iterate(path, func(hdr *tar.Header, r io.Reader) (bool, error) {
		rel, err := validation.SanitizePath(dstDir, hdr.Name)
		if err != nil {
			return true, &errors.ValidationError{Field: "entry", Value: hdr.Name, Message: err.Error(), Err: err}
		}
		target := filepath.Join(dstDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return true, errors.NewIO("create directory for", target, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return true, errors.NewIO("create", target, err)
		}
		n, err := io.Copy(out, io.LimitReader(r, validation.MaxFileSize+1))
		closeErr := out.Close()
		if err != nil {
			return true, errors.NewIO("write", target, err)
		}
		if closeErr != nil {
			return true, errors.NewIO("close", target, closeErr)
		}
		if err := validation.ValidateFileSize(n); err != nil {
			return true, &errors.ValidationError{Field: "entry", Value: hdr.Name, Message: err.Error(), Err: err}
		}
		entries = append(entries, Entry{Name: hdr.Name, Size: n})
		return false, nil
	})
	return entries, err
}
