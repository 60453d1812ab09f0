// Package files stores files on local disk and moves them between Teams,
// the bot and the user's OneDrive.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Default consent file.
const (
	DefaultFileName    = "teams-logo.png"
	PlaceholderContent = "Sample file content for Teams file upload demo."
)

// Errors.
var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Dir is a directory of files the bot can send or has received.
type Dir struct {
	root string
}

// OpenDir creates root if missing and writes the placeholder default file
// when it does not exist yet.
func OpenDir(root, defaultFile string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files directory: %w", err)
	}
	d := &Dir{root: root}

	if defaultFile != "" && !d.Exists(defaultFile) {
		if _, err := d.Write(defaultFile, strings.NewReader(PlaceholderContent)); err != nil {
			return nil, fmt.Errorf("failed to create default file: %w", err)
		}
	}
	return d, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the path of name inside the directory. Names containing path
// separators or dot segments are rejected.
func (d *Dir) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(d.root, name), nil
}

// Exists reports whether name is a regular file in the directory.
func (d *Dir) Exists(name string) bool {
	_, err := d.Size(name)
	return err == nil
}

// Size returns the size of name in bytes.
func (d *Dir) Size(name string) (int64, error) {
	p, err := d.Path(name)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, ErrNotFound
	}
	return fi.Size(), nil
}

// Read returns the content of name.
func (d *Dir) Read(name string) ([]byte, error) {
	p, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Write replaces name with the content of r and returns the bytes written.
func (d *Dir) Write(name string, r io.Reader) (int64, error) {
	p, err := d.Path(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, err
	}
	return n, nil
}
