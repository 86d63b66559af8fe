// Package repo provides scoped access to a task's working copy. All paths are
// repository-relative; attempts to escape the root are rejected. Real writes
// happen only when the change manager applies an approved changeset.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry describes one directory listing entry.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Repo is the repository access layer consumed by tools and the change
// manager.
type Repo interface {
	// Read returns the file content, or ok=false if the path is absent.
	Read(path string) (content []byte, ok bool, err error)

	// Exists reports whether the path refers to an existing file.
	Exists(path string) bool

	// List returns the entries of a directory, sorted by name.
	List(path string) ([]Entry, error)

	// Write creates or replaces a file, creating parent directories.
	// Called only during changeset apply.
	Write(path string, content []byte) error

	// Remove deletes a file. Called only during changeset apply.
	Remove(path string) error

	// Walk visits every regular file under the root with its relative path.
	Walk(fn func(relPath string) error) error

	// Root returns the absolute root directory of the working copy.
	Root() string
}

// Dir is a Repo rooted at a local directory.
type Dir struct {
	root string
}

// NewDir creates a Dir repo rooted at the given directory.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repo root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo root %s is not a directory", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Dir) Root() string {
	return d.root
}

// resolve maps a repository-relative path onto the filesystem, rejecting
// absolute paths and escapes above the root.
func (d *Dir) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes repository root: %s", path)
	}
	return filepath.Join(d.root, cleaned), nil
}

// Read returns the file content, or ok=false if the path is absent.
func (d *Dir) Read(path string) ([]byte, bool, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}

// Exists reports whether the path refers to an existing regular file.
func (d *Dir) Exists(path string) bool {
	full, err := d.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// List returns the entries of a directory, sorted by name.
func (d *Dir) List(path string) ([]Entry, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Write creates or replaces a file, creating parent directories as needed.
func (d *Dir) Write(path string, content []byte) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Remove deletes a file.
func (d *Dir) Remove(path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Walk visits every regular file under the root, skipping VCS metadata.
func (d *Dir) Walk(fn func(relPath string) error) error {
	return filepath.WalkDir(d.root, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			if de.Name() == ".git" || de.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !de.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		return fn(rel)
	})
}
