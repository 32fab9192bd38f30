// Package fsutil holds the filesystem helpers shared by the workspace
// manager and credential loader: scoped reads, workspace containment
// checks, directory sizing, and atomic writes.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// ReadFileScoped reads a file by opening a root at the file's directory.
// This scopes access to the intended directory and avoids path traversal.
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// ResolveWithin joins rel onto root and guarantees the result stays inside
// root, following symlinks on every existing ancestor. It returns the
// resolved absolute path or an error when the path escapes.
func ResolveWithin(root, rel string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}

	candidate := filepath.Join(rootResolved, filepath.Clean("/"+rel))

	// The candidate may not exist yet; resolve the deepest existing
	// ancestor so a symlink cannot smuggle the path outside root.
	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", err
	}
	if resolved != rootResolved && !strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q", rel, root)
	}
	return candidate, nil
}

// resolveExisting walks up from path until a component exists, resolves
// its symlinks, and re-joins the missing suffix.
func resolveExisting(path string) (string, error) {
	suffix := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		suffix = filepath.Join(filepath.Base(current), suffix)
		current = parent
	}
}

// DirSize returns the total size in bytes of all regular files under dir.
// Unreadable entries are skipped rather than failing the whole walk: a
// concurrent git process may remove files mid-scan.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// EnsureDir creates dir (and parents) with the given permissions if it
// does not already exist.
func EnsureDir(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

// AtomicWriteFile writes data to path via a temp file and rename, so
// readers never observe a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
