// Package fsutil provides file system utility functions.
package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Canonicalize resolves a path to its absolute, symlink-free form. Two path
// strings naming the same directory always canonicalize to the same result,
// which makes the output usable as a cache key. If the path does not exist,
// the absolute form is returned so callers can still report it.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", err
	}
	return resolved, nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists reports whether path exists, whatever its type.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListSubdirs returns the sorted absolute paths of the immediate
// subdirectories of dir, skipping any whose name starts with one of the
// given prefixes.
func ListSubdirs(dir string, excludePrefixes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if hasAnyPrefix(entry.Name(), excludePrefixes) {
			continue
		}
		dirs = append(dirs, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
