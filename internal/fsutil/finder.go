// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
)

// FindFilesByName recursively searches the given root path for all files with
// the given base name. It returns a sorted slice of their full paths so that
// callers see build files in a stable order.
func FindFilesByName(rootPath string, name string) ([]string, error) {
	if name == "" {
		panic("name must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Glob matches the given patterns relative to dir and returns the union of
// matching paths, relative to dir, sorted and deduplicated.
func Glob(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			rel, err := filepath.Rel(dir, match)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[rel]; ok {
				continue
			}
			seen[rel] = struct{}{}
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files, nil
}
