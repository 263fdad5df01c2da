package workspace

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// hiddenDirs is the set of directory names to skip during listing.
var hiddenDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".idea": true, ".vscode": true,
	"node_modules": true, "__pycache__": true, "vendor": true,
}

var errLimit = errors.New("limit")

// ListFiles walks root and returns up to maxEntries relative file paths,
// sorted, with forward slashes. Hidden entries and generated directories
// are skipped. truncated reports whether the limit cut the walk short.
func ListFiles(root string, maxEntries int) (files []string, truncated bool, err error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxFiles
	}
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") || hiddenDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= maxEntries {
			return errLimit
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errLimit) {
		return nil, false, walkErr
	}
	sort.Strings(files)
	return files, errors.Is(walkErr, errLimit), nil
}
