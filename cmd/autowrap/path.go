package main

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned when an empty path is given where one is required.
var ErrEmptyPath = errors.New("empty path")

// ResolvePath converts a path from a flag or config file to an absolute path.
//
// Resolution rules:
//   - ~ at start expands to homeDir
//   - Absolute paths resolve as-is
//   - Relative paths resolve against workDir
//   - Environment variables are NOT expanded
func ResolvePath(path, homeDir, workDir string) (string, error) {
	var resolved string

	switch {
	case path == "":
		return "", ErrEmptyPath
	case path == "~":
		resolved = homeDir
	case strings.HasPrefix(path, "~/"):
		resolved = filepath.Join(homeDir, path[2:])
	case filepath.IsAbs(path):
		resolved = path
	default:
		resolved = filepath.Join(workDir, path)
	}

	return filepath.Clean(resolved), nil
}

// resolvePaths applies ResolvePath to every entry of paths.
func resolvePaths(paths []string, homeDir, workDir string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(paths))

	for _, path := range paths {
		resolved, err := ResolvePath(path, homeDir, workDir)
		if err != nil {
			return nil, err
		}

		out = append(out, resolved)
	}

	return out, nil
}
