package resources

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DirName is the name of a resource directory placed next to (or above)
	// the artifacts that reference it.
	DirName = "autowrap-resources.d"

	// EnvOutputResourceDir overrides where new resources are written.
	EnvOutputResourceDir = "AUTOWRAP_OUTPUT_RESOURCE_DIR"

	// EnvInputResourceDirs lists extra colon-separated resource directories
	// that may be searched for existing resources.
	EnvInputResourceDirs = "AUTOWRAP_INPUT_RESOURCE_DIRS"
)

// ErrResourceDirNotFound is returned when no output resource directory can be
// located for a program.
var ErrResourceDirNotFound = errors.New("resource directory not found")

// FindOutputResourceDir returns the resource directory that new resources for
// program should be written to.
//
// $AUTOWRAP_OUTPUT_RESOURCE_DIR (from env) wins when set. Otherwise the
// nearest ancestor of program containing a [DirName] directory is used.
func FindOutputResourceDir(program string, env map[string]string) (string, error) {
	if dir := env[EnvOutputResourceDir]; dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolving %s=%q: %w", EnvOutputResourceDir, dir, err)
		}

		return abs, nil
	}

	dirs, err := ancestorResourceDirs(program, false)
	if err != nil {
		return "", err
	}

	if len(dirs) == 0 {
		return "", fmt.Errorf("%w: no %s above %s (set %s)", ErrResourceDirNotFound, DirName, program, EnvOutputResourceDir)
	}

	return dirs[0], nil
}

// FindResourceDirs returns every resource directory visible from program, in
// search order: the output resource directory (if any), the entries of
// $AUTOWRAP_INPUT_RESOURCE_DIRS, and the [DirName] directories among the
// ancestors of program (only the nearest one unless recursive is set).
// Duplicates are removed.
func FindResourceDirs(program string, recursive bool, env map[string]string) ([]string, error) {
	var dirs []string

	output, err := FindOutputResourceDir(program, env)
	if err == nil {
		dirs = append(dirs, output)
	} else if !errors.Is(err, ErrResourceDirNotFound) {
		return nil, err
	}

	for _, dir := range strings.Split(env[EnvInputResourceDirs], ":") {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s entry %q: %w", EnvInputResourceDirs, dir, err)
		}

		dirs = append(dirs, abs)
	}

	ancestors, err := ancestorResourceDirs(program, recursive)
	if err != nil {
		return nil, err
	}

	dirs = append(dirs, ancestors...)

	return dedupe(dirs), nil
}

// FindInResourceDirs returns the absolute path of rel in the first of dirs
// that contains it.
func FindInResourceDirs(dirs []string, rel string) (string, bool) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", false
	}

	for _, dir := range dirs {
		candidate := filepath.Join(dir, rel)

		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, true
		}
	}

	return "", false
}

// ancestorResourceDirs walks up from the directory containing program and
// collects [DirName] directories, nearest first.
func ancestorResourceDirs(program string, all bool) ([]string, error) {
	abs, err := filepath.Abs(program)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", program, err)
	}

	var out []string

	dir := filepath.Dir(abs)

	for {
		candidate := filepath.Join(dir, DirName)

		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.IsDir():
			out = append(out, candidate)
			if !all {
				return out, nil
			}
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("stat %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return out, nil
		}

		dir = parent
	}
}

func dedupe(dirs []string) []string {
	seen := make(map[string]struct{}, len(dirs))
	out := make([]string, 0, len(dirs))

	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			continue
		}

		seen[dir] = struct{}{}
		out = append(out, dir)
	}

	return out
}
