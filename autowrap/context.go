package autowrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/calvinalkan/autowrap/resources"
)

// Context is the resolved environment of one wrap batch: where resources are
// written, where existing resources may be found and which directories are
// searched for libraries and commands.
//
// A Context is created once by [NewContext] and never modified afterwards.
type Context struct {
	cfg Config

	resourceDir      string
	allResourceDirs  []string
	linkDependencies []string
	libraryPaths     []string
	commandPaths     []string
}

// NewContext resolves the resource directories and link dependency search
// paths for cfg.
func NewContext(cfg *Config) (*Context, error) {
	if cfg == nil {
		return nil, errors.New("autowrap: config is nil")
	}

	if cfg.RecipePath == "" {
		return nil, errors.New("autowrap: recipe path is required")
	}

	c := &Context{cfg: cloneConfig(cfg)}

	// Resource discovery works from a program path and looks at its parent.
	program := filepath.Join(c.cfg.RecipePath, "program")

	resourceDir, err := resources.FindOutputResourceDir(program, c.cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("finding output resource dir: %w", err)
	}

	allResourceDirs, err := resources.FindResourceDirs(program, true, c.cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("finding resource dirs: %w", err)
	}

	c.resourceDir = resourceDir
	c.allResourceDirs = allResourceDirs

	if c.cfg.SelfDependency {
		c.linkDependencies = append(c.linkDependencies, c.cfg.RecipePath)
	}

	c.linkDependencies = append(c.linkDependencies, c.cfg.LinkDependencies...)

	for _, dep := range c.linkDependencies {
		dirs, err := readEnvLinks(filepath.Join(dep, EnvDirName, "env", "LIBRARY_PATH"))
		if err != nil {
			return nil, err
		}

		c.libraryPaths = append(c.libraryPaths, dirs...)
	}

	for _, dep := range c.linkDependencies {
		dirs, err := readEnvLinks(filepath.Join(dep, EnvDirName, "env", "PATH"))
		if err != nil {
			return nil, err
		}

		c.commandPaths = append(c.commandPaths, dirs...)
	}

	for _, dep := range c.linkDependencies {
		bin := filepath.Join(dep, "bin")
		if isDir(bin) {
			c.commandPaths = append(c.commandPaths, bin)
		}
	}

	c.debugf("autowrap(context): resource dir %s", c.resourceDir)
	c.debugf("autowrap(context): %d link dependencies, %d library paths, %d command paths",
		len(c.linkDependencies), len(c.libraryPaths), len(c.commandPaths))

	return c, nil
}

// ResourceDir returns the directory new resources are written to.
func (c *Context) ResourceDir() string { return c.resourceDir }

// AllResourceDirs returns every resource directory visible for lookups.
func (c *Context) AllResourceDirs() []string { return slices.Clone(c.allResourceDirs) }

// LinkDependencies returns the link dependency roots in search order.
func (c *Context) LinkDependencies() []string { return slices.Clone(c.linkDependencies) }

// LibraryPaths returns the library search directories in search order.
func (c *Context) LibraryPaths() []string { return slices.Clone(c.libraryPaths) }

// CommandPaths returns the command search directories in search order.
func (c *Context) CommandPaths() []string { return slices.Clone(c.commandPaths) }

func (c *Context) debugf(format string, args ...any) {
	c.cfg.Debugf.printf(format, args...)
}

// readEnvLinks returns the canonical targets of the symlinks in dir. A
// missing dir yields no paths.
func readEnvLinks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.Type()&os.ModeSymlink == 0 {
			return nil, fmt.Errorf("%w: expected %q to be a symlink", ErrNotSymlink, path)
		}

		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize path %s: %w", path, err)
		}

		target, err = filepath.Abs(target)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize path %s: %w", path, err)
		}

		paths = append(paths, target)
	}

	return paths, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}

// isRegularFile reports whether path (after following symlinks) is a regular
// file.
func isRegularFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
