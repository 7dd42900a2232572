package autowrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/autowrap/pack"
	"github.com/calvinalkan/autowrap/resources"
)

// neededLibraries returns the libraries to resolve for an ELF file: its
// declared DT_NEEDED entries without the skipped ones, then the extra
// libraries.
func neededLibraries(declared []string, cfg DynamicLinkingConfig) []string {
	skip := cfg.skipSet()

	needed := make([]string, 0, len(declared)+len(cfg.ExtraLibraries))

	for _, name := range declared {
		if !skip[name] {
			needed = append(needed, name)
		}
	}

	return append(needed, cfg.ExtraLibraries...)
}

// libraryClosure is the state of one library resolution. It is owned by a
// single resolveLibraryDirs call.
type libraryClosure struct {
	ctx  *Context
	cfg  DynamicLinkingConfig
	skip map[string]bool

	// queue holds library names still to resolve, FIFO.
	queue []string
	// resolved holds names found once; later demands are no-ops.
	resolved map[string]bool
	// emittedDirs holds library resource dirs already in output.
	emittedDirs map[string]bool
	// searchPaths is the live library search list. It grows when an already
	// packed library exposes its own library dirs.
	searchPaths []string

	output []string
}

// resolveLibraryDirs resolves the transitive closure of needed and returns the
// resource-relative directories of the embedded libraries, in discovery
// order. Each returned directory contains exactly one library.
func resolveLibraryDirs(ctx *Context, cfg DynamicLinkingConfig, needed []string) ([]string, error) {
	c := &libraryClosure{
		ctx:         ctx,
		cfg:         cfg,
		skip:        cfg.skipSet(),
		queue:       append([]string(nil), needed...),
		resolved:    make(map[string]bool),
		emittedDirs: make(map[string]bool),
		searchPaths: ctx.LibraryPaths(),
	}

	for len(c.queue) > 0 {
		name := c.queue[0]
		c.queue = c.queue[1:]

		err := c.resolve(name)
		if err != nil {
			return nil, err
		}
	}

	return c.output, nil
}

func (c *libraryClosure) resolve(name string) error {
	if c.resolved[name] {
		return nil
	}

	path, ok := findLibrary(c.searchPaths, name)
	if !ok {
		if c.cfg.SkipUnknownLibraries {
			c.ctx.debugf("autowrap(closure): skipping unknown library %q", name)

			return nil
		}

		return fmt.Errorf("%w: %q", ErrLibraryNotFound, name)
	}

	c.resolved[name] = true

	// Skipped libraries are provided at run time, but their dependencies may
	// still need embedding.
	if !c.skip[name] {
		resourcePath, err := resources.AddNamedBlobFromFile(c.ctx.ResourceDir(), path)
		if err != nil {
			return fmt.Errorf("failed to add resource for library %s: %w", path, err)
		}

		dir := filepath.Dir(resourcePath)
		if !c.emittedDirs[dir] {
			c.emittedDirs[dir] = true
			c.output = append(c.output, dir)
		}

		c.ctx.debugf("autowrap(closure): embedded %s from %s", name, path)
	} else {
		c.ctx.debugf("autowrap(closure): not embedding skipped library %s", name)
	}

	// Unreadable or non-ELF libraries contribute no dependencies.
	contents, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil
	}

	if info, err := inspectELF(contents); err == nil {
		c.queue = append(c.queue, info.needed...)
	}

	if p, err := pack.Extract(contents); err == nil {
		for _, dir := range p.LibraryDirs() {
			abs, ok := resources.FindInResourceDirs(c.ctx.allResourceDirs, dir)
			if !ok {
				continue
			}

			c.searchPaths = append(c.searchPaths, abs)
			c.ctx.debugf("autowrap(closure): searching %s from packed library %s", abs, name)
		}
	}

	return nil
}

// findLibrary returns the first dir/name in dirs that is a regular file.
func findLibrary(dirs []string, name string) (string, bool) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if isRegularFile(candidate) {
			return candidate, true
		}
	}

	return "", false
}
