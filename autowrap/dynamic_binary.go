package autowrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/autowrap/pack"
)

// wrapDynamicBinary embeds the program, its interpreter and its library
// closure, then writes the packed-executable stub with an ld-linux pack to
// output.
func (c *Context) wrapDynamicBinary(source, output string) (bool, error) {
	cfg := c.cfg.DynamicBinary
	if cfg == nil {
		c.debugf("autowrap: no dynamic binary config, not wrapping %s", source)

		return false, nil
	}

	contents, err := os.ReadFile(source)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", source, err)
	}

	info, err := inspectELF(contents)
	if err != nil {
		return false, fmt.Errorf("parsing dynamic binary %s: %w", source, err)
	}

	if info.interpreter == "" {
		return false, fmt.Errorf("tried to wrap dynamic binary without an interpreter: %s", source)
	}

	interpreter, err := c.findInterpreter(source, info.interpreter)
	if err != nil {
		return false, err
	}

	interpreterResource, err := c.addResource("interpreter", interpreter)
	if err != nil {
		return false, err
	}

	programResource, err := c.addResource("program", source)
	if err != nil {
		return false, err
	}

	needed := neededLibraries(info.needed, cfg.DynamicLinking)

	libraryDirs, err := resolveLibraryDirs(c, cfg.DynamicLinking, needed)
	if err != nil {
		return false, fmt.Errorf("resolving libraries for %s: %w", source, err)
	}

	p := pack.LdLinux(programResource, interpreterResource, libraryDirs, nil)

	err = writePackedExecutable(cfg.PackedExecutable, output, p)
	if err != nil {
		return false, err
	}

	return true, nil
}

// findInterpreter returns the first link dependency file at the interpreter's
// path, taken relative to the dependency root.
func (c *Context) findInterpreter(source, interpreter string) (string, error) {
	rel, ok := strings.CutPrefix(interpreter, "/")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterpreter, interpreter)
	}

	for _, dep := range c.linkDependencies {
		candidate := filepath.Join(dep, rel)
		if exists(candidate) {
			c.debugf("autowrap: interpreter %s for %s is %s", interpreter, source, candidate)

			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s (interpreter %s)", ErrInterpreterNotFound, source, interpreter)
}
