package autowrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/autowrap/pack"
)

// wrapSharedLibrary embeds the library closure of source and writes source
// with a static pack appended to output. The library bytes are kept as they
// are so the result stays directly loadable.
func (c *Context) wrapSharedLibrary(source, output string) (bool, error) {
	cfg := c.cfg.SharedLibrary
	if cfg == nil {
		c.debugf("autowrap: no shared library config, not wrapping %s", source)

		return false, nil
	}

	contents, err := os.ReadFile(source)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", source, err)
	}

	info, err := inspectELF(contents)
	if err != nil {
		return false, fmt.Errorf("parsing shared library %s: %w", source, err)
	}

	needed := neededLibraries(info.needed, cfg.DynamicLinking)

	libraryDirs, err := resolveLibraryDirs(c, cfg.DynamicLinking, needed)
	if err != nil {
		return false, fmt.Errorf("resolving libraries for %s: %w", source, err)
	}

	p := pack.Static(libraryDirs)

	if filepath.Clean(source) == filepath.Clean(output) {
		err = appendPack(output, p)
	} else {
		var stat os.FileInfo

		stat, err = os.Stat(source)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", source, err)
		}

		err = writeCopyWithPack(output, contents, stat.Mode().Perm(), p)
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
