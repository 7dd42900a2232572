package autowrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/calvinalkan/autowrap/resources"
)

// Autowrap wraps every path selected by cfg in place.
//
// Explicit [Config.Paths] must be wrappable; a path that is not (or whose
// kind has no policy) fails with [ErrNotWrapped]. Files matched by
// [Config.Globs] are wrapped when possible and reported as skipped
// otherwise. Any wrap error aborts the batch; files wrapped before the error
// stay wrapped.
func Autowrap(cfg *Config) error {
	err := validateConfig(cfg)
	if err != nil {
		return err
	}

	ctx, err := NewContext(cfg)
	if err != nil {
		return err
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	for _, rel := range cfg.Paths {
		path := filepath.Join(cfg.RecipePath, rel)

		wrapped, err := TryAutowrapPath(ctx, path, path)
		if err != nil {
			return err
		}

		if !wrapped {
			return fmt.Errorf("%w: %s", ErrNotWrapped, path)
		}

		if !cfg.Quiet {
			_, _ = fmt.Fprintf(stdout, "wrapped %s\n", path)
		}
	}

	if len(cfg.Globs) == 0 {
		return nil
	}

	return walkGlobs(ctx, cfg, func(path string) error {
		wrapped, err := TryAutowrapPath(ctx, path, path)
		if err != nil {
			return err
		}

		if cfg.Quiet {
			return nil
		}

		if wrapped {
			_, _ = fmt.Fprintf(stdout, "wrapped %s\n", path)
		} else {
			_, _ = fmt.Fprintf(stdout, "skipped %s\n", path)
		}

		return nil
	})
}

// TryAutowrapPath classifies source and wraps it into output with the
// matching strategy. It returns false without an error when source is not
// wrappable or its kind has no policy configured.
func TryAutowrapPath(ctx *Context, source, output string) (bool, error) {
	kind, err := ClassifyFile(source)
	if err != nil {
		return false, err
	}

	ctx.debugf("autowrap: %s is %s", source, kind)

	switch kind {
	case KindDynamicBinary:
		return ctx.wrapDynamicBinary(source, output)
	case KindSharedLibrary:
		return ctx.wrapSharedLibrary(source, output)
	case KindScript:
		return ctx.wrapScript(source, output)
	case KindRewrap:
		return ctx.wrapRewrap(source, output)
	default:
		return false, nil
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("autowrap: config is nil")
	}

	var errs []error

	if cfg.RecipePath == "" {
		errs = append(errs, errors.New("recipe path is required"))
	}

	for _, rel := range cfg.Paths {
		if rel == "" || filepath.IsAbs(rel) {
			errs = append(errs, fmt.Errorf("path %q must be relative to the recipe", rel))
		}
	}

	for _, glob := range cfg.Globs {
		if !doublestar.ValidatePattern(glob) {
			errs = append(errs, fmt.Errorf("invalid glob %q", glob))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid autowrap config: %w", errors.Join(errs...))
	}

	return nil
}

// walkGlobs calls fn for each regular file under the recipe whose
// slash-separated recipe-relative path matches one of the globs. Resource
// directories are not descended into.
func walkGlobs(ctx *Context, cfg *Config, fn func(path string) error) error {
	root := cfg.RecipePath
	resourceDir := filepath.Clean(ctx.ResourceDir())

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && (d.Name() == resources.DirName || filepath.Clean(path) == resourceDir) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}

		if !matchesAny(cfg.Globs, filepath.ToSlash(rel)) {
			return nil
		}

		return fn(path)
	})
}

func matchesAny(globs []string, rel string) bool {
	for _, glob := range globs {
		// Patterns are validated up front.
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}

	return false
}
