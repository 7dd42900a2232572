package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/autowrap/autowrap"
	"github.com/calvinalkan/autowrap/runnable"
)

var (
	// ErrNothingToWrap is returned when neither paths nor globs are given.
	ErrNothingToWrap = errors.New("nothing to wrap: give paths or --glob")
	// ErrNoPackedExecutable is returned when a policy that writes a stub has none.
	ErrNoPackedExecutable = errors.New("no packed executable")
	// ErrInvalidEnvFlag is returned when an --env flag value is malformed.
	ErrInvalidEnvFlag = errors.New("invalid --env format: expected KEY=VALUE")
	// ErrScriptPolicyRequired is returned when script flags are given without a script policy.
	ErrScriptPolicyRequired = errors.New("--env and --clear-env need the script policy (--script)")
	// ErrPathOutsideRecipe is returned when an absolute path does not point into the recipe.
	ErrPathOutsideRecipe = errors.New("path is outside the recipe")
)

// WrapCmd creates the wrap command, which wraps files of a recipe in place.
func WrapCmd(cfg *Config, env map[string]string) *Command {
	flags := flag.NewFlagSet("wrap", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.StringP("recipe", "r", "", "Recipe root `dir` (default: working directory)")
	flags.StringArrayP("glob", "g", nil, "Also wrap files matching `pattern` (relative to the recipe, ** allowed)")
	flags.BoolP("quiet", "q", false, "Do not print wrapped/skipped lines")
	flags.StringArrayP("link-dependency", "l", nil, "Search `dir` for loaders, libraries and commands (repeatable)")
	flags.Bool("self-dependency", false, "Search the recipe itself first")
	flags.Bool("dynamic-binary", false, "Wrap dynamically linked executables")
	flags.Bool("shared-library", false, "Pack library dirs into shared libraries")
	flags.Bool("script", false, "Wrap #! scripts")
	flags.String("packed-executable", "", "Stub `file` written in front of wrapped programs")
	flags.StringArray("skip-library", nil, "Never embed `name` (repeatable)")
	flags.StringArray("extra-library", nil, "Also embed `name` (repeatable)")
	flags.Bool("skip-unknown-libraries", false, "Drop libraries that cannot be found")
	flags.StringArray("env", nil, "Set KEY=VALUE for wrapped scripts (repeatable)")
	flags.Bool("clear-env", false, "Start wrapped scripts with an empty environment")
	flags.Bool("debug", false, "Print config and resolved search paths to stderr")

	return &Command{
		Flags:   flags,
		Usage:   "wrap [flags] [path...]",
		Short:   "Wrap recipe files (default command)",
		Long:    "Wrap files of a recipe in place so they run from any location.\nPaths are relative to the recipe root; --glob selects more files and skips those that cannot be wrapped.",
		Aliases: []string{},
		Exec: func(ctx context.Context, _ io.Reader, stdout, stderr io.Writer, args []string) error {
			debug := NewDebugLogger(nil)
			if enabled, _ := flags.GetBool("debug"); enabled {
				debug = NewDebugLogger(stderr)
			}

			debugConfigLoading(debug, cfg)

			merged, err := applyWrapFlags(*cfg, flags, args)
			if err != nil {
				return err
			}

			wrapCfg, err := buildAutowrapConfig(&merged, env)
			if err != nil {
				return err
			}

			if len(wrapCfg.Paths) == 0 && len(wrapCfg.Globs) == 0 {
				return ErrNothingToWrap
			}

			wrapCfg.Stdout = stdout

			if debug.Enabled() {
				wrapCfg.Debugf = debug.Logf

				debugWrapConfig(debug, &wrapCfg)

				wrapCtx, err := autowrap.NewContext(&wrapCfg)
				if err != nil {
					return err
				}

				debugContext(debug, wrapCtx)
			}

			err = ctx.Err()
			if err != nil {
				return err
			}

			return autowrap.Autowrap(&wrapCfg)
		},
	}
}

// applyWrapFlags returns cfg with the wrap flags and positional paths applied
// on top. Flags override config values; library lists extend them. Policies
// from cfg are copied before they are changed.
func applyWrapFlags(cfg Config, flags *flag.FlagSet, args []string) (Config, error) {
	if flags.Changed("recipe") {
		cfg.Recipe, _ = flags.GetString("recipe")
	}

	if len(args) > 0 {
		cfg.Paths = args
	}

	if flags.Changed("glob") {
		cfg.Globs, _ = flags.GetStringArray("glob")
	}

	if flags.Changed("quiet") {
		quiet, _ := flags.GetBool("quiet")
		cfg.Quiet = &quiet
	}

	if flags.Changed("link-dependency") {
		cfg.LinkDependencies, _ = flags.GetStringArray("link-dependency")
	}

	if flags.Changed("self-dependency") {
		self, _ := flags.GetBool("self-dependency")
		cfg.SelfDependency = &self
	}

	if cfg.DynamicBinary != nil {
		policy := *cfg.DynamicBinary
		cfg.DynamicBinary = &policy
	} else if enabled, _ := flags.GetBool("dynamic-binary"); enabled {
		cfg.DynamicBinary = &autowrap.DynamicBinaryConfig{}
	}

	if cfg.SharedLibrary != nil {
		policy := *cfg.SharedLibrary
		cfg.SharedLibrary = &policy
	} else if enabled, _ := flags.GetBool("shared-library"); enabled {
		cfg.SharedLibrary = &autowrap.SharedLibraryConfig{}
	}

	if cfg.Script != nil {
		policy := *cfg.Script
		policy.Env = maps.Clone(policy.Env)
		cfg.Script = &policy
	} else if enabled, _ := flags.GetBool("script"); enabled {
		cfg.Script = &autowrap.ScriptConfig{}
	}

	if flags.Changed("packed-executable") {
		stub, _ := flags.GetString("packed-executable")

		if cfg.DynamicBinary != nil {
			cfg.DynamicBinary.PackedExecutable = stub
		}

		if cfg.Script != nil {
			cfg.Script.PackedExecutable = stub
		}
	}

	skip, _ := flags.GetStringArray("skip-library")
	extra, _ := flags.GetStringArray("extra-library")
	skipUnknown, _ := flags.GetBool("skip-unknown-libraries")

	if cfg.DynamicBinary != nil {
		cfg.DynamicBinary.DynamicLinking = extendLinking(cfg.DynamicBinary.DynamicLinking, skip, extra, skipUnknown)
	}

	if cfg.SharedLibrary != nil {
		cfg.SharedLibrary.DynamicLinking = extendLinking(cfg.SharedLibrary.DynamicLinking, skip, extra, skipUnknown)
	}

	return applyScriptFlags(cfg, flags)
}

func extendLinking(cfg autowrap.DynamicLinkingConfig, skip, extra []string, skipUnknown bool) autowrap.DynamicLinkingConfig {
	cfg.SkipLibraries = slices.Concat(cfg.SkipLibraries, skip)
	cfg.ExtraLibraries = slices.Concat(cfg.ExtraLibraries, extra)
	cfg.SkipUnknownLibraries = cfg.SkipUnknownLibraries || skipUnknown

	return cfg
}

func applyScriptFlags(cfg Config, flags *flag.FlagSet) (Config, error) {
	envFlags, _ := flags.GetStringArray("env")
	clearEnv, _ := flags.GetBool("clear-env")

	if len(envFlags) == 0 && !clearEnv {
		return cfg, nil
	}

	if cfg.Script == nil {
		return Config{}, ErrScriptPolicyRequired
	}

	if clearEnv {
		cfg.Script.ClearEnv = true
	}

	for _, kv := range envFlags {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return Config{}, fmt.Errorf("%w: %q", ErrInvalidEnvFlag, kv)
		}

		if cfg.Script.Env == nil {
			cfg.Script.Env = make(map[string]runnable.EnvValue)
		}

		tmpl := runnable.LiteralTemplate(value)
		cfg.Script.Env[key] = runnable.EnvValue{Kind: runnable.EnvSet, Value: &tmpl}
	}

	return cfg, nil
}

// buildAutowrapConfig resolves the paths in cfg and returns the library
// configuration for a wrap run.
func buildAutowrapConfig(cfg *Config, env map[string]string) (autowrap.Config, error) {
	home := env["HOME"]

	recipe := cfg.Recipe
	if recipe == "" {
		recipe = cfg.EffectiveCwd
	}

	recipePath, err := ResolvePath(recipe, home, cfg.EffectiveCwd)
	if err != nil {
		return autowrap.Config{}, fmt.Errorf("recipe: %w", err)
	}

	deps, err := resolvePaths(cfg.LinkDependencies, home, cfg.EffectiveCwd)
	if err != nil {
		return autowrap.Config{}, fmt.Errorf("link dependency: %w", err)
	}

	paths, err := recipeRelative(recipePath, cfg.Paths)
	if err != nil {
		return autowrap.Config{}, err
	}

	out := autowrap.Config{
		RecipePath:       recipePath,
		Paths:            paths,
		Globs:            cfg.Globs,
		Quiet:            cfg.Quiet != nil && *cfg.Quiet,
		LinkDependencies: deps,
		SelfDependency:   cfg.SelfDependency != nil && *cfg.SelfDependency,
		SharedLibrary:    cfg.SharedLibrary,
		Rewrap:           cfg.Rewrap,
		Env:              env,
	}

	var errs []error

	if cfg.DynamicBinary != nil {
		policy := *cfg.DynamicBinary

		policy.PackedExecutable, err = resolveStub(policy.PackedExecutable, "dynamic-binary", home, cfg.EffectiveCwd)
		errs = append(errs, err)
		out.DynamicBinary = &policy
	}

	if cfg.Script != nil {
		policy := *cfg.Script

		policy.PackedExecutable, err = resolveStub(policy.PackedExecutable, "script", home, cfg.EffectiveCwd)
		errs = append(errs, err)
		out.Script = &policy
	}

	err = errors.Join(errs...)
	if err != nil {
		return autowrap.Config{}, err
	}

	return out, nil
}

func resolveStub(stub, policy, home, workDir string) (string, error) {
	if stub == "" {
		return "", fmt.Errorf("%w for the %s policy (use --packed-executable)", ErrNoPackedExecutable, policy)
	}

	return ResolvePath(stub, home, workDir)
}

// recipeRelative turns absolute paths into the recipe into relative ones.
// Relative paths are kept as they are.
func recipeRelative(recipe string, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))

	for _, path := range paths {
		if !filepath.IsAbs(path) {
			out = append(out, path)

			continue
		}

		rel, err := filepath.Rel(recipe, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return nil, fmt.Errorf("%w: %s", ErrPathOutsideRecipe, path)
		}

		out = append(out, rel)
	}

	return out, nil
}
