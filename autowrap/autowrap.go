// Package autowrap turns built artifacts into self-contained, relocatable
// units.
//
// Given an ELF dynamic executable, an ELF shared library or an interpreter
// script, autowrap embeds its runtime dependencies (dynamic loader, shared
// libraries, script interpreter) into a content-addressed resource directory
// and attaches a [pack.Pack] describing how to load them. A packed-executable
// stub reads the pack at run time and rebuilds the execution environment
// without relying on the host's filesystem layout.
//
// # Wrap Kinds
//
// Each input is classified from its bytes alone (see [Classify]):
//
//   - already packed: rewrap, which is not implemented and always fails
//   - starts with "#!": script
//   - ELF with a program interpreter: dynamic binary
//   - ELF shared object without interpreter: shared library
//   - anything else: not wrappable, skipped
//
// A kind is only wrapped when its policy (for example [Config.DynamicBinary])
// is configured. A missing policy is reported as "did not wrap", never as an
// error, so callers decide whether that matters.
//
// # Link Dependencies
//
// Libraries, loaders and script commands are looked up in link dependencies:
// prebuilt artifact directories that expose their search directories as
// symlink farms:
//
//	<dependency>/
//	├── autowrap-env.d/env/
//	│   ├── LIBRARY_PATH/<any name> -> <library dir>
//	│   └── PATH/<any name>         -> <command dir>
//	└── bin/                        # also searched for commands
//
// Earlier dependencies take precedence over later ones.
//
// # Concurrency
//
// Wrapping is synchronous. A [Context] is immutable once built and may be
// shared, but the batch driver processes one path at a time.
package autowrap

import (
	"errors"
	"io"
	"maps"
	"slices"

	"github.com/calvinalkan/autowrap/runnable"
)

// EnvDirName is the name of the symlink farm directory inside a link
// dependency.
const EnvDirName = "autowrap-env.d"

// Static errors. Returned errors wrap these with the offending path or name.
var (
	// ErrNotWrapped is returned by [Autowrap] when an explicitly listed path is
	// not wrappable or its kind has no policy configured.
	ErrNotWrapped = errors.New("failed to wrap path")
	// ErrRewrapNotImplemented is returned whenever an already packed artifact
	// is selected for wrapping.
	ErrRewrapNotImplemented = errors.New("rewrapping is not yet implemented")
	// ErrLibraryNotFound is returned when a needed library is not in any
	// library search directory.
	ErrLibraryNotFound = errors.New("library not found")
	// ErrInterpreterNotFound is returned when no link dependency provides the
	// program interpreter of a dynamic binary.
	ErrInterpreterNotFound = errors.New("could not find interpreter for dynamic binary")
	// ErrCommandNotFound is returned when the command of a script's shebang is
	// not in any command search directory.
	ErrCommandNotFound = errors.New("could not find command")
	// ErrInvalidInterpreter is returned when a program interpreter is not an
	// absolute path.
	ErrInvalidInterpreter = errors.New("expected program interpreter to start with '/'")
	// ErrInvalidShebang is returned when a shebang line cannot be used.
	ErrInvalidShebang = errors.New("invalid shebang")
	// ErrNotSymlink is returned when a link dependency's symlink farm contains
	// an entry that is not a symlink.
	ErrNotSymlink = errors.New("expected a symlink")
	// ErrNotELF is returned when an artifact classified as ELF cannot be
	// parsed again while wrapping it.
	ErrNotELF = errors.New("not an ELF file")
)

// Config configures a batch of wrap operations.
//
// Config is independent from config-file loading or CLI flag parsing; callers
// produce a final Config before calling [Autowrap] or [NewContext].
type Config struct {
	// RecipePath is the root of the artifact being wrapped. Paths and Globs
	// are resolved against it. Required.
	RecipePath string

	// Paths are files (relative to RecipePath) that must be wrapped. A path
	// that cannot be wrapped fails the batch.
	Paths []string

	// Globs select additional files by their slash-separated path relative to
	// RecipePath ("**" matches any number of directories). Matches that
	// cannot be wrapped are skipped.
	Globs []string

	// Quiet suppresses the "wrapped <path>"/"skipped <path>" lines.
	Quiet bool

	// LinkDependencies are searched, in order, for loaders, libraries and
	// commands.
	LinkDependencies []string

	// SelfDependency adds RecipePath as the first link dependency.
	SelfDependency bool

	// DynamicBinary enables wrapping ELF executables. Nil disables it.
	DynamicBinary *DynamicBinaryConfig

	// SharedLibrary enables wrapping ELF shared libraries. Nil disables it.
	SharedLibrary *SharedLibraryConfig

	// Script enables wrapping "#!" scripts. Nil disables it.
	Script *ScriptConfig

	// Rewrap is accepted for configuration parity. Already packed artifacts
	// always fail with [ErrRewrapNotImplemented], whether or not it is set.
	Rewrap *RewrapConfig

	// Env is used for resource directory discovery
	// ($AUTOWRAP_OUTPUT_RESOURCE_DIR, $AUTOWRAP_INPUT_RESOURCE_DIRS).
	// Nil means an empty environment.
	Env map[string]string

	// Stdout receives progress lines. Nil discards them.
	Stdout io.Writer

	// Debugf receives debug messages. Nil disables debug output.
	Debugf Debugf
}

// DynamicLinkingConfig controls which libraries are embedded.
type DynamicLinkingConfig struct {
	// SkipLibraries are never embedded; they are expected to be provided by
	// the runtime environment. Their own dependencies are still resolved.
	SkipLibraries []string `json:"skipLibraries,omitempty"`

	// ExtraLibraries are resolved in addition to the declared DT_NEEDED
	// entries.
	ExtraLibraries []string `json:"extraLibraries,omitempty"`

	// SkipUnknownLibraries drops libraries that cannot be found instead of
	// failing.
	SkipUnknownLibraries bool `json:"skipUnknownLibraries,omitempty"`
}

// DynamicBinaryConfig is the policy for dynamically linked executables.
type DynamicBinaryConfig struct {
	// PackedExecutable is the stub copied to the output before the pack is
	// injected.
	PackedExecutable string               `json:"packedExecutable"`
	DynamicLinking   DynamicLinkingConfig `json:"dynamicLinking"`
}

// SharedLibraryConfig is the policy for ELF shared libraries.
type SharedLibraryConfig struct {
	DynamicLinking DynamicLinkingConfig `json:"dynamicLinking"`
}

// ScriptConfig is the policy for "#!" scripts.
type ScriptConfig struct {
	// PackedExecutable is the stub copied to the output before the pack is
	// injected.
	PackedExecutable string `json:"packedExecutable"`

	// Env is embedded as-is into the command record of every script.
	Env map[string]runnable.EnvValue `json:"env,omitempty"`

	// ClearEnv starts the script with an empty environment.
	ClearEnv bool `json:"clearEnv,omitempty"`
}

// RewrapConfig is reserved for rewrapping already packed artifacts.
type RewrapConfig struct{}

// Debugf receives debug messages.
type Debugf func(format string, args ...any)

func (d Debugf) printf(format string, args ...any) {
	if d != nil {
		d(format, args...)
	}
}

// cloneConfig returns a deep copy of cfg so later modifications by the caller
// do not leak into a Context.
func cloneConfig(cfg *Config) Config {
	out := *cfg

	out.Paths = slices.Clone(cfg.Paths)
	out.Globs = slices.Clone(cfg.Globs)
	out.LinkDependencies = slices.Clone(cfg.LinkDependencies)
	out.Env = maps.Clone(cfg.Env)

	if cfg.DynamicBinary != nil {
		v := *cfg.DynamicBinary
		v.DynamicLinking = v.DynamicLinking.clone()
		out.DynamicBinary = &v
	}

	if cfg.SharedLibrary != nil {
		v := *cfg.SharedLibrary
		v.DynamicLinking = v.DynamicLinking.clone()
		out.SharedLibrary = &v
	}

	if cfg.Script != nil {
		v := *cfg.Script
		v.Env = runnable.CloneEnv(cfg.Script.Env)
		out.Script = &v
	}

	if cfg.Rewrap != nil {
		v := *cfg.Rewrap
		out.Rewrap = &v
	}

	return out
}

func (c DynamicLinkingConfig) clone() DynamicLinkingConfig {
	return DynamicLinkingConfig{
		SkipLibraries:        slices.Clone(c.SkipLibraries),
		ExtraLibraries:       slices.Clone(c.ExtraLibraries),
		SkipUnknownLibraries: c.SkipUnknownLibraries,
	}
}

func (c DynamicLinkingConfig) skipSet() map[string]bool {
	skip := make(map[string]bool, len(c.SkipLibraries))
	for _, name := range c.SkipLibraries {
		skip[name] = true
	}

	return skip
}
