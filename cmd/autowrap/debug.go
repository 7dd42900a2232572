package main

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/calvinalkan/autowrap/autowrap"
)

// DebugLogger provides debug output for a wrap run.
// It is disabled when created with a nil output and writes leveled log lines
// otherwise.
type DebugLogger struct {
	logger *log.Logger
}

// NewDebugLogger creates a new debug logger.
// If output is nil, the logger is disabled and all methods are no-ops.
func NewDebugLogger(output io.Writer) *DebugLogger {
	if output == nil {
		return &DebugLogger{}
	}

	return &DebugLogger{logger: log.NewWithOptions(output, log.Options{
		Prefix: "autowrap",
		Level:  log.DebugLevel,
	})}
}

// Enabled returns true if debug logging is enabled.
func (d *DebugLogger) Enabled() bool {
	return d.logger != nil
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if d.logger == nil {
		return
	}

	d.logger.Debugf("=== %s ===", name)
}

// Logf outputs a formatted debug message. It has the shape of
// [autowrap.Debugf] so it can be handed to the library.
func (d *DebugLogger) Logf(format string, args ...any) {
	if d.logger == nil {
		return
	}

	d.logger.Debugf(format, args...)
}

// Bulletf outputs an indented bullet point item.
func (d *DebugLogger) Bulletf(format string, args ...any) {
	if d.logger == nil {
		return
	}

	d.logger.Debugf("  • "+format, args...)
}

// ConfigFile outputs information about a config file.
func (d *DebugLogger) ConfigFile(label, path string, loaded bool) {
	if d.logger == nil {
		return
	}

	if !loaded {
		path = "(not found)"
	}

	d.logger.Debug(label, "path", path)
}

// List outputs a labelled list, or "(none)" when it is empty.
func (d *DebugLogger) List(label string, items []string) {
	if d.logger == nil {
		return
	}

	if len(items) == 0 {
		d.logger.Debugf("  %s: (none)", label)

		return
	}

	d.logger.Debugf("  %s:", label)

	for _, item := range items {
		d.Bulletf("%s", item)
	}
}

// debugConfigLoading outputs which config files were loaded.
func debugConfigLoading(debug *DebugLogger, cfg *Config) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Config Loading")

	if path, ok := cfg.LoadedConfigFiles["global"]; ok {
		debug.ConfigFile("global config", path, true)
	} else {
		debug.ConfigFile("global config", "", false)
	}

	if path, ok := cfg.LoadedConfigFiles["explicit"]; ok {
		debug.ConfigFile("explicit config (--config)", path, true)
	} else if path, ok := cfg.LoadedConfigFiles["project"]; ok {
		debug.ConfigFile("project config", path, true)
	} else {
		debug.ConfigFile("project config", "", false)
	}
}

// debugWrapConfig outputs the settings a wrap run uses after flags and config
// files are merged.
func debugWrapConfig(debug *DebugLogger, cfg *autowrap.Config) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Wrap Config")
	debug.Logf("  recipe: %s", cfg.RecipePath)
	debug.List("paths", cfg.Paths)
	debug.List("globs", cfg.Globs)
	debug.List("link dependencies", cfg.LinkDependencies)
	debug.Logf("  self dependency: %t", cfg.SelfDependency)

	var policies []string

	if cfg.DynamicBinary != nil {
		policies = append(policies, "dynamic-binary ("+linkingSummary(cfg.DynamicBinary.DynamicLinking)+")")
	}

	if cfg.SharedLibrary != nil {
		policies = append(policies, "shared-library ("+linkingSummary(cfg.SharedLibrary.DynamicLinking)+")")
	}

	if cfg.Script != nil {
		policies = append(policies, "script")
	}

	if cfg.Rewrap != nil {
		policies = append(policies, "rewrap")
	}

	debug.List("policies", policies)
}

func linkingSummary(cfg autowrap.DynamicLinkingConfig) string {
	parts := []string{
		"skip=[" + strings.Join(cfg.SkipLibraries, ",") + "]",
		"extra=[" + strings.Join(cfg.ExtraLibraries, ",") + "]",
	}

	if cfg.SkipUnknownLibraries {
		parts = append(parts, "skip-unknown")
	}

	return strings.Join(parts, " ")
}

// debugContext outputs the resource directories and search paths resolved
// from the link dependencies.
func debugContext(debug *DebugLogger, ctx *autowrap.Context) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Resolved Context")
	debug.Logf("  output resource dir: %s", ctx.ResourceDir())
	debug.List("resource dirs", ctx.AllResourceDirs())
	debug.List("library paths", ctx.LibraryPaths())
	debug.List("command paths", ctx.CommandPaths())
}
