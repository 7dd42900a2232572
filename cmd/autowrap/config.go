package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/autowrap/autowrap"
)

// ErrDuplicateConfigFiles is returned when both .json and .jsonc config files exist.
var ErrDuplicateConfigFiles = errors.New("duplicate config files")

// Config holds the CLI configuration. Paths inside it are resolved against
// EffectiveCwd when a command uses them.
type Config struct {
	Recipe           string   `json:"recipe,omitempty"`
	Paths            []string `json:"paths,omitempty"`
	Globs            []string `json:"globs,omitempty"`
	Quiet            *bool    `json:"quiet,omitempty"`
	LinkDependencies []string `json:"linkDependencies,omitempty"`
	SelfDependency   *bool    `json:"selfDependency,omitempty"`

	DynamicBinary *autowrap.DynamicBinaryConfig `json:"dynamicBinary,omitempty"`
	SharedLibrary *autowrap.SharedLibraryConfig `json:"sharedLibrary,omitempty"`
	Script        *autowrap.ScriptConfig        `json:"script,omitempty"`
	Rewrap        *autowrap.RewrapConfig        `json:"rewrap,omitempty"`

	// Resolved (not serialized)
	EffectiveCwd      string            `json:"-"`
	LoadedConfigFiles map[string]string `json:"-"`
}

// DefaultConfig returns the default configuration. No policy is enabled.
func DefaultConfig() Config {
	return Config{
		Quiet:          boolPtr(false),
		SelfDependency: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // --config flag value
	Env             map[string]string // Environment variables (for XDG_CONFIG_HOME)
}

// LoadConfig loads configuration with the following precedence (later overrides earlier):
//  1. Built-in defaults
//  2. Global config: $XDG_CONFIG_HOME/autowrap/config.json or config.jsonc
//     (defaults to ~/.config/autowrap/)
//  3. Project config OR --config path (not both):
//     - Without --config: .autowrap.json or .autowrap.jsonc in workDir
//     - With --config: uses that path instead of project config
//
// Both .json and .jsonc files may contain comments and trailing commas.
// If both .json and .jsonc exist at the same location, it's an error.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir, err := resolveWorkDir(input.WorkDirOverride)
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	loaded := make(map[string]string)

	globalBasePath, err := getUserConfigBasePath(input.Env)
	if err != nil {
		return Config{}, err
	}

	globalPath, found, err := loadOptionalConfig(&cfg, globalBasePath)
	if err != nil {
		return Config{}, err
	}

	if found {
		loaded["global"] = globalPath
	}

	if input.ConfigPath != "" {
		configPath := input.ConfigPath
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}

		explicitCfg, err := loadConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfigs(&cfg, &explicitCfg)
		loaded["explicit"] = configPath
	} else {
		projectPath, found, err := loadOptionalConfig(&cfg, filepath.Join(workDir, ".autowrap"))
		if err != nil {
			return Config{}, err
		}

		if found {
			loaded["project"] = projectPath
		}
	}

	cfg.EffectiveCwd = workDir
	cfg.LoadedConfigFiles = loaded

	return cfg, nil
}

func resolveWorkDir(override string) (string, error) {
	if override != "" && filepath.IsAbs(override) {
		return filepath.Clean(override), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot get working directory: %w", err)
	}

	return filepath.Join(cwd, override), nil
}

// loadOptionalConfig merges the config at basePath(.json|.jsonc) into cfg if
// one exists. A missing file is not an error, an invalid one is.
func loadOptionalConfig(cfg *Config, basePath string) (string, bool, error) {
	path, err := findConfigFile(basePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	fileCfg, err := loadConfigFile(path)
	if err != nil {
		return "", false, err
	}

	*cfg = mergeConfigs(cfg, &fileCfg)

	return path, true, nil
}

// findConfigFile returns basePath+".json" or basePath+".jsonc", whichever
// exists. Both existing is an error; neither returns os.ErrNotExist.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, err := fileExists(jsonPath)
	if err != nil {
		return "", err
	}

	jsoncExists, err := fileExists(jsoncPath)
	if err != nil {
		return "", err
	}

	switch {
	case jsonExists && jsoncExists:
		return "", fmt.Errorf("%w: both %s and %s exist; remove one", ErrDuplicateConfigFiles, jsonPath, jsoncPath)
	case jsonExists:
		return jsonPath, nil
	case jsoncExists:
		return jsoncPath, nil
	default:
		return "", os.ErrNotExist
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("checking file %s: %w", path, err)
	}

	return !info.IsDir(), nil
}

// loadConfigFile loads and parses a JSON/JSONC config file.
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// mergeConfigs merges override into base, with override taking precedence.
// Unset values in override do not override base values. Policies are
// replaced as a whole.
func mergeConfigs(base, override *Config) Config {
	result := *base

	if override.Recipe != "" {
		result.Recipe = override.Recipe
	}

	if len(override.Paths) > 0 {
		result.Paths = override.Paths
	}

	if len(override.Globs) > 0 {
		result.Globs = override.Globs
	}

	if override.Quiet != nil {
		result.Quiet = override.Quiet
	}

	if len(override.LinkDependencies) > 0 {
		result.LinkDependencies = override.LinkDependencies
	}

	if override.SelfDependency != nil {
		result.SelfDependency = override.SelfDependency
	}

	if override.DynamicBinary != nil {
		result.DynamicBinary = override.DynamicBinary
	}

	if override.SharedLibrary != nil {
		result.SharedLibrary = override.SharedLibrary
	}

	if override.Script != nil {
		result.Script = override.Script
	}

	if override.Rewrap != nil {
		result.Rewrap = override.Rewrap
	}

	return result
}

// getUserConfigBasePath returns the user config base path (without extension).
func getUserConfigBasePath(env map[string]string) (string, error) {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "autowrap", "config"), nil
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "autowrap", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, ".config", "autowrap", "config"), nil
}
