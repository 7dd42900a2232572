package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/autowrap/autowrap"
	"github.com/calvinalkan/autowrap/pack"
	"github.com/calvinalkan/autowrap/resources"
)

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory and environment variables.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLITester creates a new test CLI with a temp directory.
// HOME and XDG_CONFIG_HOME point into the temp directory so the user's own
// config is never read.
func NewCLITester(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()

	return &CLI{
		t:   t,
		Dir: dir,
		Env: map[string]string{
			"HOME":            dir,
			"XDG_CONFIG_HOME": filepath.Join(dir, ".config"),
		},
	}
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "autowrap" or "--cwd" - those are added automatically.
func (c *CLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"autowrap", "--cwd", c.Dir}, args...)
	code := Run(nil, &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Returns trimmed stderr.
func (c *CLI) MustFail(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should have failed\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteFile writes content to a path relative to the CLI's directory,
// creating parent directories.
func (c *CLI) WriteFile(rel string, content []byte, perm os.FileMode) string {
	c.t.Helper()

	path := filepath.Join(c.Dir, rel)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		c.t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	err = os.WriteFile(path, content, perm)
	if err != nil {
		c.t.Fatalf("write %s: %v", path, err)
	}

	return path
}

// Symlink creates link pointing at target, creating parent directories.
func (c *CLI) Symlink(target, link string) {
	c.t.Helper()

	err := os.MkdirAll(filepath.Dir(link), 0o755)
	if err != nil {
		c.t.Fatalf("mkdir %s: %v", filepath.Dir(link), err)
	}

	err = os.Symlink(target, link)
	if err != nil {
		c.t.Fatalf("symlink %s: %v", link, err)
	}
}

var testStub = []byte("\x7fSTUB packed executable\n")

// NewRecipe lays out a recipe below the CLI's directory:
//
//	recipe/autowrap-resources.d/
//	dep/autowrap-env.d/env/{LIBRARY_PATH/lib, PATH/bin}
//	dep/{lib, bin/sh, lib64/ld-linux-x86-64.so.2}
//	stub
//
// The recipe is the working directory-relative path "recipe" and the
// dependency is "dep".
func (c *CLI) NewRecipe() {
	c.t.Helper()

	err := os.MkdirAll(filepath.Join(c.Dir, "recipe", resources.DirName), 0o755)
	if err != nil {
		c.t.Fatalf("mkdir: %v", err)
	}

	c.WriteFile("dep/bin/sh", []byte("shell"), 0o755)
	c.WriteFile("dep/lib64/ld-linux-x86-64.so.2", []byte("loader"), 0o755)
	c.WriteFile("stub", testStub, 0o755)

	err = os.MkdirAll(filepath.Join(c.Dir, "dep", "lib"), 0o755)
	if err != nil {
		c.t.Fatalf("mkdir: %v", err)
	}

	envDir := filepath.Join(c.Dir, "dep", autowrap.EnvDirName, "env")
	c.Symlink(filepath.Join(c.Dir, "dep", "lib"), filepath.Join(envDir, "LIBRARY_PATH", "lib"))
	c.Symlink(filepath.Join(c.Dir, "dep", "bin"), filepath.Join(envDir, "PATH", "bin"))
}

// ReadPack reads the pack injected into a file relative to the CLI's directory.
func (c *CLI) ReadPack(rel string) *pack.Pack {
	c.t.Helper()

	data, err := os.ReadFile(filepath.Join(c.Dir, rel))
	if err != nil {
		c.t.Fatalf("read %s: %v", rel, err)
	}

	p, err := pack.Extract(data)
	if err != nil {
		c.t.Fatalf("extract %s: %v", rel, err)
	}

	return p
}

// stripANSI removes ANSI escape codes from a string.
// Used to normalize output for comparison regardless of TTY state.
func stripANSI(s string) string {
	result := s
	for {
		start := strings.Index(result, "\033[")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "m")
		if end == -1 {
			break
		}

		result = result[:start] + result[start+end+1:]
	}

	return result
}

// AssertContains fails the test if content doesn't contain substr.
// Strips ANSI codes from content before comparison to handle TTY/non-TTY differences.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if !strings.Contains(cleaned, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
// Strips ANSI codes from content before comparison to handle TTY/non-TTY differences.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if strings.Contains(cleaned, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
