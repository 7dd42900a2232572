package autowrap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/autowrap/internal/elftest"
	"github.com/calvinalkan/autowrap/pack"
	"github.com/calvinalkan/autowrap/resources"
)

const testInterpreter = "/lib64/ld-linux-x86-64.so.2"

var testStub = []byte("\x7fSTUB packed executable\n")

// testEnv is a recipe with its own resource directory and one link
// dependency exposing lib/ as LIBRARY_PATH, usr/bin/ as PATH and bin/.
//
//	<root>/
//	├── recipe/autowrap-resources.d/
//	├── dep/
//	│   ├── autowrap-env.d/env/{LIBRARY_PATH/lib, PATH/usr-bin}
//	│   ├── lib/
//	│   ├── lib64/ld-linux-x86-64.so.2
//	│   ├── usr/bin/
//	│   └── bin/
//	└── stub
type testEnv struct {
	Root        string
	Recipe      string
	ResourceDir string
	Dep         string
	Stub        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()

	env := &testEnv{
		Root:        root,
		Recipe:      filepath.Join(root, "recipe"),
		ResourceDir: filepath.Join(root, "recipe", resources.DirName),
		Dep:         filepath.Join(root, "dep"),
		Stub:        filepath.Join(root, "stub"),
	}

	mustCreateDir(t, env.ResourceDir)
	mustCreateDir(t, filepath.Join(env.Dep, "lib"))
	mustCreateDir(t, filepath.Join(env.Dep, "usr", "bin"))
	mustCreateDir(t, filepath.Join(env.Dep, "bin"))

	mustSymlink(t, filepath.Join(env.Dep, "lib"), filepath.Join(env.Dep, EnvDirName, "env", "LIBRARY_PATH", "lib"))
	mustSymlink(t, filepath.Join(env.Dep, "usr", "bin"), filepath.Join(env.Dep, EnvDirName, "env", "PATH", "usr-bin"))

	mustWriteFile(t, filepath.Join(env.Dep, "lib64", "ld-linux-x86-64.so.2"), []byte("loader"), 0o755)
	mustWriteFile(t, env.Stub, testStub, 0o755)

	return env
}

// config returns a Config for the recipe with the dependency linked and no
// policies.
func (e *testEnv) config() *Config {
	return &Config{
		RecipePath:       e.Recipe,
		LinkDependencies: []string{e.Dep},
	}
}

func (e *testEnv) mustContext(t *testing.T, cfg *Config) *Context {
	t.Helper()

	ctx, err := NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	return ctx
}

// mustWriteLib writes a shared library named name into dep/lib.
func (e *testEnv) mustWriteLib(t *testing.T, name string, needed ...string) string {
	t.Helper()

	return elftest.Library(needed...).Write(t, filepath.Join(e.Dep, "lib", name), 0o644)
}

// mustWriteRecipeFile writes data to the recipe-relative path rel.
func (e *testEnv) mustWriteRecipeFile(t *testing.T, rel string, data []byte, perm os.FileMode) string {
	t.Helper()

	path := filepath.Join(e.Recipe, rel)
	mustWriteFile(t, path, data, perm)

	return path
}

// aliasEntries returns the alias key directories created for name.
func (e *testEnv) aliasEntries(t *testing.T, name string) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(e.ResourceDir, "aliases", name))
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		t.Fatalf("read aliases of %s: %v", name, err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Name())
	}

	return out
}

// dirEntryNames lists the names in the resource-relative directory rel.
func (e *testEnv) dirEntryNames(t *testing.T, rel string) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(e.ResourceDir, rel))
	if err != nil {
		t.Fatalf("read dir %s: %v", rel, err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Name())
	}

	return out
}

func mustCreateDir(t *testing.T, path string) {
	t.Helper()

	err := os.MkdirAll(path, 0o755)
	if err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path string, data []byte, perm os.FileMode) {
	t.Helper()

	mustCreateDir(t, filepath.Dir(path))

	err := os.WriteFile(path, data, perm)
	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	// WriteFile does not change the mode of existing files and is subject to
	// the umask.
	err = os.Chmod(path, perm)
	if err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}

func mustSymlink(t *testing.T, target, link string) {
	t.Helper()

	mustCreateDir(t, filepath.Dir(link))

	err := os.Symlink(target, link)
	if err != nil {
		t.Fatalf("symlink %s -> %s: %v", link, target, err)
	}
}

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return data
}

func mustExtract(t *testing.T, path string) *pack.Pack {
	t.Helper()

	p, err := pack.Extract(mustReadFile(t, path))
	if err != nil {
		t.Fatalf("extract pack from %s: %v", path, err)
	}

	return p
}

// mustInjectFile appends p to the file at path.
func mustInjectFile(t *testing.T, path string, p *pack.Pack) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}

	defer func() { _ = f.Close() }()

	err = pack.Inject(f, p)
	if err != nil {
		t.Fatalf("inject into %s: %v", path, err)
	}
}

// packedBytes returns data with p appended.
func packedBytes(t *testing.T, data []byte, p *pack.Pack) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "packed")
	mustWriteFile(t, path, data, 0o644)
	mustInjectFile(t, path, p)

	return mustReadFile(t, path)
}

func mustHavePrefix(t *testing.T, data, prefix []byte) {
	t.Helper()

	if !bytes.HasPrefix(data, prefix) {
		t.Fatalf("expected data to start with %q, got %q", prefix, data[:min(len(data), len(prefix))])
	}
}
