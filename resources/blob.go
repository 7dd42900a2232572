// Package resources implements the content-addressed resource directory that
// wrapped artifacts reference from their packs.
//
// # Layout
//
//	<resource dir>/
//	├── blobs/
//	│   ├── <sha256>      # non-executable content, mode 0444
//	│   └── <sha256>.x    # executable content, mode 0555
//	└── aliases/
//	    └── <name>/<key>/<name> -> ../../../blobs/<sha256>[.x]
//
// [AddNamedBlob] returns the alias path relative to the resource directory.
// Each alias directory (`aliases/<name>/<key>`) holds exactly one file, so
// the directory of a library alias can be used on its own as a library search
// path without exposing any other library.
//
// Adding the same content under the same name and executable bit always
// yields the same path, and repeated or concurrent additions are no-ops.
package resources

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	blobsDir   = "blobs"
	aliasesDir = "aliases"
)

// ErrInvalidName is returned when a blob name is not a single path element.
var ErrInvalidName = errors.New("invalid blob name")

// AddNamedBlob stores content in resourceDir and returns the resource-relative
// path of an alias named name that points to it.
func AddNamedBlob(resourceDir string, content io.Reader, executable bool, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("reading blob content: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	blobName := hash
	perms := os.FileMode(0o444)

	if executable {
		blobName += ".x"
		perms = 0o555
	}

	err = writeBlob(filepath.Join(resourceDir, blobsDir), blobName, data, perms)
	if err != nil {
		return "", err
	}

	key := aliasKey(hash, executable)
	aliasRel := filepath.Join(aliasesDir, name, key, name)

	err = writeAlias(filepath.Join(resourceDir, aliasRel), filepath.Join("..", "..", "..", blobsDir, blobName))
	if err != nil {
		return "", err
	}

	return aliasRel, nil
}

// AddNamedBlobFromFile stores the file at path in resourceDir under its base
// name, preserving whether it is executable.
func AddNamedBlobFromFile(resourceDir, path string) (string, error) {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: no file name in %q", ErrInvalidName, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}

	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("adding %s: is a directory", path)
	}

	rel, err := AddNamedBlob(resourceDir, file, info.Mode().Perm()&0o111 != 0, name)
	if err != nil {
		return "", fmt.Errorf("adding %s: %w", path, err)
	}

	return rel, nil
}

func aliasKey(hash string, executable bool) string {
	h := sha256.New()
	_, _ = io.WriteString(h, hash)

	if executable {
		_, _ = io.WriteString(h, "\x00x")
	} else {
		_, _ = io.WriteString(h, "\x00-")
	}

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// writeBlob publishes data as dir/name. An existing blob with the same name is
// kept as is; content addressing guarantees it is identical.
func writeBlob(dir, name string, data []byte, perms os.FileMode) error {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	dst := filepath.Join(dir, name)

	_, err = os.Lstat(dst)
	if err == nil {
		return nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("creating temp blob in %s: %w", dir, err)
	}

	tmpPath := tmp.Name()
	removeTmp := func() { _ = os.Remove(tmpPath) }

	_, err = io.Copy(tmp, bytes.NewReader(data))
	if err != nil {
		_ = tmp.Close()

		removeTmp()

		return fmt.Errorf("writing blob %s: %w", dst, err)
	}

	err = tmp.Chmod(perms)
	if err != nil {
		_ = tmp.Close()

		removeTmp()

		return fmt.Errorf("chmod blob %s: %w", dst, err)
	}

	err = tmp.Close()
	if err != nil {
		removeTmp()

		return fmt.Errorf("closing blob %s: %w", dst, err)
	}

	err = renameNoReplace(tmpPath, dst)
	if err != nil {
		removeTmp()

		if errors.Is(err, os.ErrExist) {
			return nil
		}

		return fmt.Errorf("publishing blob %s: %w", dst, err)
	}

	return nil
}

// writeAlias creates the symlink path -> target, tolerating an identical
// existing alias.
func writeAlias(path, target string) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	err = os.Symlink(target, path)
	if err == nil {
		return nil
	}

	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("creating alias %s: %w", path, err)
	}

	existing, readErr := os.Readlink(path)
	if readErr != nil {
		return fmt.Errorf("reading alias %s: %w", path, readErr)
	}

	if existing != target {
		return fmt.Errorf("alias %s points to %q, want %q", path, existing, target)
	}

	return nil
}
