package autowrap

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/autowrap/pack"
	"github.com/calvinalkan/autowrap/resources"
)

// addResource stores the file at path in the context's resource directory and
// returns its resource-relative path.
func (c *Context) addResource(what, path string) (string, error) {
	rel, err := resources.AddNamedBlobFromFile(c.resourceDir, path)
	if err != nil {
		return "", fmt.Errorf("failed to add resource for %s %s: %w", what, path, err)
	}

	return rel, nil
}

// writePackedExecutable copies the stub at stubPath to output and injects p.
func writePackedExecutable(stubPath, output string, p *pack.Pack) (err error) {
	stub, err := os.Open(stubPath)
	if err != nil {
		return fmt.Errorf("failed to open packed executable %s: %w", stubPath, err)
	}

	defer func() { _ = stub.Close() }()

	out, err := os.OpenFile(output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", output, err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing %s: %w", output, closeErr))
		}
	}()

	_, err = io.Copy(out, stub)
	if err != nil {
		return fmt.Errorf("failed to copy packed executable to %s: %w", output, err)
	}

	err = pack.Inject(out, p)
	if err != nil {
		return fmt.Errorf("failed to inject pack into %s: %w", output, err)
	}

	return nil
}

// appendPack injects p at the end of the existing file at path, leaving its
// current bytes untouched.
func appendPack(path string, p *pack.Pack) (err error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s for appending: %w", path, err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing %s: %w", path, closeErr))
		}
	}()

	err = pack.Inject(out, p)
	if err != nil {
		return fmt.Errorf("failed to inject pack into %s: %w", path, err)
	}

	return nil
}

// writeCopyWithPack writes contents to a new file at output and injects p.
func writeCopyWithPack(output string, contents []byte, perm os.FileMode, p *pack.Pack) (err error) {
	out, err := os.OpenFile(output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", output, err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing %s: %w", output, closeErr))
		}
	}()

	_, err = out.Write(contents)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	err = pack.Inject(out, p)
	if err != nil {
		return fmt.Errorf("failed to inject pack into %s: %w", output, err)
	}

	return nil
}
