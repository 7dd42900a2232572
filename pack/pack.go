// Package pack implements the metadata record ("pack") that is appended to a
// wrapped artifact and read back by the packed-executable stub at run time.
//
// A pack is one of three variants:
//
//   - [KindLdLinux]: a dynamically linked program, its dynamic loader and the
//     library directories to search, all as resource paths.
//   - [KindStatic]: library directories only, for artifacts that load
//     directly (shared libraries).
//   - [KindMetadata]: an opaque, format-tagged record plus the resource paths
//     it references (used for scripts).
//
// Every path inside a pack is relative to a resource directory. [Pack.Validate]
// rejects absolute paths so a packed artifact never depends on the layout of
// the host that produced it.
//
// # Wire Format
//
// A pack is appended to the end of a file:
//
//	+----------------+----------------------+------------------+
//	| JSON payload   | payload length (u32) | marker (16 bytes)|
//	|                | little endian        | "autowrap:pack:v1"
//	+----------------+----------------------+------------------+
//
// The bytes before the payload are never modified, so an injected ELF shared
// library remains directly loadable and an injected stub remains runnable.
package pack

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
)

// Marker terminates every injected pack.
const Marker = "autowrap:pack:v1"

const trailerLen = 4 + len(Marker)

// ErrNoPack is returned by [Extract] when data does not end with a pack.
var ErrNoPack = errors.New("no pack found")

// ErrInvalidPack is returned when a pack violates its invariants.
var ErrInvalidPack = errors.New("invalid pack")

// Kind selects the variant of a [Pack].
type Kind string

const (
	// KindLdLinux describes a program launched through its dynamic loader.
	KindLdLinux Kind = "ld_linux"
	// KindStatic describes an artifact that only needs library directories.
	KindStatic Kind = "static"
	// KindMetadata carries an opaque format-tagged record.
	KindMetadata Kind = "metadata"
)

// Pack is the decoded form of an injected pack. Which fields are meaningful
// depends on Kind; use the constructors to build one.
type Pack struct {
	Kind Kind `json:"type"`

	// LdLinux
	Program            string   `json:"program,omitempty"`
	Interpreter        string   `json:"interpreter,omitempty"`
	RuntimeLibraryDirs []string `json:"runtime_library_dirs,omitempty"`

	// LdLinux and Static
	LibDirs []string `json:"library_dirs,omitempty"`

	// Metadata
	ResourcePaths []string `json:"resource_paths,omitempty"`
	Format        string   `json:"format,omitempty"`
	Metadata      []byte   `json:"metadata,omitempty"`
}

// LdLinux returns a pack for a program started via its dynamic loader.
func LdLinux(program, interpreter string, libraryDirs, runtimeLibraryDirs []string) *Pack {
	return &Pack{
		Kind:               KindLdLinux,
		Program:            program,
		Interpreter:        interpreter,
		LibDirs:            slices.Clone(libraryDirs),
		RuntimeLibraryDirs: slices.Clone(runtimeLibraryDirs),
	}
}

// Static returns a pack that only lists library directories.
func Static(libraryDirs []string) *Pack {
	return &Pack{Kind: KindStatic, LibDirs: slices.Clone(libraryDirs)}
}

// Metadata returns a pack carrying a serialized record tagged with format.
func Metadata(resourcePaths []string, format string, metadata []byte) *Pack {
	return &Pack{
		Kind:          KindMetadata,
		ResourcePaths: slices.Clone(resourcePaths),
		Format:        format,
		Metadata:      bytes.Clone(metadata),
	}
}

// LibraryDirs returns the library directories of an LdLinux or Static pack.
// Metadata packs have none.
func (p *Pack) LibraryDirs() []string {
	switch p.Kind {
	case KindLdLinux, KindStatic:
		return slices.Clone(p.LibDirs)
	default:
		return nil
	}
}

// Validate reports whether p is a well-formed pack.
func (p *Pack) Validate() error {
	var errs []error

	switch p.Kind {
	case KindLdLinux:
		errs = append(errs, checkResourcePath("program", p.Program))
		errs = append(errs, checkResourcePath("interpreter", p.Interpreter))
		errs = append(errs, checkResourcePaths("library dir", p.LibDirs)...)
		errs = append(errs, checkResourcePaths("runtime library dir", p.RuntimeLibraryDirs)...)
	case KindStatic:
		errs = append(errs, checkResourcePaths("library dir", p.LibDirs)...)
	case KindMetadata:
		errs = append(errs, checkResourcePaths("resource path", p.ResourcePaths)...)
		if p.Format == "" {
			errs = append(errs, fmt.Errorf("%w: metadata pack without format", ErrInvalidPack))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown pack type %q", ErrInvalidPack, p.Kind))
	}

	return errors.Join(errs...)
}

func checkResourcePaths(what string, paths []string) []error {
	var errs []error

	for _, path := range paths {
		errs = append(errs, checkResourcePath(what, path))
	}

	return errs
}

func checkResourcePath(what, path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidPack, what)
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s %q is an absolute path", ErrInvalidPack, what, path)
	}

	return nil
}

// Inject appends p to the end of w. The existing contents of w are left
// untouched.
func Inject(w io.WriteSeeker, p *Pack) error {
	err := p.Validate()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding pack: %w", err)
	}

	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: payload too large (%d bytes)", ErrInvalidPack, len(payload))
	}

	buf := make([]byte, 0, len(payload)+trailerLen)
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, Marker...)

	_, err = w.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seeking to end: %w", err)
	}

	_, err = w.Write(buf)
	if err != nil {
		return fmt.Errorf("writing pack: %w", err)
	}

	return nil
}

// Extract decodes the pack at the end of data. It returns an error wrapping
// [ErrNoPack] when data carries no pack, which makes it a cheap probe for
// already-wrapped artifacts.
func Extract(data []byte) (*Pack, error) {
	if len(data) < trailerLen || !bytes.HasSuffix(data, []byte(Marker)) {
		return nil, ErrNoPack
	}

	lengthAt := len(data) - trailerLen
	length := binary.LittleEndian.Uint32(data[lengthAt : lengthAt+4])

	if uint64(length) > uint64(lengthAt) {
		return nil, fmt.Errorf("%w: payload length %d exceeds data", ErrNoPack, length)
	}

	payload := data[lengthAt-int(length) : lengthAt]

	var p Pack

	err := json.Unmarshal(payload, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %w", ErrNoPack, err)
	}

	err = p.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPack, err)
	}

	return &p, nil
}
