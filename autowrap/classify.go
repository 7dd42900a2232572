package autowrap

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/autowrap/pack"
)

// Kind is the wrap strategy that applies to an artifact.
type Kind int

const (
	// KindNone means the artifact is not wrappable.
	KindNone Kind = iota
	KindDynamicBinary
	KindSharedLibrary
	KindScript
	KindRewrap
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDynamicBinary:
		return "dynamic-binary"
	case KindSharedLibrary:
		return "shared-library"
	case KindScript:
		return "script"
	case KindRewrap:
		return "rewrap"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var shebangMarker = []byte("#!")

// Classify decides the wrap strategy from the artifact's bytes alone.
//
// An embedded pack wins over everything else, so a packed script still
// classifies as [KindRewrap]. ELF files are dynamic binaries when they carry
// a program interpreter and shared libraries when they are ET_DYN without
// one. Everything else, including static executables, relocatable objects
// and non-ELF data, is [KindNone].
func Classify(contents []byte) Kind {
	if _, err := pack.Extract(contents); err == nil {
		return KindRewrap
	}

	if bytes.HasPrefix(contents, shebangMarker) {
		return KindScript
	}

	info, err := inspectELF(contents)
	if err != nil {
		return KindNone
	}

	switch {
	case info.interpreter != "":
		return KindDynamicBinary
	case info.shared:
		return KindSharedLibrary
	default:
		return KindNone
	}
}

// ClassifyFile reads path and classifies its contents.
func ClassifyFile(path string) (Kind, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return KindNone, fmt.Errorf("reading %s: %w", path, err)
	}

	return Classify(contents), nil
}

// elfInfo is what wrapping needs from an ELF file.
type elfInfo struct {
	interpreter string
	shared      bool
	needed      []string
}

// inspectELF parses contents as ELF. Parsing errors of any kind, including
// panics from malformed headers, are returned as [ErrNotELF].
func inspectELF(contents []byte) (info elfInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNotELF, r)
		}
	}()

	f, err := elf.NewFile(bytes.NewReader(contents))
	if err != nil {
		return elfInfo{}, fmt.Errorf("%w: %w", ErrNotELF, err)
	}

	defer func() { _ = f.Close() }()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}

		data, err := io.ReadAll(prog.Open())
		if err != nil {
			return elfInfo{}, fmt.Errorf("%w: reading PT_INTERP: %w", ErrNotELF, err)
		}

		info.interpreter = string(bytes.TrimRight(data, "\x00"))

		break
	}

	info.shared = f.Type == elf.ET_DYN

	// Files without a dynamic section report no libraries.
	needed, err := f.ImportedLibraries()
	if err != nil {
		return elfInfo{}, fmt.Errorf("%w: reading DT_NEEDED: %w", ErrNotELF, err)
	}

	info.needed = needed

	return info, nil
}
