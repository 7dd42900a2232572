// Package elftest builds small ELF64 images for tests.
//
// The images carry only what the wrapper inspects: an optional PT_INTERP
// program header, an optional .dynamic section with DT_NEEDED entries and the
// object type. They are not runnable.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Image describes the ELF file to build.
type Image struct {
	// Type is the object type. Zero means ET_DYN.
	Type elf.Type
	// Interp is the PT_INTERP content. Empty means no PT_INTERP header.
	Interp string
	// Needed lists DT_NEEDED entries in order.
	Needed []string
}

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	dynSize  = 16
)

// Bytes encodes img as a little-endian x86-64 ELF64 file.
func (img Image) Bytes() []byte {
	typ := img.Type
	if typ == 0 {
		typ = elf.ET_DYN
	}

	phnum := 0
	if img.Interp != "" {
		phnum = 1
	}

	var data bytes.Buffer

	dataOff := uint64(ehdrSize + phnum*phdrSize)

	interpOff := dataOff
	if img.Interp != "" {
		data.WriteString(img.Interp)
		data.WriteByte(0)
	}

	interpLen := uint64(data.Len())

	dynstrOff := dataOff + uint64(data.Len())
	dynstrStart := data.Len()

	data.WriteByte(0)

	nameOffsets := make([]uint64, 0, len(img.Needed))
	for _, name := range img.Needed {
		nameOffsets = append(nameOffsets, uint64(data.Len()-dynstrStart))
		data.WriteString(name)
		data.WriteByte(0)
	}

	dynstrSize := uint64(data.Len() - dynstrStart)

	pad(&data, 8)

	dynamicOff := dataOff + uint64(data.Len())
	dynamicStart := data.Len()

	for _, off := range nameOffsets {
		writeLE(&data, elf.Dyn64{Tag: int64(elf.DT_NEEDED), Val: off})
	}

	writeLE(&data, elf.Dyn64{Tag: int64(elf.DT_NULL), Val: 0})

	dynamicSize := uint64(data.Len() - dynamicStart)

	shstrtabOff := dataOff + uint64(data.Len())
	shstrtabStart := data.Len()

	data.WriteByte(0)

	dynstrName := uint32(data.Len() - shstrtabStart)
	data.WriteString(".dynstr\x00")

	dynamicName := uint32(data.Len() - shstrtabStart)
	data.WriteString(".dynamic\x00")

	shstrtabName := uint32(data.Len() - shstrtabStart)
	data.WriteString(".shstrtab\x00")

	shstrtabSize := uint64(data.Len() - shstrtabStart)

	pad(&data, 8)

	shoff := dataOff + uint64(data.Len())

	var out bytes.Buffer

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	var phoff uint64
	if phnum > 0 {
		phoff = ehdrSize
	}

	writeLE(&out, elf.Header64{
		Ident:     ident,
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(phnum),
		Shentsize: shdrSize,
		Shnum:     4,
		Shstrndx:  3,
	})

	if img.Interp != "" {
		writeLE(&out, elf.Prog64{
			Type:   uint32(elf.PT_INTERP),
			Flags:  uint32(elf.PF_R),
			Off:    interpOff,
			Filesz: interpLen,
			Memsz:  interpLen,
			Align:  1,
		})
	}

	out.Write(data.Bytes())

	writeLE(&out, elf.Section64{})
	writeLE(&out, elf.Section64{
		Name:      dynstrName,
		Type:      uint32(elf.SHT_STRTAB),
		Flags:     uint64(elf.SHF_ALLOC),
		Off:       dynstrOff,
		Size:      dynstrSize,
		Addralign: 1,
	})
	writeLE(&out, elf.Section64{
		Name:      dynamicName,
		Type:      uint32(elf.SHT_DYNAMIC),
		Flags:     uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
		Off:       dynamicOff,
		Size:      dynamicSize,
		Link:      1,
		Addralign: 8,
		Entsize:   dynSize,
	})
	writeLE(&out, elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       shstrtabOff,
		Size:      shstrtabSize,
		Addralign: 1,
	})

	return out.Bytes()
}

// Write encodes img into path with the given permissions, creating parent
// directories as needed.
func (img Image) Write(t *testing.T, path string, perm os.FileMode) string {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	err = os.WriteFile(path, img.Bytes(), perm)
	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	return path
}

// Executable returns a dynamically linked executable image.
func Executable(interp string, needed ...string) Image {
	return Image{Type: elf.ET_DYN, Interp: interp, Needed: needed}
}

// Library returns a shared library image.
func Library(needed ...string) Image {
	return Image{Type: elf.ET_DYN, Needed: needed}
}

func writeLE(buf *bytes.Buffer, v any) {
	err := binary.Write(buf, binary.LittleEndian, v)
	if err != nil {
		panic("elftest: " + err.Error())
	}
}

func pad(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}
