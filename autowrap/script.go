package autowrap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/autowrap/pack"
	"github.com/calvinalkan/autowrap/runnable"
)

// Shebang is a parsed "#!" line.
type Shebang struct {
	// Path is the interpreter path as written.
	Path string
	// Command is the command name to look up: the base name of Path, or the
	// first word of the argument for "env" scripts.
	Command string
	// Arg is the single, unsplit interpreter argument. It is empty for "env"
	// scripts.
	Arg string
}

// ParseShebang parses the first line of a script. The leading "#!" is
// optional.
//
// The line is split once on the first run of whitespace; the remainder is a
// single argument and is not split further. When the command is "env", the
// first word of the argument becomes the command and the argument is
// dropped. Only one level of "env" is collapsed, and "env" options such as
// "-S" are not understood.
func ParseShebang(line string) (Shebang, error) {
	line = strings.TrimPrefix(line, "#!")
	line = strings.TrimSpace(line)

	path, arg := line, ""
	if i := strings.IndexFunc(line, isASCIISpace); i >= 0 {
		path = strings.TrimSpace(line[:i])
		arg = strings.TrimSpace(line[i:])
	}

	if path == "" {
		return Shebang{}, fmt.Errorf("%w: missing command in %q", ErrInvalidShebang, line)
	}

	sb := Shebang{Path: path, Command: lastPathElement(path), Arg: arg}

	if sb.Command == "env" {
		fields := strings.FieldsFunc(sb.Arg, isASCIISpace)
		if len(fields) == 0 {
			return Shebang{}, fmt.Errorf("%w: expected argument for env script", ErrInvalidShebang)
		}

		sb.Command = fields[0]
		sb.Arg = ""
	}

	return sb, nil
}

// lastPathElement splits on both '/' and '\', which filepath.Base does not.
func lastPathElement(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}

	return path
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

// readShebangLine returns the first line of the file at path without the
// "#!" marker. ok is false when the file does not start with "#!".
func readShebangLine(path string) (line string, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("opening %s: %w", path, err)
	}

	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)

	marker := make([]byte, len(shebangMarker))

	_, err = io.ReadFull(r, marker)
	if err != nil || !bytes.Equal(marker, shebangMarker) {
		return "", false, nil
	}

	line, err = r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("reading shebang of %s: %w", path, err)
	}

	return line, true, nil
}

// findCommand returns the first command search directory containing a
// regular file named name.
func (c *Context) findCommand(name string) (string, error) {
	for _, dir := range c.commandPaths {
		candidate := filepath.Join(dir, name)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w %q", ErrCommandNotFound, name)
}

// wrapScript embeds the script and its interpreter command, then writes the
// packed-executable stub with a metadata pack holding a runnable record to
// output.
func (c *Context) wrapScript(source, output string) (bool, error) {
	cfg := c.cfg.Script
	if cfg == nil {
		c.debugf("autowrap: no script config, not wrapping %s", source)

		return false, nil
	}

	line, ok, err := readShebangLine(source)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	sb, err := ParseShebang(line)
	if err != nil {
		return false, fmt.Errorf("parsing shebang of %s: %w", source, err)
	}

	command, err := c.findCommand(sb.Command)
	if err != nil {
		return false, fmt.Errorf("wrapping script %s: %w", source, err)
	}

	c.debugf("autowrap: command %q for %s is %s", sb.Command, source, command)

	commandResource, err := c.addResource("command", command)
	if err != nil {
		return false, err
	}

	scriptResource, err := c.addResource("script", source)
	if err != nil {
		return false, err
	}

	record, err := scriptRunnable(cfg, sb.Arg, commandResource, scriptResource)
	if err != nil {
		return false, fmt.Errorf("building runnable for %s: %w", source, err)
	}

	metadata, err := runnable.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("building runnable for %s: %w", source, err)
	}

	resourcePaths := []string{commandResource, scriptResource}
	for _, key := range runnable.SortedEnvKeys(cfg.Env) {
		if tmpl := cfg.Env[key].Template(); tmpl != nil {
			resourcePaths = append(resourcePaths, tmpl.Resources()...)
		}
	}

	p := pack.Metadata(resourcePaths, runnable.Format, metadata)

	err = writePackedExecutable(cfg.PackedExecutable, output, p)
	if err != nil {
		return false, err
	}

	return true, nil
}

// scriptRunnable runs command with the optional shebang argument, the script
// and the caller's arguments.
func scriptRunnable(cfg *ScriptConfig, arg, commandResource, scriptResource string) (*runnable.Runnable, error) {
	command, err := runnable.ResourceTemplate(commandResource)
	if err != nil {
		return nil, err
	}

	script, err := runnable.ResourceTemplate(scriptResource)
	if err != nil {
		return nil, err
	}

	scriptPath, err := runnable.ResourcePath(scriptResource)
	if err != nil {
		return nil, err
	}

	var args []runnable.ArgValue
	if arg != "" {
		args = append(args, runnable.Arg(runnable.LiteralTemplate(arg)))
	}

	args = append(args, runnable.Arg(script), runnable.Rest())

	return &runnable.Runnable{
		Command:  command,
		Args:     args,
		Env:      runnable.CloneEnv(cfg.Env),
		ClearEnv: cfg.ClearEnv,
		Source:   &runnable.Source{Path: scriptPath},
	}, nil
}
