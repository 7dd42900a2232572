package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/autowrap/autowrap"
	"github.com/calvinalkan/autowrap/pack"
	"github.com/calvinalkan/autowrap/runnable"
)

// ErrInspectArgs is returned when inspect is not given exactly one file.
var ErrInspectArgs = errors.New("expected exactly one file")

// InspectCmd creates the inspect command, which prints how autowrap sees a
// file and the pack embedded in it.
func InspectCmd(cfg *Config) *Command {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")

	return &Command{
		Flags:   flags,
		Usage:   "inspect <file>",
		Short:   "Show the kind and embedded pack of a file",
		Long:    "Print the kind autowrap assigns to a file and its embedded pack as JSON.\nScript packs also show the decoded command record.\nExits 1 if the file carries no pack.",
		Aliases: []string{"show"},
		Exec: func(_ context.Context, _ io.Reader, stdout, _ io.Writer, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w, got %d", ErrInspectArgs, len(args))
			}

			path, err := ResolvePath(args[0], "", cfg.EffectiveCwd)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			fprintf(stdout, "kind: %s\n", autowrap.Classify(data))

			p, err := pack.Extract(data)
			if errors.Is(err, pack.ErrNoPack) {
				fprintln(stdout, "pack: none")

				return ErrSilentExit
			}

			if err != nil {
				return fmt.Errorf("reading pack of %s: %w", path, err)
			}

			return printPack(stdout, p)
		},
	}
}

func printPack(output io.Writer, p *pack.Pack) error {
	shown := *p
	shown.Metadata = nil

	encoded, err := json.MarshalIndent(&shown, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pack: %w", err)
	}

	fprintf(output, "pack: %s\n", encoded)

	if p.Kind != pack.KindMetadata || p.Format != runnable.Format {
		return nil
	}

	r, err := runnable.Unmarshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("decoding runnable: %w", err)
	}

	raw, err := runnable.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding runnable: %w", err)
	}

	var indented bytes.Buffer

	err = json.Indent(&indented, raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding runnable: %w", err)
	}

	fprintf(output, "runnable: %s\n", indented.Bytes())

	return nil
}
