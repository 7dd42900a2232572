// Package runnable defines the command-execution record that a packed
// executable stub reads to launch a wrapped script.
//
// A [Runnable] is a command template, an ordered argument list and an
// environment map. Templates are sequences of literal text, paths relative to
// the packed executable, and paths into a resource directory. The stub
// resolves resource components against the resource directories it can see
// at run time, so nothing in a record refers to an absolute host path.
//
// Records are serialized as JSON. Every variant type carries a snake_case
// "type" discriminator; [Marshal] and [Unmarshal] validate records on the way
// in and out.
package runnable

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
)

// Format is the format tag stored next to a serialized Runnable in a
// metadata pack.
const Format = "application/vnd.autowrap.runnable-v0.1.0+json"

// ErrInvalid is returned when a record or one of its parts is malformed.
var ErrInvalid = errors.New("invalid runnable")

// Runnable describes how to execute a wrapped program.
type Runnable struct {
	Command  Template            `json:"command"`
	Args     []ArgValue          `json:"args"`
	Env      map[string]EnvValue `json:"env"`
	ClearEnv bool                `json:"clear_env"`
	Source   *Source             `json:"source,omitempty"`
}

// Source annotates a Runnable with the file it was derived from.
type Source struct {
	Path Path `json:"path"`
}

// PathKind selects how a [Path] is resolved.
type PathKind string

const (
	// PathRelative is a path relative to the packed executable.
	PathRelative PathKind = "relative_path"
	// PathResource is a path inside a resource directory.
	PathResource PathKind = "resource"
)

// Path is a location that is either relative to the packed executable or
// inside a resource directory.
type Path struct {
	Kind     PathKind `json:"type"`
	Path     string   `json:"path,omitempty"`
	Resource string   `json:"resource,omitempty"`
}

// ResourcePath returns a Path pointing into a resource directory.
func ResourcePath(resource string) (Path, error) {
	err := checkRelative(resource)
	if err != nil {
		return Path{}, err
	}

	return Path{Kind: PathResource, Resource: resource}, nil
}

// Validate reports whether p is well formed.
func (p Path) Validate() error {
	switch p.Kind {
	case PathRelative:
		return checkRelative(p.Path)
	case PathResource:
		return checkRelative(p.Resource)
	default:
		return fmt.Errorf("%w: unknown path type %q", ErrInvalid, p.Kind)
	}
}

// ArgKind selects the variant of an [ArgValue].
type ArgKind string

const (
	// ArgLiteral is a single argument rendered from a template.
	ArgLiteral ArgKind = "arg"
	// ArgRest forwards every argument given to the packed executable.
	ArgRest ArgKind = "rest"
)

// ArgValue is one entry in a Runnable's argument list.
type ArgValue struct {
	Kind  ArgKind   `json:"type"`
	Value *Template `json:"value,omitempty"`
}

// Arg returns an argument rendered from value.
func Arg(value Template) ArgValue {
	return ArgValue{Kind: ArgLiteral, Value: &value}
}

// Rest returns the placeholder that forwards invocation-time arguments.
func Rest() ArgValue {
	return ArgValue{Kind: ArgRest}
}

// Validate reports whether a is well formed.
func (a ArgValue) Validate() error {
	switch a.Kind {
	case ArgLiteral:
		if a.Value == nil {
			return fmt.Errorf("%w: arg without value", ErrInvalid)
		}

		return a.Value.Validate()
	case ArgRest:
		if a.Value != nil {
			return fmt.Errorf("%w: rest arg carries a value", ErrInvalid)
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown arg type %q", ErrInvalid, a.Kind)
	}
}

// EnvKind selects how an environment variable is computed.
type EnvKind string

const (
	// EnvClear removes the variable.
	EnvClear EnvKind = "clear"
	// EnvInherit keeps the variable from the invoking environment.
	EnvInherit EnvKind = "inherit"
	// EnvSet overwrites the variable.
	EnvSet EnvKind = "set"
	// EnvFallback sets the variable only when it is unset.
	EnvFallback EnvKind = "fallback"
	// EnvPrepend prepends the value, joined by Separator.
	EnvPrepend EnvKind = "prepend"
	// EnvAppend appends the value, joined by Separator.
	EnvAppend EnvKind = "append"
)

// EnvValue describes a single environment variable of a Runnable.
type EnvValue struct {
	Kind      EnvKind   `json:"type"`
	Value     *Template `json:"value,omitempty"`
	Separator string    `json:"separator,omitempty"`
}

// Template returns the template carried by v, or nil for clear and inherit.
func (v EnvValue) Template() *Template {
	switch v.Kind {
	case EnvSet, EnvFallback, EnvPrepend, EnvAppend:
		return v.Value
	default:
		return nil
	}
}

// Validate reports whether v is well formed.
func (v EnvValue) Validate() error {
	switch v.Kind {
	case EnvClear, EnvInherit:
		if v.Value != nil || v.Separator != "" {
			return fmt.Errorf("%w: %s env value carries a value", ErrInvalid, v.Kind)
		}

		return nil
	case EnvSet, EnvFallback:
		if v.Value == nil {
			return fmt.Errorf("%w: %s env value without value", ErrInvalid, v.Kind)
		}

		return v.Value.Validate()
	case EnvPrepend, EnvAppend:
		if v.Value == nil {
			return fmt.Errorf("%w: %s env value without value", ErrInvalid, v.Kind)
		}

		if v.Separator == "" {
			return fmt.Errorf("%w: %s env value without separator", ErrInvalid, v.Kind)
		}

		return v.Value.Validate()
	default:
		return fmt.Errorf("%w: unknown env type %q", ErrInvalid, v.Kind)
	}
}

// Validate reports whether r is well formed.
func (r *Runnable) Validate() error {
	var errs []error

	err := r.Command.Validate()
	if err != nil {
		errs = append(errs, fmt.Errorf("command: %w", err))
	}

	if len(r.Command.Components) == 0 {
		errs = append(errs, fmt.Errorf("%w: empty command", ErrInvalid))
	}

	for i, arg := range r.Args {
		err := arg.Validate()
		if err != nil {
			errs = append(errs, fmt.Errorf("arg %d: %w", i, err))
		}
	}

	for _, key := range SortedEnvKeys(r.Env) {
		err := r.Env[key].Validate()
		if err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}

	if r.Source != nil {
		err := r.Source.Path.Validate()
		if err != nil {
			errs = append(errs, fmt.Errorf("source: %w", err))
		}
	}

	return errors.Join(errs...)
}

// SortedEnvKeys returns the keys of env in lexical order.
func SortedEnvKeys(env map[string]EnvValue) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Marshal validates r and encodes it as JSON.
func Marshal(r *Runnable) ([]byte, error) {
	err := r.Validate()
	if err != nil {
		return nil, err
	}

	out := *r
	if out.Args == nil {
		out.Args = []ArgValue{}
	}

	if out.Env == nil {
		out.Env = map[string]EnvValue{}
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding runnable: %w", err)
	}

	return data, nil
}

// Unmarshal decodes and validates a JSON-encoded Runnable.
func Unmarshal(data []byte) (*Runnable, error) {
	var r Runnable

	err := json.Unmarshal(data, &r)
	if err != nil {
		return nil, fmt.Errorf("decoding runnable: %w", err)
	}

	err = r.Validate()
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// CloneEnv returns a deep copy of env.
func CloneEnv(env map[string]EnvValue) map[string]EnvValue {
	if env == nil {
		return nil
	}

	out := make(map[string]EnvValue, len(env))
	for k, v := range env {
		if v.Value != nil {
			tmpl := Template{Components: slices.Clone(v.Value.Components)}
			v.Value = &tmpl
		}

		out[k] = v
	}

	return out
}

func checkRelative(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalid)
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("%w: path %q is absolute", ErrInvalid, path)
	}

	return nil
}
