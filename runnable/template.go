package runnable

import "fmt"

// ComponentKind selects the variant of a [TemplateComponent].
type ComponentKind string

const (
	// ComponentLiteral is literal text.
	ComponentLiteral ComponentKind = "literal"
	// ComponentRelativePath is a path relative to the packed executable.
	ComponentRelativePath ComponentKind = "relative_path"
	// ComponentResource is a path inside a resource directory.
	ComponentResource ComponentKind = "resource"
)

// TemplateComponent is one piece of a Template.
type TemplateComponent struct {
	Kind     ComponentKind `json:"type"`
	Value    string        `json:"value,omitempty"`
	Path     string        `json:"path,omitempty"`
	Resource string        `json:"resource,omitempty"`
}

// Template is a string assembled at run time from its components.
type Template struct {
	Components []TemplateComponent `json:"components"`
}

// LiteralTemplate returns a template consisting of the literal value.
func LiteralTemplate(value string) Template {
	return Template{Components: []TemplateComponent{{Kind: ComponentLiteral, Value: value}}}
}

// ResourceTemplate returns a template consisting of a single resource path.
func ResourceTemplate(resource string) (Template, error) {
	err := checkRelative(resource)
	if err != nil {
		return Template{}, err
	}

	return Template{Components: []TemplateComponent{{Kind: ComponentResource, Resource: resource}}}, nil
}

// Resources returns the resource paths referenced by t, in order.
func (t Template) Resources() []string {
	var out []string

	for _, c := range t.Components {
		if c.Kind == ComponentResource {
			out = append(out, c.Resource)
		}
	}

	return out
}

// Validate reports whether t is well formed.
func (t Template) Validate() error {
	for i, c := range t.Components {
		switch c.Kind {
		case ComponentLiteral:
			if c.Path != "" || c.Resource != "" {
				return fmt.Errorf("%w: component %d: literal carries a path", ErrInvalid, i)
			}
		case ComponentRelativePath:
			err := checkRelative(c.Path)
			if err != nil {
				return fmt.Errorf("component %d: %w", i, err)
			}
		case ComponentResource:
			err := checkRelative(c.Resource)
			if err != nil {
				return fmt.Errorf("component %d: %w", i, err)
			}
		default:
			return fmt.Errorf("%w: component %d: unknown type %q", ErrInvalid, i, c.Kind)
		}
	}

	return nil
}
