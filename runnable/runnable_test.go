package runnable_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/autowrap/runnable"
)

func mustResourceTemplate(t *testing.T, resource string) runnable.Template {
	t.Helper()

	tmpl, err := runnable.ResourceTemplate(resource)
	if err != nil {
		t.Fatalf("ResourceTemplate(%q): %v", resource, err)
	}

	return tmpl
}

func Test_Marshal_Encodes_Type_Discriminators(t *testing.T) {
	t.Parallel()

	script := mustResourceTemplate(t, "aliases/tool/k/tool")

	source, err := runnable.ResourcePath("aliases/tool/k/tool")
	if err != nil {
		t.Fatalf("ResourcePath: %v", err)
	}

	r := &runnable.Runnable{
		Command: mustResourceTemplate(t, "aliases/sh/k/sh"),
		Args:    []runnable.ArgValue{runnable.Arg(runnable.LiteralTemplate("-e")), runnable.Arg(script), runnable.Rest()},
		Env: map[string]runnable.EnvValue{
			"PATH": {Kind: runnable.EnvPrepend, Value: &script, Separator: ":"},
			"HOME": {Kind: runnable.EnvClear},
		},
		ClearEnv: true,
		Source:   &runnable.Source{Path: source},
	}

	data, err := runnable.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var generic map[string]any

	err = json.Unmarshal(data, &generic)
	if err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	want := map[string]any{
		"command": map[string]any{"components": []any{map[string]any{"type": "resource", "resource": "aliases/sh/k/sh"}}},
		"args": []any{
			map[string]any{"type": "arg", "value": map[string]any{"components": []any{map[string]any{"type": "literal", "value": "-e"}}}},
			map[string]any{"type": "arg", "value": map[string]any{"components": []any{map[string]any{"type": "resource", "resource": "aliases/tool/k/tool"}}}},
			map[string]any{"type": "rest"},
		},
		"env": map[string]any{
			"PATH": map[string]any{
				"type":      "prepend",
				"separator": ":",
				"value":     map[string]any{"components": []any{map[string]any{"type": "resource", "resource": "aliases/tool/k/tool"}}},
			},
			"HOME": map[string]any{"type": "clear"},
		},
		"clear_env": true,
		"source":    map[string]any{"path": map[string]any{"type": "resource", "resource": "aliases/tool/k/tool"}},
	}

	if diff := cmp.Diff(want, generic); diff != "" {
		t.Fatalf("encoded runnable mismatch (-want +got):\n%s", diff)
	}

	back, err := runnable.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff(r, back); diff != "" {
		t.Fatalf("decoded runnable mismatch (-want +got):\n%s", diff)
	}
}

func Test_Marshal_Writes_Empty_Collections_When_Nil(t *testing.T) {
	t.Parallel()

	data, err := runnable.Marshal(&runnable.Runnable{Command: runnable.LiteralTemplate("true")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"command":{"components":[{"type":"literal","value":"true"}]},"args":[],"env":{},"clear_env":false}`
	if got := string(data); got != want {
		t.Fatalf("Marshal =\n%s\nwant\n%s", got, want)
	}
}

func Test_Validate_Rejects_Malformed_Records(t *testing.T) {
	t.Parallel()

	lit := runnable.LiteralTemplate("x")
	abs := runnable.Template{Components: []runnable.TemplateComponent{{Kind: runnable.ComponentResource, Resource: "/abs"}}}

	tests := []struct {
		name string
		r    runnable.Runnable
	}{
		{name: "Empty_Command", r: runnable.Runnable{}},
		{name: "Absolute_Command_Resource", r: runnable.Runnable{Command: abs}},
		{name: "Unknown_Component", r: runnable.Runnable{Command: runnable.Template{Components: []runnable.TemplateComponent{{Kind: "other"}}}}},
		{name: "Arg_Without_Value", r: runnable.Runnable{Command: lit, Args: []runnable.ArgValue{{Kind: runnable.ArgLiteral}}}},
		{name: "Rest_With_Value", r: runnable.Runnable{Command: lit, Args: []runnable.ArgValue{{Kind: runnable.ArgRest, Value: &lit}}}},
		{name: "Set_Without_Value", r: runnable.Runnable{Command: lit, Env: map[string]runnable.EnvValue{"A": {Kind: runnable.EnvSet}}}},
		{name: "Append_Without_Separator", r: runnable.Runnable{Command: lit, Env: map[string]runnable.EnvValue{"A": {Kind: runnable.EnvAppend, Value: &lit}}}},
		{name: "Inherit_With_Value", r: runnable.Runnable{Command: lit, Env: map[string]runnable.EnvValue{"A": {Kind: runnable.EnvInherit, Value: &lit}}}},
		{name: "Unknown_Env", r: runnable.Runnable{Command: lit, Env: map[string]runnable.EnvValue{"A": {Kind: "unset"}}}},
		{name: "Absolute_Source", r: runnable.Runnable{Command: lit, Source: &runnable.Source{Path: runnable.Path{Kind: runnable.PathRelative, Path: "/x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := runnable.Marshal(&tt.r)
			if !errors.Is(err, runnable.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func Test_Unmarshal_Rejects_Invalid_Record(t *testing.T) {
	t.Parallel()

	_, err := runnable.Unmarshal([]byte(`{"command":{"components":[]},"args":[],"env":{}}`))
	if !errors.Is(err, runnable.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	_, err = runnable.Unmarshal([]byte(`not json`))
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func Test_EnvValue_Template_Returns_Nil_When_Clear_Or_Inherit(t *testing.T) {
	t.Parallel()

	lit := runnable.LiteralTemplate("x")

	for _, kind := range []runnable.EnvKind{runnable.EnvClear, runnable.EnvInherit} {
		if got := (runnable.EnvValue{Kind: kind, Value: &lit}).Template(); got != nil {
			t.Fatalf("%s: Template = %v, want nil", kind, got)
		}
	}

	for _, kind := range []runnable.EnvKind{runnable.EnvSet, runnable.EnvFallback, runnable.EnvPrepend, runnable.EnvAppend} {
		if got := (runnable.EnvValue{Kind: kind, Value: &lit}).Template(); got != &lit {
			t.Fatalf("%s: Template did not return the value", kind)
		}
	}
}

func Test_Template_Resources_Lists_Resource_Components_In_Order(t *testing.T) {
	t.Parallel()

	tmpl := runnable.Template{Components: []runnable.TemplateComponent{
		{Kind: runnable.ComponentResource, Resource: "b"},
		{Kind: runnable.ComponentLiteral, Value: ":"},
		{Kind: runnable.ComponentRelativePath, Path: "../lib"},
		{Kind: runnable.ComponentResource, Resource: "a"},
	}}

	if diff := cmp.Diff([]string{"b", "a"}, tmpl.Resources()); diff != "" {
		t.Fatalf("Resources mismatch (-want +got):\n%s", diff)
	}
}

func Test_CloneEnv_Copies_Templates(t *testing.T) {
	t.Parallel()

	lit := runnable.LiteralTemplate("x")
	env := map[string]runnable.EnvValue{"A": {Kind: runnable.EnvSet, Value: &lit}}

	clone := runnable.CloneEnv(env)
	clone["A"].Value.Components[0].Value = "changed"

	if lit.Components[0].Value != "x" {
		t.Fatal("CloneEnv shares template components")
	}

	if runnable.CloneEnv(nil) != nil {
		t.Fatal("CloneEnv(nil) should be nil")
	}
}

func Test_ResourceTemplate_Rejects_Absolute_Path(t *testing.T) {
	t.Parallel()

	_, err := runnable.ResourceTemplate("/usr/bin/sh")
	if !errors.Is(err, runnable.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	_, err = runnable.ResourcePath("")
	if !errors.Is(err, runnable.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
