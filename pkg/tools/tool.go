// Package tools implements tool registration and invocation: the registry
// that holds callable tools by name, and the invoker that drives the
// model-calls-tools round-trip loop with bounded concurrency and retries.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/MaestroError/laragent/pkg/schema"
)

// Handler executes a tool given its raw JSON arguments and returns a
// result string (or an error, which the invoker turns into an
// IsError tool result rather than aborting the turn).
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is one callable function the model may invoke.
type Tool struct {
	Name             string
	Description      string
	ParametersSchema map[string]any
	Handler          Handler

	// RootDataModel, when true, marks this tool's single argument as a
	// complete DataModel rather than a flat parameter bag — the schema's
	// top level IS the model's shape, not a wrapper around it.
	RootDataModel bool

	// Phantom tools are advertised to the model (so it can be instructed
	// to call them) but never dispatched to a Handler — the orchestrator
	// intercepts the call itself (e.g. a "final_answer" signal tool).
	Phantom bool
}

// Builder constructs a Tool incrementally, the form callers reach for when
// a tool's schema needs field-by-field control.
type Builder struct {
	t Tool
}

// NewTool starts a Builder for a tool named name.
func NewTool(name string) *Builder {
	return &Builder{t: Tool{Name: name, ParametersSchema: map[string]any{"type": "object", "properties": map[string]any{}}}}
}

func (b *Builder) Description(d string) *Builder { b.t.Description = d; return b }

// Param adds a named property to the tool's parameter schema. typ follows
// JSON Schema primitive names ("string", "integer", "number", "boolean",
// "array", "object").
func (b *Builder) Param(name, typ, description string, required bool) *Builder {
	props := b.t.ParametersSchema["properties"].(map[string]any)
	props[name] = map[string]any{"type": typ, "description": description}
	if required {
		req, _ := b.t.ParametersSchema["required"].([]string)
		b.t.ParametersSchema["required"] = append(req, name)
	}
	return b
}

func (b *Builder) Handle(h Handler) *Builder { b.t.Handler = h; return b }
func (b *Builder) Phantom() *Builder         { b.t.Phantom = true; return b }

func (b *Builder) Build() Tool { return b.t }

// FromFunc derives a tool's schema by reflecting over a typed function
// signature func(ctx context.Context, args ArgsStruct) (string, error),
// the third registration form: a caller writes ordinary Go and never
// touches JSON Schema or a raw-argument Handler directly.
func FromFunc(name, description string, fn any) (Tool, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumIn() != 2 || ft.NumOut() != 2 {
		return Tool{}, fmt.Errorf("tools: FromFunc requires func(context.Context, ArgsT) (string, error), got %s", ft)
	}
	argsType := ft.In(1)
	sch, err := schema.SchemaFor(argsType)
	if err != nil {
		return Tool{}, fmt.Errorf("tools: schema for %s: %w", name, err)
	}

	handler := func(ctx context.Context, raw json.RawMessage) (string, error) {
		argsPtr := reflect.New(argsType)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, argsPtr.Interface()); err != nil {
				return "", fmt.Errorf("tools: decode arguments: %w", err)
			}
		}
		out := fv.Call([]reflect.Value{reflect.ValueOf(ctx), argsPtr.Elem()})
		var callErr error
		if e, ok := out[1].Interface().(error); ok {
			callErr = e
		}
		return out[0].String(), callErr
	}

	return Tool{
		Name:             name,
		Description:      description,
		ParametersSchema: sch.Raw,
		Handler:          handler,
	}, nil
}
