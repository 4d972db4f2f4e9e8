// Package schema derives JSON Schema fragments from Go types by reflection
// and coerces provider-supplied values back into typed Go values against
// those same schemas. Compiled schemas are cached process-wide, keyed by
// reflect.Type, the same sync.Map-backed pattern the rest of the codebase
// uses to cache compiled github.com/santhosh-tekuri/jsonschema/v5 schemas
// keyed by schema text.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is an immutable, shareable JSON-Schema fragment plus the compiled
// validator for it.
type Schema struct {
	Raw      map[string]any
	compiled *jsonschema.Schema
}

// MarshalJSON renders the schema's raw JSON-Schema form.
func (s *Schema) MarshalJSON() ([]byte, error) { return json.Marshal(s.Raw) }

// Validate checks a decoded JSON value (map[string]any / []any / scalars)
// against the compiled schema.
func (s *Schema) Validate(v any) error {
	if s.compiled == nil {
		return nil
	}
	return s.compiled.Validate(v)
}

var (
	cacheMu sync.RWMutex
	cache   = map[reflect.Type]*Schema{}
)

// ResetCache invalidates every cached schema. Exposed for tests, matching
// §4.1's requirement that the cache be explicitly resettable.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[reflect.Type]*Schema{}
}

// SchemaFor derives the JSON-Schema fragment for a Go type, consulting and
// populating the process-wide cache.
func SchemaFor(t reflect.Type) (*Schema, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	cacheMu.RLock()
	if s, ok := cache[t]; ok {
		cacheMu.RUnlock()
		return s, nil
	}
	cacheMu.RUnlock()

	raw, err := buildSchema(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}

	s := &Schema{Raw: raw}
	if compiled, err := compile(raw); err == nil {
		s.compiled = compiled
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()
	return s, nil
}

func compile(raw map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// Enumer is implemented by backed-enum types: TryFrom reports whether a raw
// value (string or int64, depending on the backing type) is a valid member.
type Enumer interface {
	EnumValues() []any
}

func buildSchema(t reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if enumer, ok := reflect.New(t).Interface().(Enumer); ok {
			return map[string]any{"type": "integer", "enum": enumer.EnumValues()}, nil
		}
		return map[string]any{"type": "integer"}, nil

	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil

	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil

	case reflect.String:
		if enumer, ok := reflect.New(t).Interface().(Enumer); ok {
			return map[string]any{"type": "string", "enum": enumer.EnumValues()}, nil
		}
		return map[string]any{"type": "string"}, nil

	case reflect.Slice, reflect.Array:
		itemSchema, err := buildSchema(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": itemSchema}, nil

	case reflect.Struct:
		return buildObjectSchema(t, seen)

	case reflect.Interface:
		// A union is modelled as an interface implemented by N named
		// structs; callers register variants via UnionVariants.
		if variants, ok := unionVariants[t]; ok {
			return buildUnionSchema(variants, seen)
		}
		return map[string]any{}, nil
	}

	return nil, fmt.Errorf("schema: unsupported kind %s", t.Kind())
}

func buildObjectSchema(t reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	if seen[t] {
		// Recursive type: emit an empty object rather than recursing
		// forever; real recursive DataModels are rare enough in tool
		// schemas that this is an acceptable fallback.
		return map[string]any{"type": "object"}, nil
	}
	seen[t] = true

	properties := map[string]any{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts := fieldTag(f)
		if name == "-" {
			continue
		}

		fieldType := f.Type
		nullable := false
		if fieldType.Kind() == reflect.Ptr {
			nullable = true
			fieldType = fieldType.Elem()
		}

		fs, err := buildSchema(fieldType, cloneSeen(seen))
		if err != nil {
			return nil, err
		}
		if desc := opts["description"]; desc != "" {
			fs["description"] = desc
		}
		properties[name] = fs

		// A field explicitly tagged `required` is required regardless of
		// nullability — that's the whole point of the tag, since a pointer
		// field is otherwise treated as optional.
		if opts["required"] == "true" || (!nullable && opts["default"] == "") {
			required = append(required, name)
		}
	}

	out := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		out["required"] = required
	}
	return out, nil
}

func cloneSeen(seen map[reflect.Type]bool) map[reflect.Type]bool {
	out := make(map[reflect.Type]bool, len(seen))
	for k, v := range seen {
		out[k] = v
	}
	return out
}

func fieldTag(f reflect.StructField) (name string, opts map[string]string) {
	name = f.Name
	if jsonTag := f.Tag.Get("json"); jsonTag != "" {
		parts := strings.Split(jsonTag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
	}
	opts = map[string]string{}
	if tag := f.Tag.Get("jsonschema"); tag != "" {
		for _, kv := range strings.Split(tag, ",") {
			if eq := strings.IndexByte(kv, '='); eq >= 0 {
				opts[kv[:eq]] = kv[eq+1:]
			} else {
				opts[kv] = "true"
			}
		}
	}
	return name, opts
}

// unionVariants maps an interface type to its allowed concrete
// implementations, for union (oneOf) schema generation. Populated via
// RegisterUnion.
var unionVariants = map[reflect.Type][]reflect.Type{}

// RegisterUnion declares that iface may hold any of variants, enabling
// SchemaFor(iface) to emit a oneOf schema per §4.1's union rule.
func RegisterUnion(iface reflect.Type, variants ...reflect.Type) {
	unionVariants[iface] = variants
}

func buildUnionSchema(variants []reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	var arms []any
	for _, v := range variants {
		s, err := buildSchema(v, cloneSeen(seen))
		if err != nil {
			return nil, err
		}
		arms = append(arms, s)
	}
	if len(arms) == 1 {
		return arms[0].(map[string]any), nil
	}
	return map[string]any{"oneOf": arms}, nil
}
