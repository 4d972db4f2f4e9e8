package schema

import (
	"reflect"
	"testing"
	"time"
)

type simpleRecord struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Note  *string `json:"note,omitempty"`
}

type nested struct {
	Record simpleRecord `json:"record"`
	Tags   []string     `json:"tags"`
}

func TestSchemaForScalarKinds(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf(""))
	if err != nil {
		t.Fatalf("SchemaFor(string): %v", err)
	}
	if s.Raw["type"] != "string" {
		t.Errorf("type = %v, want string", s.Raw["type"])
	}

	s, err = SchemaFor(reflect.TypeOf(0))
	if err != nil {
		t.Fatalf("SchemaFor(int): %v", err)
	}
	if s.Raw["type"] != "integer" {
		t.Errorf("type = %v, want integer", s.Raw["type"])
	}
}

func TestSchemaForObjectRequiredFields(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf(simpleRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	if s.Raw["type"] != "object" {
		t.Fatalf("type = %v, want object", s.Raw["type"])
	}

	required, ok := s.Raw["required"].([]string)
	if !ok {
		t.Fatalf("required = %v (%T), want []string", s.Raw["required"], s.Raw["required"])
	}
	want := map[string]bool{"name": true, "count": true}
	if len(required) != len(want) {
		t.Fatalf("required = %v, want %v keys", required, want)
	}
	for _, r := range required {
		if !want[r] {
			t.Errorf("unexpected required field %q", r)
		}
	}

	props, ok := s.Raw["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing or wrong type: %v", s.Raw["properties"])
	}
	if _, ok := props["note"]; !ok {
		t.Error("pointer field \"note\" should still appear in properties, just not required")
	}
	for _, r := range required {
		if r == "note" {
			t.Error("pointer field \"note\" should not be required")
		}
	}
}

type explicitRequiredRecord struct {
	Name  string  `json:"name"`
	Label *string `json:"label" jsonschema:"required"`
	Note  *string `json:"note,omitempty"`
}

// A pointer field explicitly tagged `required` must appear in the
// required list even though pointer fields are nullable by default.
func TestSchemaForExplicitlyRequiredPointerField(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf(explicitRequiredRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	required, ok := s.Raw["required"].([]string)
	if !ok {
		t.Fatalf("required = %v (%T), want []string", s.Raw["required"], s.Raw["required"])
	}

	want := map[string]bool{"name": true, "label": true}
	if len(required) != len(want) {
		t.Fatalf("required = %v, want %v keys", required, want)
	}
	for _, r := range required {
		if !want[r] {
			t.Errorf("unexpected required field %q", r)
		}
	}
	for _, r := range required {
		if r == "note" {
			t.Error("pointer field \"note\" has no required tag and should not be required")
		}
	}
}

func TestSchemaForSliceAlwaysHasItems(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf([]string{}))
	if err != nil {
		t.Fatalf("SchemaFor([]string): %v", err)
	}
	if s.Raw["type"] != "array" {
		t.Fatalf("type = %v, want array", s.Raw["type"])
	}
	items, ok := s.Raw["items"].(map[string]any)
	if !ok {
		t.Fatalf("items missing for scalar-element slice: %v", s.Raw["items"])
	}
	if items["type"] != "string" {
		t.Errorf("items.type = %v, want string", items["type"])
	}
}

func TestSchemaForSliceOfStructsHasItems(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf([]simpleRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor([]simpleRecord): %v", err)
	}
	items, ok := s.Raw["items"].(map[string]any)
	if !ok {
		t.Fatalf("items missing for struct-element slice: %v", s.Raw["items"])
	}
	if items["type"] != "object" {
		t.Errorf("items.type = %v, want object", items["type"])
	}
}

func TestSchemaForNestedStruct(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf(nested{}))
	if err != nil {
		t.Fatalf("SchemaFor(nested): %v", err)
	}
	props := s.Raw["properties"].(map[string]any)
	record, ok := props["record"].(map[string]any)
	if !ok {
		t.Fatalf("record field missing: %v", props)
	}
	if record["type"] != "object" {
		t.Errorf("record.type = %v, want object", record["type"])
	}
}

func TestSchemaForCachesByType(t *testing.T) {
	ResetCache()

	a, err := SchemaFor(reflect.TypeOf(simpleRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	b, err := SchemaFor(reflect.TypeOf(simpleRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	if a != b {
		t.Error("SchemaFor should return the same cached *Schema for repeated calls with the same type")
	}

	ResetCache()
	c, err := SchemaFor(reflect.TypeOf(simpleRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	if a == c {
		t.Error("ResetCache should invalidate previously cached schemas")
	}
}

func TestSchemaForPointerDereferences(t *testing.T) {
	ResetCache()

	ptrType := reflect.TypeOf(&simpleRecord{})
	s, err := SchemaFor(ptrType)
	if err != nil {
		t.Fatalf("SchemaFor(*simpleRecord): %v", err)
	}
	if s.Raw["type"] != "object" {
		t.Errorf("type = %v, want object", s.Raw["type"])
	}
}

func TestSchemaValidateAcceptsAndRejects(t *testing.T) {
	ResetCache()

	s, err := SchemaFor(reflect.TypeOf(simpleRecord{}))
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}

	valid := map[string]any{"name": "x", "count": float64(1)}
	if err := s.Validate(valid); err != nil {
		t.Errorf("Validate(valid) = %v, want nil", err)
	}

	missing := map[string]any{"name": "x"}
	if err := s.Validate(missing); err == nil {
		t.Error("Validate(missing required field) = nil, want an error")
	}
}

type recursive struct {
	Value    string      `json:"value"`
	Children []recursive `json:"children"`
}

func TestSchemaForRecursiveTypeDoesNotInfiniteLoop(t *testing.T) {
	ResetCache()

	done := make(chan error, 1)
	go func() {
		_, err := SchemaFor(reflect.TypeOf(recursive{}))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SchemaFor(recursive): %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SchemaFor(recursive) did not return, likely infinite recursion")
	}
}
