package schema

import (
	"fmt"
	"reflect"
)

// TryFromer is implemented by backed-enum types: TryFrom reports whether a
// raw decoded value (string or float64, mirroring encoding/json's decode
// types) maps to a valid enum member, returning the typed value.
type TryFromer interface {
	TryFrom(raw any) (any, bool)
}

// MapDecodable is implemented by DataModel-like types that build themselves
// from a decoded map, depositing unrecognised keys wherever they keep
// extras.
type MapDecodable interface {
	FromMap(m map[string]any) error
}

// Coerce converts a provider-supplied, JSON-decoded value into a value of
// type t, following §4.1's coercion rules: scalars pass through with a
// strict type check, arrays recurse per element, enums try TryFrom /
// case-name match and fall back to the raw value on failure, maps invoke
// FromMap, and unions try each non-null arm in order.
func Coerce(value any, t reflect.Type) (any, error) {
	if t.Kind() == reflect.Ptr {
		if value == nil {
			return reflect.Zero(t).Interface(), nil
		}
		inner, err := Coerce(value, t.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(t.Elem())
		v := reflect.ValueOf(inner)
		if v.Type() != t.Elem() && v.Type().ConvertibleTo(t.Elem()) {
			v = v.Convert(t.Elem())
		}
		ptr.Elem().Set(v)
		return ptr.Interface(), nil
	}

	if t.Implements(reflect.TypeOf((*MapDecodable)(nil)).Elem()) {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: expected object for %s, got %T", t, value)
		}
		inst := reflect.New(t).Interface().(MapDecodable)
		if err := inst.FromMap(m); err != nil {
			return nil, err
		}
		return inst, nil
	}

	if variants, ok := unionVariants[t]; ok {
		return coerceUnion(value, variants)
	}

	zero := reflect.New(t).Interface()
	if enumer, ok := zero.(TryFromer); ok {
		if coerced, ok := enumer.TryFrom(value); ok {
			return coerced, nil
		}
		// Failure: the receiving callback decides, so the raw value is
		// returned unmodified rather than erroring here.
		return value, nil
	}

	switch t.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("schema: expected string, got %T", value)
		}
		return s, nil

	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("schema: expected bool, got %T", value)
		}
		return b, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("schema: expected number, got %T", value)
		}
		return int64(f), nil

	case reflect.Float32, reflect.Float64:
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("schema: expected number, got %T", value)
		}
		return f, nil

	case reflect.Slice:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("schema: expected array, got %T", value)
		}
		out := reflect.MakeSlice(t, 0, len(items))
		for _, item := range items {
			coerced, err := Coerce(item, t.Elem())
			if err != nil {
				return nil, err
			}
			v := reflect.ValueOf(coerced)
			if v.Type() != t.Elem() && v.Type().ConvertibleTo(t.Elem()) {
				v = v.Convert(t.Elem())
			}
			out = reflect.Append(out, v)
		}
		return out.Interface(), nil

	case reflect.Struct:
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: expected object for %s, got %T", t, value)
		}
		return coerceStruct(m, t)
	}

	return value, nil
}

// coerceStruct populates a plain struct (one that does not implement
// MapDecodable) field by field, matching each JSON key against the field's
// json tag the same way buildObjectSchema derived it.
func coerceStruct(m map[string]any, t reflect.Type) (any, error) {
	out := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _ := fieldTag(f)
		raw, present := m[name]
		if !present {
			continue
		}
		coerced, err := Coerce(raw, f.Type)
		if err != nil {
			return nil, fmt.Errorf("schema: field %q: %w", name, err)
		}
		if coerced == nil {
			continue
		}
		v := reflect.ValueOf(coerced)
		// Coerce returns int64/float64 regardless of the field's exact
		// integer/float width (int32, uint16, ...), so the value must be
		// converted to the field's type before Set, which requires an
		// identical type rather than a merely convertible one.
		if v.Type() != f.Type && v.Type().ConvertibleTo(f.Type) {
			v = v.Convert(f.Type)
		}
		out.Field(i).Set(v)
	}
	return out.Interface(), nil
}

// coerceUnion tries each arm in listed order, skipping arms that cannot
// possibly accept the runtime type. For a map against a union of
// DataModels, "best match" prefers the arm whose required-key set matches
// exactly and falls back to the first structurally compatible arm.
func coerceUnion(value any, variants []reflect.Type) (any, error) {
	m, isMap := value.(map[string]any)
	if !isMap {
		for _, v := range variants {
			if coerced, err := Coerce(value, v); err == nil {
				return coerced, nil
			}
		}
		return nil, fmt.Errorf("schema: no union arm accepted value of type %T", value)
	}

	var bestExact any
	var firstMatch any
	for _, v := range variants {
		s, err := SchemaFor(v)
		if err != nil {
			continue
		}
		required, _ := s.Raw["required"].([]string)
		coerced, err := Coerce(value, v)
		if err != nil {
			continue
		}
		if firstMatch == nil {
			firstMatch = coerced
		}
		if keysMatchExactly(m, required) {
			bestExact = coerced
			break
		}
	}
	if bestExact != nil {
		return bestExact, nil
	}
	if firstMatch != nil {
		return firstMatch, nil
	}
	return nil, fmt.Errorf("schema: no union arm matched map %v", m)
}

func keysMatchExactly(m map[string]any, required []string) bool {
	if len(required) != len(m) {
		return false
	}
	for _, k := range required {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}
