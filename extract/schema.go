// Package extract converts Go record types to vendor tool/function schemas
// and validates raw model output back into typed instances.
//
// Everything here is a pure function of its inputs: a Schema is a structural
// description with no behavior, and validation performs no I/O.
package extract

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Schema is a structural type description: field names, types, nesting,
// optionality and enumerations. It drives both the vendor-facing tool
// schema payload and response validation.
type Schema struct {
	// Name labels the schema in vendor payloads that require one
	// (e.g. OpenAI json_schema names, Anthropic output tools).
	Name string

	Kind        Kind
	Description string

	// Properties describe object fields in declaration order.
	Properties []Property

	// Items describes array elements.
	Items *Schema

	// Enum restricts string values.
	Enum []string

	// Nullable permits an explicit JSON null.
	Nullable bool
}

type Property struct {
	Name     string
	Optional bool
	Schema   Schema
}

var timeType = reflect.TypeOf(time.Time{})

// SchemaFor derives a Schema from the struct type T.
//
// Field names come from json tags. Pointer fields are optional and nullable;
// fields tagged ,omitempty are optional. `desc` and `enum` tags map to
// Description and Enum.
func SchemaFor[T any]() (Schema, error) {
	return schemaOfType(reflect.TypeFor[T]())
}

// MustSchemaFor is SchemaFor, panicking on unsupported types. Intended for
// package-level schema declarations.
func MustSchemaFor[T any]() Schema {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaOf derives a Schema from the dynamic type of v.
func SchemaOf(v any) (Schema, error) {
	return schemaOfType(reflect.TypeOf(v))
}

func schemaOfType(t reflect.Type) (Schema, error) {
	if t == nil {
		return Schema{}, fmt.Errorf("extract: nil type")
	}
	s, err := walkType(t)
	if err != nil {
		return Schema{}, err
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		s.Name = t.Name()
	}
	return s, nil
}

func walkType(t reflect.Type) (Schema, error) {
	switch t.Kind() {
	case reflect.Pointer:
		s, err := walkType(t.Elem())
		if err != nil {
			return Schema{}, err
		}
		s.Nullable = true
		return s, nil
	case reflect.String:
		return Schema{Kind: KindString}, nil
	case reflect.Bool:
		return Schema{Kind: KindBoolean}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Schema{Kind: KindInteger}, nil
	case reflect.Float32, reflect.Float64:
		return Schema{Kind: KindNumber}, nil
	case reflect.Slice, reflect.Array:
		item, err := walkType(t.Elem())
		if err != nil {
			return Schema{}, err
		}
		return Schema{Kind: KindArray, Items: &item}, nil
	case reflect.Struct:
		if t == timeType {
			return Schema{Kind: KindString, Description: "RFC 3339 timestamp"}, nil
		}
		props, err := structProperties(t)
		if err != nil {
			return Schema{}, err
		}
		return Schema{Kind: KindObject, Properties: props}, nil
	default:
		return Schema{}, fmt.Errorf("extract: unsupported type %s", t)
	}
}

func structProperties(t reflect.Type) ([]Property, error) {
	var props []Property
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("json") == "" {
			inner, err := structProperties(f.Type)
			if err != nil {
				return nil, err
			}
			props = append(props, inner...)
			continue
		}

		name := f.Name
		optional := false
		if tag := f.Tag.Get("json"); tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					optional = true
				}
			}
		}

		fs, err := walkType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if f.Type.Kind() == reflect.Pointer {
			optional = true
		}
		if d := f.Tag.Get("desc"); d != "" {
			fs.Description = d
		}
		if e := f.Tag.Get("enum"); e != "" {
			if fs.Kind != KindString {
				return nil, fmt.Errorf("field %s: enum tag requires a string type", f.Name)
			}
			fs.Enum = strings.Split(e, ",")
		}

		props = append(props, Property{Name: name, Optional: optional, Schema: fs})
	}
	return props, nil
}

// JSONSchema renders the schema as a JSON Schema object, the dialect every
// supported vendor accepts for tool parameters and structured output.
func (s Schema) JSONSchema() json.RawMessage {
	b, err := json.Marshal(s.jsonSchemaValue())
	if err != nil {
		// Only map/slice/string values are marshaled; this cannot fail.
		panic(err)
	}
	return b
}

func (s Schema) jsonSchemaValue() map[string]any {
	m := make(map[string]any)
	if s.Nullable {
		m["type"] = []string{string(s.Kind), "null"}
	} else {
		m["type"] = string(s.Kind)
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	switch s.Kind {
	case KindObject:
		props := make(map[string]any, len(s.Properties))
		required := make([]string, 0, len(s.Properties))
		for _, p := range s.Properties {
			props[p.Name] = p.Schema.jsonSchemaValue()
			if !p.Optional {
				required = append(required, p.Name)
			}
		}
		m["properties"] = props
		if len(required) > 0 {
			m["required"] = required
		}
		m["additionalProperties"] = false
	case KindArray:
		if s.Items != nil {
			m["items"] = s.Items.jsonSchemaValue()
		}
	}
	return m
}

// PayloadName returns the vendor-facing name for this schema.
func (s Schema) PayloadName() string {
	if s.Name != "" {
		return s.Name
	}
	return "output"
}
