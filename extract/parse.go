package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Reason string

const (
	ReasonMalformedJSON  Reason = "malformed_json"
	ReasonSchemaMismatch Reason = "schema_mismatch"
	ReasonMissingField   Reason = "missing_field"
)

// Error classifies why raw model output could not be parsed against a
// Schema. The dispatcher uses the classification to decide whether a
// corrective re-prompt is worthwhile.
type Error struct {
	Reason  Reason
	Path    string
	Message string
	Raw     []byte
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("extract: %s at %s: %s", e.Reason, e.Path, e.Message)
	}
	return fmt.Sprintf("extract: %s: %s", e.Reason, e.Message)
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Validate checks raw against the schema. Strict: unknown object keys,
// wrong primitive types and missing required fields are all classified
// failures, never panics.
func (s Schema) Validate(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Error{Reason: ReasonMalformedJSON, Message: "empty payload", Raw: raw}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &Error{Reason: ReasonMalformedJSON, Message: err.Error(), Raw: raw}
	}
	// Trailing garbage after the first value is malformed too.
	if dec.More() {
		return &Error{Reason: ReasonMalformedJSON, Message: "trailing data after JSON value", Raw: raw}
	}

	if verr := s.check(v, "$"); verr != nil {
		verr.Raw = raw
		return verr
	}
	return nil
}

func (s Schema) check(v any, path string) *Error {
	if v == nil {
		if s.Nullable {
			return nil
		}
		return &Error{Reason: ReasonSchemaMismatch, Path: path, Message: "unexpected null"}
	}

	switch s.Kind {
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "object", v)
		}
		byName := make(map[string]Property, len(s.Properties))
		for _, p := range s.Properties {
			byName[p.Name] = p
		}
		for key := range obj {
			if _, ok := byName[key]; !ok {
				return &Error{Reason: ReasonSchemaMismatch, Path: path + "." + key, Message: "unknown field"}
			}
		}
		for _, p := range s.Properties {
			val, present := obj[p.Name]
			if !present {
				if p.Optional {
					continue
				}
				return &Error{Reason: ReasonMissingField, Path: path + "." + p.Name, Message: "required field missing"}
			}
			if err := p.Schema.check(val, path+"."+p.Name); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return mismatch(path, "array", v)
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := s.Items.check(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case KindString:
		str, ok := v.(string)
		if !ok {
			return mismatch(path, "string", v)
		}
		if len(s.Enum) > 0 {
			for _, e := range s.Enum {
				if str == e {
					return nil
				}
			}
			return &Error{
				Reason:  ReasonSchemaMismatch,
				Path:    path,
				Message: fmt.Sprintf("value %q not in enum [%s]", str, strings.Join(s.Enum, ", ")),
			}
		}
		return nil

	case KindInteger:
		num, ok := v.(json.Number)
		if !ok {
			return mismatch(path, "integer", v)
		}
		if _, err := num.Int64(); err != nil {
			return &Error{Reason: ReasonSchemaMismatch, Path: path, Message: fmt.Sprintf("%s is not an integer", num)}
		}
		return nil

	case KindNumber:
		if _, ok := v.(json.Number); !ok {
			return mismatch(path, "number", v)
		}
		return nil

	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch(path, "boolean", v)
		}
		return nil

	default:
		return &Error{Reason: ReasonSchemaMismatch, Path: path, Message: fmt.Sprintf("unknown schema kind %q", s.Kind)}
	}
}

func mismatch(path, want string, got any) *Error {
	return &Error{
		Reason:  ReasonSchemaMismatch,
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %s", want, typeName(got)),
	}
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Unmarshal validates raw against the schema of T and decodes it.
// Failures are always a classified *Error.
func Unmarshal[T any](raw []byte) (T, error) {
	var out T
	s, err := SchemaFor[T]()
	if err != nil {
		return out, err
	}
	if err := s.Validate(raw); err != nil {
		return out, err
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &out); err != nil {
		// Validation passed but Go decoding did not (e.g. integer overflow).
		return out, &Error{Reason: ReasonSchemaMismatch, Message: err.Error(), Raw: raw}
	}
	return out, nil
}
