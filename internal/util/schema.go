package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema reflects a JSON schema object from a Go struct. Field names
// follow json tags; fields without omitempty are required. Descriptions come
// from `jsonschema:"description=..."` or `jsonschema_description` tags.
// Anything other than a struct or pointer to struct yields an empty object
// schema.
func CreateSchema(structType any) map[string]any {
	if !isStruct(structType) {
		return emptyObjectSchema()
	}

	r := &invopop.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: false,
	}

	raw, err := json.Marshal(r.Reflect(structType))
	if err != nil {
		return emptyObjectSchema()
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return emptyObjectSchema()
	}

	delete(schema, "$schema")
	delete(schema, "$id")

	if schema["type"] != "object" {
		return emptyObjectSchema()
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}

	return schema
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

func emptyObjectSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

var compiled sync.Map

// ValidateParameters validates params against a JSON schema. Compiled schemas
// are cached by their canonical JSON encoding.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	s, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// round-trip so Go numeric types validate like decoded JSON
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}

	if err := s.Validate(decoded); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepestCause(ve)
			field := strings.TrimPrefix(leaf.InstanceLocation, "/")
			return &ValidationError{
				Field:   field,
				Value:   params[field],
				Message: leaf.Message,
			}
		}
		return err
	}

	return nil
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	key := string(raw)
	if cached, ok := compiled.Load(key); ok {
		if s, ok := cached.(*jsonschema.Schema); ok {
			return s, nil
		}
	}

	s, err := jsonschema.CompileString("parameters.schema.json", key)
	if err != nil {
		return nil, err
	}
	compiled.Store(key, s)

	return s, nil
}

func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
