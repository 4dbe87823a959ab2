package remote

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks a raw payload before it is decoded and cached.
type Validator interface {
	// Validate returns an error when data is not an acceptable payload.
	Validate(data []byte) error
}

// SchemaValidator validates payloads against a JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the JSON Schema at path.
func NewSchemaValidator(path string) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", path, err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks data against the schema.
func (v *SchemaValidator) Validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("payload cannot be empty")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return v.schema.Validate(inst)
}
