package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed operation.schema.json
var operationSchemaJSON string

var (
	operationSchemaOnce sync.Once
	operationSchema     *jsonschema.Schema
	operationSchemaErr  error
)

func compiledOperationSchema() (*jsonschema.Schema, error) {
	operationSchemaOnce.Do(func() {
		operationSchema, operationSchemaErr = jsonschema.CompileString("operation.schema.json", operationSchemaJSON)
	})
	return operationSchema, operationSchemaErr
}

// ValidateOperationJSON checks a wire operation against the embedded schema.
func ValidateOperationJSON(b []byte) error {
	s, err := compiledOperationSchema()
	if err != nil {
		return fmt.Errorf("operation schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// DecodeOperation validates and decodes a wire operation.
func DecodeOperation(b []byte) (Operation, error) {
	var op Operation
	if err := ValidateOperationJSON(b); err != nil {
		return op, err
	}
	if err := json.Unmarshal(b, &op); err != nil {
		return op, err
	}
	return op, nil
}
