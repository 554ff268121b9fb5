package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/crtx-sg/iotix/pkg/ierr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// deviceModelSchema is the structural envelope a registered DeviceModel must
// satisfy, beyond the field invariants Validate already enforces. Kept
// intentionally permissive: Validate is the source of truth for semantics,
// this schema only catches shape mistakes (wrong types, unknown generator
// kinds) early and with a field-path-annotated error.
const deviceModelSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "type", "protocol", "connection"],
  "properties": {
    "id": {"type": "string", "pattern": "^[a-z][a-z0-9-]*$"},
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "type": {"enum": ["sensor", "gateway", "actuator", "custom", "proxy"]},
    "protocol": {"enum": ["mqtt", "coap", "http"]},
    "connection": {"type": "object"},
    "telemetry": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "dataType", "generator", "intervalMs"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "dataType": {"enum": ["number", "integer", "boolean", "string", "binary"]},
          "unit": {"type": "string"},
          "intervalMs": {"type": "integer", "minimum": 1},
          "generator": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": {"enum": ["random", "sequence", "constant", "replay", "custom"]}
            }
          }
        }
      }
    },
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	compileOnce   sync.Once
	compiledModel *jsonschema.Schema
	compileErr    error
)

func compileDeviceModelSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("device-model.json", strings.NewReader(deviceModelSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledModel, compileErr = compiler.Compile("device-model.json")
	})
	return compiledModel, compileErr
}

// ValidateSchema runs the DeviceModel's JSON-Schema structural check
// (SPEC_FULL.md §4.1, RegisterModel). It takes the raw decoded payload
// rather than the typed DeviceModel so it can flag shape errors (wrong
// JSON types, unknown enum values) that would otherwise be silently
// coerced away by encoding/json before Validate ever runs.
func ValidateSchema(raw map[string]interface{}) error {
	schema, err := compileDeviceModelSchema()
	if err != nil {
		return fmt.Errorf("compile device model schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return firstSchemaError(ve)
		}
		return ierr.Validationf("", err.Error())
	}
	return nil
}

// firstSchemaError walks a jsonschema.ValidationError's cause tree (the
// library reports failures as a nested tree, one node per failed
// subschema) and returns the first leaf as a field-annotated
// *ierr.ValidationError.
func firstSchemaError(err *jsonschema.ValidationError) error {
	if len(err.Causes) == 0 {
		return ierr.Validationf(fieldFromInstanceLocation(err.InstanceLocation), err.Message)
	}
	return firstSchemaError(err.Causes[0])
}

func fieldFromInstanceLocation(path string) string {
	path = strings.TrimPrefix(path, "/")
	return strings.ReplaceAll(path, "/", ".")
}

// DecodeForSchema round-trips a DeviceModel through JSON so ValidateSchema
// sees the same shape a REST caller would have posted.
func DecodeForSchema(m *DeviceModel) (map[string]interface{}, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
