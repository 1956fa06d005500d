package config

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// configSchema rejects unknown top-level and per-section keys (spec.md §6:
// "Unknown keys are rejected on validation"). It intentionally does not
// attempt to fully enumerate every backend-op variant's fields through
// JSON Schema's oneOf -- that duplicates the Go-side tagged-union decoding
// for no practical gain -- it catches the common case of a stray/misspelled
// top-level or client/route key before the YAML even reaches the decoder.
const configSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "clients": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "type": {"enum": ["http", "postgres", "mysql", "sqlite", "mongodb", "redis"]},
          "base_url": {"type": "string"},
          "backends": {"type": "array"},
          "load_balance": {"type": "string"},
          "headers": {"type": "object"},
          "min_connections": {"type": "integer"},
          "max_connections": {"type": "integer"},
          "timeout": {"type": "integer"},
          "retry": {"type": "object"},
          "circuit_breaker": {"type": "object"},
          "connection_string": {"type": "string"},
          "database_path": {"type": "string"},
          "database": {"type": "string"}
        }
      }
    },
    "routes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["method", "path", "subrequests"],
        "additionalProperties": false,
        "properties": {
          "method": {"type": "string"},
          "path": {"type": "string"},
          "subrequests": {"type": "array"},
          "execution_mode": {"enum": ["parallel", "sequential"]},
          "response_transform": {"type": "object"},
          "traffic_split": {"type": "object"},
          "traffic_mirror": {"type": "object"}
        }
      }
    },
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen": {"type": "string"},
        "timeout": {"type": "integer"},
        "max_body_size": {"type": "integer"},
        "cors": {"type": "object"},
        "logging": {"type": "object"},
        "rate_limit": {"type": "object"},
        "security": {"type": "object"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchemaJSON)

// ValidateSchema parses raw (already env-interpolated) YAML config text and
// validates its shape against configSchemaJSON, failing on unknown
// top-level/client/route keys.
func ValidateSchema(raw []byte) error {
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("config: invalid yaml: %w", err)
	}
	asJSON := yamlToJSONCompatible(generic)

	documentLoader := gojsonschema.NewGoLoader(asJSON)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("config: schema validation error: %w", err)
	}
	if !result.Valid() {
		msg := "config: schema violations:"
		for _, e := range result.Errors() {
			msg += "\n  - " + e.String()
		}
		return errors.New(msg)
	}
	return nil
}

// yamlToJSONCompatible recursively converts map[interface{}]interface{}
// (produced by some YAML decoders) into map[string]interface{} so
// gojsonschema (which expects JSON-shaped Go values) can walk it.
func yamlToJSONCompatible(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = yamlToJSONCompatible(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[fmt.Sprintf("%v", k)] = yamlToJSONCompatible(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = yamlToJSONCompatible(val)
		}
		return out
	default:
		return v
	}
}
