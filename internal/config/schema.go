package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON Schema config files must satisfy. It checks shapes and
// enums; cross-field rules live in Validator.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "data_dir": {"type": "string"},
    "discord": {
      "type": "object",
      "properties": {
        "token": {"type": "string"},
        "prefix": {"type": "string", "minLength": 1},
        "category_name": {"type": "string", "minLength": 1},
        "name_pool": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1},
        "max_message_length": {"type": "integer", "minimum": 1, "maximum": 2000},
        "usage_notice_seconds": {"type": "integer", "minimum": 0}
      }
    },
    "ai": {
      "type": "object",
      "properties": {
        "strategy": {"enum": ["echo", "direct", "conversation"]},
        "provider": {"enum": ["gemini", "openai", "anthropic"]},
        "api_key": {"type": "string"},
        "base_url": {"type": "string", "pattern": "^(https?://.+)?$"},
        "model": {"type": "string"},
        "temperature": {"type": "number", "minimum": 0, "maximum": 2},
        "max_tokens": {"type": "integer", "minimum": 0},
        "max_retries": {"type": "integer", "minimum": 0},
        "timeout_seconds": {"type": "integer", "minimum": 0},
        "enable_search": {"type": "boolean"},
        "history_limit": {"type": "integer", "minimum": 0},
        "prompt_file": {"type": "string"}
      }
    },
    "sessions": {
      "type": "object",
      "properties": {
        "idle_timeout_minutes": {"type": "integer", "minimum": 0},
        "sweep_schedule": {"type": "string"},
        "transcript_dir": {"type": "string"},
        "archive_on_close": {"type": "boolean"},
        "archive_retention_days": {"type": "integer", "minimum": 0}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "audit_file": {"type": "string"},
        "max_size": {"type": "integer", "minimum": 0},
        "max_age": {"type": "integer", "minimum": 0},
        "compress": {"type": "boolean"},
        "redaction": {"type": "boolean"}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "addr": {"type": "string"}
      }
    },
    "tracing": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "sample_ratio": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// ValidateSchema checks raw config JSON against Schema.
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}
