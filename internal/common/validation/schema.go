// Package validation checks persisted documents against JSON schemas.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	apperrors "nlu-memory-assistant/internal/common/errors"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document.
func Compile(schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// Validate checks a raw JSON document. A non-nil error means the document
// could not be read as JSON at all.
func (s *Schema) Validate(document []byte) (*ValidationResult, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

// ValidateGo checks an in-memory value (map, struct) against the schema.
func (s *Schema) ValidateGo(document interface{}) (*ValidationResult, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

func toResult(result *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

// Summary joins all errors into one line.
func (r *ValidationResult) Summary() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// LongTermMemorySchema describes the persisted per-user memory document.
const LongTermMemorySchema = `{
  "type": "object",
  "required": ["user_id", "nlu_analyses"],
  "properties": {
    "user_id": {"type": "string", "minLength": 1},
    "summary": {"type": "string"},
    "context": {"type": ["object", "null"]},
    "nlu_analyses": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["content", "intents"],
        "properties": {
          "content": {"type": "string"},
          "intents": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["name", "confidence"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "confidence": {"type": "number", "minimum": 0, "maximum": 1},
                "priority_score": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "entities": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["type", "value", "confidence"],
              "properties": {
                "confidence": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "languages": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["code", "confidence"],
              "properties": {
                "code": {"type": "string", "pattern": "^[A-Z]{3}$"},
                "confidence": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "sentiment": {
            "type": ["object", "null"],
            "properties": {
              "label": {"enum": ["positive", "negative", "neutral"]}
            }
          }
        }
      }
    }
  }
}`

var (
	longTermOnce   sync.Once
	longTermSchema *Schema
	longTermErr    error
)

// ValidateLongTermMemory validates a serialized long-term memory document and
// returns a DOCUMENT_VALIDATION_FAILED StandardError when it does not conform.
func ValidateLongTermMemory(document []byte) error {
	longTermOnce.Do(func() {
		longTermSchema, longTermErr = Compile(LongTermMemorySchema)
	})
	if longTermErr != nil {
		return longTermErr
	}

	result, err := longTermSchema.Validate(document)
	if err != nil {
		return apperrors.NewDocumentValidationError(err.Error())
	}
	if !result.Valid {
		return apperrors.NewDocumentValidationError(result.Summary())
	}
	return nil
}
