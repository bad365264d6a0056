package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator validates API payloads against JSON schemas before any
// binding or state change. Schemas are compiled once at startup.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

const feedbackSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["user_id", "item_id", "feedback_type"],
	"properties": {
		"user_id": {"type": "string", "format": "uuid"},
		"item_id": {"type": "string", "format": "uuid"},
		"feedback_type": {
			"type": "string",
			"enum": ["like", "dislike", "rate", "love", "not_interested"]
		},
		"rating": {"type": "number", "minimum": 1, "maximum": 5},
		"context": {
			"type": "object",
			"properties": {
				"season": {
					"type": "string",
					"enum": ["spring", "summer", "autumn", "winter"]
				},
				"occasion": {
					"type": "string",
					"enum": ["daily", "office", "evening", "date", "sport", "formal"]
				}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

const quizSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["answers"],
	"properties": {
		"answers": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["question_id", "selected_trait_ids", "tier"],
				"properties": {
					"question_id": {"type": "string", "minLength": 1},
					"selected_trait_ids": {
						"type": "array",
						"items": {"type": "string", "minLength": 1},
						"minItems": 1
					},
					"tier": {
						"type": "string",
						"enum": ["primary", "secondary", "tertiary"]
					}
				},
				"additionalProperties": false
			}
		},
		"stated_audience_preference": {
			"type": "string",
			"enum": ["masculine", "feminine", "unisex"]
		}
	},
	"additionalProperties": false
}`

func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema)}

	sources := map[string]string{
		"feedback": feedbackSchema,
		"quiz":     quizSchema,
	}
	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return sv, nil
}

// ValidateFeedback validates a feedback submission payload.
func (sv *SchemaValidator) ValidateFeedback(data interface{}) *ValidationResult {
	return sv.validate("feedback", data)
}

// ValidateQuiz validates a quiz submission payload.
func (sv *SchemaValidator) ValidateQuiz(data interface{}) *ValidationResult {
	return sv.validate("quiz", data)
}

func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return invalid("schema", fmt.Sprintf("Schema '%s' not found", schemaName), "SCHEMA_NOT_FOUND")
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return invalid("data", fmt.Sprintf("Failed to marshal data to JSON: %v", err), "JSON_MARSHAL_ERROR")
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return invalid("validation", fmt.Sprintf("Validation error: %v", err), "VALIDATION_ERROR")
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}
	for _, err := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, ValidationError{
			Field:   err.Field(),
			Message: err.Description(),
			Code:    "VALIDATION_ERROR",
			Value:   err.Value(),
		})
	}
	return validationResult
}

func invalid(field, message, code string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

// ValidationResult is the outcome of validating one payload.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}
