package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["documents"],
  "properties": {
    "documents": {
      "type": "array",
      "items": {"$ref": "#/definitions/document"}
    }
  },
  "definitions": {
    "text": {"type": ["string", "null"]},
    "amount": {
      "anyOf": [
        {"type": "number"},
        {"type": "string", "pattern": "^\\s*(-?[0-9]+([.,][0-9]+)?)?\\s*$"},
        {"type": "null"}
      ]
    },
    "line": {
      "type": "object",
      "properties": {
        "code": {"$ref": "#/definitions/text"},
        "description": {"$ref": "#/definitions/text"},
        "quantity": {"$ref": "#/definitions/amount"},
        "unit_price": {"$ref": "#/definitions/amount"}
      }
    },
    "document": {
      "type": "object",
      "properties": {
        "filename": {"$ref": "#/definitions/text"},
        "party_name": {"$ref": "#/definitions/text"},
        "tax_id": {"$ref": "#/definitions/text"},
        "postal_code": {"$ref": "#/definitions/text"},
        "gross": {"$ref": "#/definitions/amount"},
        "net": {"$ref": "#/definitions/amount"},
        "tax": {"$ref": "#/definitions/amount"},
        "currency": {"$ref": "#/definitions/text"},
        "issue_date": {"$ref": "#/definitions/text"},
        "reference": {"$ref": "#/definitions/text"},
        "preview": {"$ref": "#/definitions/text"},
        "lines": {
          "anyOf": [
            {"type": "array", "items": {"$ref": "#/definitions/line"}},
            {"type": "null"}
          ]
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", strings.NewReader(responseSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("extraction.json")
	})
	return compiledSchema, schemaErr
}

// ValidateResponse checks a raw backend response body against the response schema.
func ValidateResponse(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
