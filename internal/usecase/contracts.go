package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"document-intelligence/internal/domain"
)

const classificationSchemaJSON = `{
  "type": "object",
  "required": ["document_type", "topics"],
  "properties": {
    "document_type": {"type": "string"},
    "topics": {"type": "array", "minItems": 1, "maxItems": 20, "items": {"type": "string"}},
    "vendor": {"type": "string"},
    "vendor_candidates": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "evidence_terms": {"type": "array", "items": {"type": "string"}}
  }
}`

const sectionSchemaJSON = `{
  "type": "object",
  "required": ["title", "explanation"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "explanation": {"type": "string", "minLength": 1},
    "bullets": {"type": "array", "items": {"type": "string"}},
    "diagrams": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source"],
        "properties": {"kind": {"type": "string"}, "source": {"type": "string"}}
      }
    },
    "equations": {"type": "array", "items": {"type": "string"}},
    "tables": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "caption": {"type": "string"},
          "header": {"type": "array", "items": {"type": "string"}},
          "rows": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}}
        }
      }
    },
    "citations": {
      "type": "object",
      "properties": {
        "chunkIds": {"type": "array", "items": {"type": "string"}},
        "pages": {"type": "array", "items": {"type": "integer"}}
      }
    }
  }
}`

var (
	classificationSchema = jsonschema.MustCompileString("classification.json", classificationSchemaJSON)
	sectionSchema        = jsonschema.MustCompileString("section.json", sectionSchemaJSON)
)

// stripFences removes a markdown code fence wrapped around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// decodeModelJSON validates a model reply against schema and decodes it
// into out. Anything that is not schema-valid JSON is ErrInvalidJSON.
func decodeModelJSON(reply string, schema *jsonschema.Schema, out any) error {
	body := stripFences(reply)
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
	}
	return nil
}
