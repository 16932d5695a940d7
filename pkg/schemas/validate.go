// Package schemas validates classifier responses against embedded JSON Schemas.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed batch_mapping.schema.json
var batchMappingSchema string

//go:embed taxonomy.schema.json
var taxonomySchema string

// Schema names accepted by Validate.
const (
	BatchMapping = "batch_mapping"
	Taxonomy     = "taxonomy"
)

var sources = map[string]string{
	BatchMapping: batchMappingSchema,
	Taxonomy:     taxonomySchema,
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError is a single failure at a field path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return fmt.Sprintf("%s response invalid: %s", ve.Schema, strings.Join(msgs, "; "))
}

func compile() {
	compiled = make(map[string]*gojsonschema.Schema, len(sources))
	for name, src := range sources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		compiled[name] = s
	}
}

// Validate checks a JSON document against the named schema.
func Validate(schema, document string) error {
	compileOnce.Do(compile)
	if compileErr != nil {
		return compileErr
	}
	s, ok := compiled[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("load %s document: %w", schema, err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Schema: schema, Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
