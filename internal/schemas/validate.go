// Package schemas embeds the JSON Schemas that gate every collaborator
// response before it enters the pipeline.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed *.schema.json
var schemaFiles embed.FS

// Schema names accepted by ValidateName.
const (
	Assessment    = "assessment"
	Extraction    = "extraction"
	NormalizedDoc = "normalized_doc"
	Analysis      = "analysis"
	FastResult    = "fast_result"
)

var (
	cache   = make(map[string]*gojsonschema.Schema)
	cacheMu sync.RWMutex
)

func load(name string) (*gojsonschema.Schema, error) {
	cacheMu.RLock()
	s, ok := cache[name]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	data, err := schemaFiles.ReadFile(name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	s, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", name, err)
	}

	cacheMu.Lock()
	cache[name] = s
	cacheMu.Unlock()
	return s, nil
}

// ValidationError carries the per-field findings of a failed validation.
type ValidationError struct {
	Schema string
	Fields []FieldError
}

// FieldError is a single finding at a specific field path.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "document violates %s schema:\n", e.Schema)
	for i, f := range e.Fields {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, f.Field, f.Message)
	}
	return sb.String()
}

// ValidateName validates JSON content against the named embedded schema.
func ValidateName(name, jsonContent string) error {
	schema, err := load(name)
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(jsonContent))
	if err != nil {
		return fmt.Errorf("failed to validate against %s schema: %w", name, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Schema: name, Fields: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Fields = append(verr.Fields, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}
