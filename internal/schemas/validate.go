// Package schemas validates model JSON output against embedded JSON
// Schemas. Any violation demotes the item to skipped rather than failing
// the phase.
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

// Embedded schema file names.
const (
	SkimResult       = "skim_result.schema.json"
	GeneratedContent = "generated_content.schema.json"
)

var (
	loaded   = make(map[string]gojsonschema.JSONLoader)
	loadedMu sync.Mutex
)

func loader(name string) (gojsonschema.JSONLoader, error) {
	loadedMu.Lock()
	defer loadedMu.Unlock()
	if l, ok := loaded[name]; ok {
		return l, nil
	}
	data, err := schemaFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	l := gojsonschema.NewStringLoader(string(data))
	loaded[name] = l
	return l, nil
}

// ValidationError reports where a model payload violated the schema.
type ValidationError struct {
	Schema string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload violates %s: %s", e.Schema, strings.Join(e.Errors, "; "))
}

// Validate checks a JSON document string against the named embedded schema.
func Validate(schemaName, jsonContent string) error {
	schemaLoader, err := loader(schemaName)
	if err != nil {
		return err
	}
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate against %s: %w", schemaName, err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Schema: schemaName}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return ve
}
