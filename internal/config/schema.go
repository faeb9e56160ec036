// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// compiled caches the compiled schema across validations. The zero
// value means "not compiled yet".
var compiled struct {
	mu     sync.Mutex
	schema *jschema.Schema
}

// GenerateSchema reflects the Config struct into a JSON Schema
// document. Property names follow the koanf/json tags, so the schema
// matches what a gatehouse.yaml file actually contains.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		// Inline all definitions so the emitted document stands alone.
		DoNotReference: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(GetSchemaID())
	schema.Title = "Gatehouse Configuration"
	schema.Description = "Schema for gatehouse.yaml configuration files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema document: %w", err)
	}
	return data, nil
}

// ValidateSchema validates YAML data against the configuration JSON
// Schema. It checks the shape of what is present; the file may be
// partial because Load layers it over defaults. Semantic constraints
// on the merged result belong to Config.Validate.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("config data is empty")
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	// The validator wants JSON-shaped values, so the YAML tree takes a
	// round trip through encoding/json.
	doc, err := jsonDocument(tree)
	if err != nil {
		return err
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func jsonDocument(tree any) (any, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("config is not representable as JSON: %w", err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("config is not representable as JSON: %w", err)
	}
	return doc, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	if compiled.schema != nil {
		return compiled.schema, nil
	}

	generated, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(generated))
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated schema: %w", err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to load schema resource: %w", err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	compiled.schema = sch
	return sch, nil
}

// ResetSchemaCache discards the compiled schema so the next validation
// recompiles it. Used by tests.
func ResetSchemaCache() {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	compiled.schema = nil
}

// GetSchemaID returns the schema $id embedded in generated documents.
func GetSchemaID() string {
	return "https://gatehouse.dev/schemas/config.schema.json"
}

// FormatSchemaError renders a validation error for operators, without
// the wrapping prefix ValidateSchema adds.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "schema validation failed: "); ok {
		return rest
	}
	return msg
}
