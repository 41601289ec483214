package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// embeddedSchema constrains the config.json overlay (see Overlay).
const embeddedSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"strip_text": { "type": "boolean" },
		"force_decode": { "type": "boolean" }
	}
}`

// ValidateOverlay validates instance (a config.json document) against
// embeddedSchema.
func ValidateOverlay(instance []byte) error {
	sch, err := jsonschema.CompileString("overlay.schema.json", embeddedSchema)
	if err != nil {
		return fmt.Errorf("config: compile embedded schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: overlay is not valid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: overlay failed validation: %w", err)
	}
	return nil
}
