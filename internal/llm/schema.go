package llm

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/ppiankov/feedlens/internal/model"
)

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

var (
	insightSchemaOnce sync.Once
	insightSchema     json.RawMessage
	insightSchemaErr  error
)

// InsightSchema returns the JSON schema of model.InsightReport in the strict
// form accepted by OpenAI structured outputs
func InsightSchema() (json.RawMessage, error) {
	insightSchemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema := reflector.Reflect(&model.InsightReport{})

		b, err := schema.MarshalJSON()
		if err != nil {
			insightSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			insightSchemaErr = fmt.Errorf("decode schema: %w", err)
			return
		}
		delete(m, "$schema")
		delete(m, "$id")
		ensureStrict(m)

		insightSchema, insightSchemaErr = json.Marshal(m)
	})
	return insightSchema, insightSchemaErr
}

// ensureStrict marks every object closed with all properties required
func ensureStrict(schema map[string]any) {
	if t, ok := schema[typeKey].(string); ok && t == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]any); ok {
			required := make([]string, 0, len(properties))
			for name := range properties {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema[requiredKey] = required
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]any); ok {
		for _, prop := range properties {
			if m, ok := prop.(map[string]any); ok {
				ensureStrict(m)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]any); ok {
		ensureStrict(items)
	}
}
