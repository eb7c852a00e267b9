// Package schema generates JSON Schema documents from Go types.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/warden-dev/warden/internal/domain/manifest"
)

// ManifestID is the $id of the manifest schema.
const ManifestID = "https://warden.dev/schemas/manifest.json"

// Generate reflects v into an indented Draft 2020-12 schema. Only fields
// tagged jsonschema:"required" are required.
func Generate(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(v)
	return marshal(schema)
}

// Manifest returns the schema for plugin manifests.
func Manifest() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&manifest.Manifest{})
	schema.ID = ManifestID
	schema.Title = "warden plugin manifest"
	return marshal(schema)
}

func marshal(schema *jsonschema.Schema) ([]byte, error) {
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
