package toolloop

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema derives a JSON schema for a tool's argument type from its
// Go struct shape, for tool definitions handed to a provider.
func GenerateSchema(v any) ([]byte, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(v)
	return json.Marshal(schema)
}

var schemaCache sync.Map

func compileSchema(schemaJSON []byte) (*jsonschemavalidate.Schema, error) {
	key := string(schemaJSON)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschemavalidate.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschemavalidate.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateArgs validates a tool call's raw JSON argument payload against
// schemaJSON before it is dispatched. A tool call whose arguments fail
// validation is never executed — the loop reports the validation error
// back to the provider as the tool result instead.
func ValidateArgs(schemaJSON, argsJSON []byte) error {
	schema, err := compileSchema(schemaJSON)
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(argsJSON, &decoded); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool arguments invalid: %w", err)
	}
	return nil
}
