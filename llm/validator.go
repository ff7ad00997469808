package llm

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sammcj/mcpagent/types"
)

// Validator checks tool-call arguments against the schemas advertised by the tool server
type Validator struct {
	schemas    map[string]*jsonschema.Resolved
	schemaErrs map[string]error
}

// NewValidator resolves the schema of every tool once. A tool whose schema
// cannot be resolved stays callable but its arguments are not checked; see
// SchemaErrors.
func NewValidator(tools []types.ToolDescriptor) *Validator {
	v := &Validator{
		schemas:    make(map[string]*jsonschema.Resolved, len(tools)),
		schemaErrs: make(map[string]error),
	}
	for _, tool := range tools {
		resolved, err := resolveSchema(tool.Parameters)
		if err != nil {
			v.schemaErrs[tool.Name] = err
		}
		v.schemas[tool.Name] = resolved
	}
	return v
}

func resolveSchema(params map[string]any) (*jsonschema.Resolved, error) {
	if len(params) == 0 {
		params = map[string]any{"type": "object"}
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	return resolved, nil
}

// Has reports whether the named tool is known
func (v *Validator) Has(name string) bool {
	_, ok := v.schemas[name]
	return ok
}

// SchemaErrors returns the tools whose schemas could not be resolved
func (v *Validator) SchemaErrors() map[string]error {
	return v.schemaErrs
}

// ValidateCall validates decoded arguments for the named tool
func (v *Validator) ValidateCall(name string, args map[string]any) error {
	resolved, ok := v.schemas[name]
	if !ok {
		return &types.ToolError{Tool: name, Kind: types.ErrArgument, Message: "unknown tool"}
	}
	if resolved == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := resolved.Validate(args); err != nil {
		return &types.ToolError{Tool: name, Kind: types.ErrArgument, Message: "invalid arguments", Err: err}
	}
	return nil
}
