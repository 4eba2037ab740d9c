package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// RunTaskArgs are the arguments of the run_task tool.
type RunTaskArgs struct {
	Task string `json:"task" jsonschema_description:"Name or description of the jarvis task to run"`
}

// Definition is an OpenAI-style function tool definition.
type Definition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes one callable function.
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

func parameters(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(v)
	s.Version = ""
	return s
}

// Definitions lists the tools offered to the response backend.
func Definitions() []Definition {
	return []Definition{{
		Type: "function",
		Function: FunctionDefinition{
			Name:        RunTask,
			Description: "Run a jarvis task in the user's terminal and wait for it to finish.",
			Parameters:  parameters(&RunTaskArgs{}),
		},
	}}
}

// DefinitionsJSON returns Definitions encoded as a JSON array.
func DefinitionsJSON() (string, error) {
	b, err := json.Marshal(Definitions())
	if err != nil {
		return "", fmt.Errorf("encoding tool definitions: %w", err)
	}
	return string(b), nil
}
