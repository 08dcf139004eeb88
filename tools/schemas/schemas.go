// Package schemas contains the input schemas and descriptions of the travel
// assistant's tools. They are attached to the tool registry at startup and
// sent to the model with every chat request.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns all tool schemas from all categories.
func All() map[string]ToolSchema {
	schemas := make(map[string]ToolSchema)
	for name, schema := range BookingSchemas() {
		schemas[name] = schema
	}
	for name, schema := range SearchSchemas() {
		schemas[name] = schema
	}
	for name, schema := range FAQSchemas() {
		schemas[name] = schema
	}
	return schemas
}
