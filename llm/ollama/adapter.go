package ollama

import (
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/ollama/ollama/api"
)

// validateAndConvertToolArguments checks required parameters and coerces
// argument values to the types the tool schema declares. Small local models
// often send numbers as strings.
func validateAndConvertToolArguments(toolName string, args map[string]interface{}, schema llm.ToolSchema) (api.ToolCallFunctionArguments, error) {
	for _, reqParam := range schema.Required {
		val, exists := args[reqParam]
		if !exists {
			providedKeys := make([]string, 0, len(args))
			for k := range args {
				providedKeys = append(providedKeys, k)
			}
			return nil, fmt.Errorf("missing required parameter '%s' for tool '%s' (provided: %v)", reqParam, toolName, providedKeys)
		}
		if isEmptyValue(val) {
			return nil, fmt.Errorf("required parameter '%s' for tool '%s' cannot be empty", reqParam, toolName)
		}
	}

	result := make(api.ToolCallFunctionArguments)
	for k, v := range args {
		propSchema, exists := schema.Properties[k]
		if !exists {
			result[k] = v
			continue
		}
		converted, err := convertValueToType(v, getPropertyType(propSchema), k)
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameter '%s' for tool '%s': %w", k, toolName, err)
		}
		result[k] = converted
	}
	return result, nil
}

// isEmptyValue checks if a value is considered empty (nil, empty string, empty array, etc.)
func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}

	switch val := v.(type) {
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}

	return false
}

// getPropertyType extracts the type from a property schema definition
func getPropertyType(propSchema interface{}) string {
	if propMap, ok := propSchema.(map[string]interface{}); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return "string" // Default type
}

// convertValueToType converts a value to the specified type
func convertValueToType(v interface{}, targetType, paramName string) (interface{}, error) {
	switch targetType {
	case "integer", "int":
		return convertToInteger(v, paramName)
	case "number", "float":
		return convertToNumber(v, paramName)
	case "boolean", "bool":
		return convertToBoolean(v, paramName)
	case "string":
		return convertToString(v), nil
	default:
		return v, nil
	}
}

// convertToInteger converts a value to an integer
func convertToInteger(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err != nil {
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to integer", paramName, val)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to integer", paramName, v)
	}
}

// convertToNumber converts a value to a float64
func convertToNumber(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%f", &f); err != nil {
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to number", paramName, val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to number", paramName, v)
	}
}

// convertToBoolean converts a value to a boolean
func convertToBoolean(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		default:
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to boolean", paramName, val)
		}
	case int:
		return val != 0, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to boolean", paramName, v)
	}
}

// convertToString converts a value to a string
func convertToString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// ToOllamaMessages converts llm.Messages to Ollama chat messages. Tool
// arguments are validated against the matching spec when one is given.
func ToOllamaMessages(msgs []llm.Message, toolSpecs []llm.ToolSpec) ([]api.Message, error) {
	toolSpecMap := make(map[string]llm.ToolSpec, len(toolSpecs))
	for _, spec := range toolSpecs {
		toolSpecMap[spec.Name] = spec
	}

	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := ToOllamaMessage(msg, toolSpecMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToOllamaMessage converts a single llm.Message. Tool results are emitted as
// separate "tool" role messages ahead of any remaining text.
func ToOllamaMessage(msg llm.Message, toolSpecMap map[string]llm.ToolSpec) ([]api.Message, error) {
	var (
		text      []string
		toolCalls []api.ToolCall
		out       []api.Message
	)

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			var args api.ToolCallFunctionArguments
			if spec, ok := toolSpecMap[block.ToolUse.Name]; ok {
				converted, err := validateAndConvertToolArguments(block.ToolUse.Name, block.ToolUse.Input, spec.Schema)
				if err != nil {
					return nil, fmt.Errorf("tool argument validation failed: %w", err)
				}
				args = converted
			} else {
				args = make(api.ToolCallFunctionArguments, len(block.ToolUse.Input))
				for k, v := range block.ToolUse.Input {
					args[k] = v
				}
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			out = append(out, api.Message{
				Role:    "tool",
				Content: block.ToolResult.Content,
			})
		}
	}

	if len(out) > 0 && len(text) == 0 && len(toolCalls) == 0 {
		return out, nil
	}
	return append(out, api.Message{
		Role:      string(msg.Role),
		Content:   strings.Join(text, "\n"),
		ToolCalls: toolCalls,
	}), nil
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
// Ollama uses a JSON schema format for function definitions.
func ToOllamaTools(specs []llm.ToolSpec) ([]api.Tool, error) {
	result := make([]api.Tool, 0, len(specs))
	for _, spec := range specs {
		tool, err := ToOllamaTool(&spec)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool %s: %w", spec.Name, err)
		}
		result = append(result, tool)
	}
	return result, nil
}

// ToOllamaTool converts a single llm.ToolSpec to Ollama Tool format.
func ToOllamaTool(spec *llm.ToolSpec) (api.Tool, error) {
	properties := make(map[string]api.ToolProperty)
	if spec.Schema.Properties != nil {
		for k, v := range spec.Schema.Properties {
			if propMap, ok := v.(map[string]interface{}); ok {
				toolProp := api.ToolProperty{}
				if propType, ok := propMap["type"].(string); ok {
					toolProp.Type = []string{propType}
				}
				if desc, ok := propMap["description"].(string); ok {
					toolProp.Description = desc
				}
				properties[k] = toolProp
			} else {
				properties[k] = api.ToolProperty{Type: []string{"string"}}
			}
		}
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	parameters := api.ToolFunctionParameters{
		Type:       schemaType,
		Properties: properties,
		Required:   spec.Schema.Required,
	}

	function := api.ToolFunction{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  parameters,
	}

	return api.Tool{
		Type:     "function",
		Function: function,
	}, nil
}

// FromOllamaToolCall converts an Ollama tool call to llm.ToolUseBlock. Ollama
// does not assign call ids, so the position in the response is used.
func FromOllamaToolCall(toolCall api.ToolCall, index int) *llm.ToolUseBlock {
	input := make(map[string]interface{}, len(toolCall.Function.Arguments))
	for k, v := range toolCall.Function.Arguments {
		input[k] = v
	}
	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, index),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}
