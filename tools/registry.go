package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/aschepis/backscratcher/travel/tools/schemas"
	"github.com/rs/zerolog"
)

// ToolHandler handles a tool call made on behalf of a session.
type ToolHandler func(ctx context.Context, sessionID string, args json.RawMessage) (any, error)

// Registry maps tool names to handlers and their schemas.
type Registry struct {
	handlers map[string]ToolHandler
	schemas  map[string]schemas.ToolSchema
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger, m *metrics.Metrics) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		handlers: make(map[string]ToolHandler),
		schemas:  make(map[string]schemas.ToolSchema),
		metrics:  m,
		logger:   logger,
	}
}

// Register registers a handler for a tool name. The schema is looked up in
// schemas.All; tools without one are callable but not advertised.
func (r *Registry) Register(name string, h ToolHandler) {
	r.logger.Debug().Str("name", name).Msg("Registering tool handler")
	r.handlers[name] = h
	if s, ok := schemas.All()[name]; ok {
		r.schemas[name] = s
	}
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns provider-neutral specs for every registered tool with a schema.
func (r *Registry) Specs() []llm.ToolSpec {
	var specs []llm.ToolSpec
	for _, name := range r.Names() {
		s, ok := r.schemas[name]
		if !ok {
			continue
		}
		specs = append(specs, toToolSpec(name, s))
	}
	return specs
}

func toToolSpec(name string, s schemas.ToolSchema) llm.ToolSpec {
	schema := llm.ToolSchema{
		Type:        "object",
		Properties:  map[string]interface{}{},
		ExtraFields: map[string]interface{}{},
	}
	for k, v := range s.Schema {
		switch k {
		case "type":
			if t, ok := v.(string); ok {
				schema.Type = t
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				schema.Properties = props
			}
		case "required":
			if req, ok := v.([]string); ok {
				schema.Required = req
			}
		default:
			schema.ExtraFields[k] = v
		}
	}
	return llm.ToolSpec{
		Name:        name,
		Description: s.Description,
		Schema:      schema,
	}
}

// Handle dispatches a tool call.
func (r *Registry) Handle(ctx context.Context, toolName, sessionID string, argsStr []byte) (any, error) {
	h, ok := r.handlers[toolName]
	if !ok {
		r.logger.Error().Str("tool", toolName).Msg("Unknown tool requested")
		r.metrics.IncToolCall(toolName, "unknown")
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}
	if len(argsStr) == 0 {
		argsStr = []byte("{}")
	}

	r.logger.Info().Str("tool", toolName).Str("session_id", sessionID).RawJSON("args", argsStr).Msg("Executing tool")

	result, err := h(ctx, sessionID, json.RawMessage(argsStr))
	if err != nil {
		r.logger.Warn().Str("tool", toolName).Str("session_id", sessionID).Err(err).Msg("Tool returned error")
		r.metrics.IncToolCall(toolName, "error")
		return nil, err
	}

	r.logger.Debug().Str("tool", toolName).Str("result", truncate(fmt.Sprint(result), 500)).Msg("Tool returned result")
	r.metrics.IncToolCall(toolName, "ok")
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}

// args is a loosely typed view of tool arguments. Models send numbers as
// strings and strings as numbers, so accessors normalize both.
type args map[string]any

func decodeArgs(raw json.RawMessage) (args, error) {
	a := args{}
	if len(raw) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	return a, nil
}

func (a args) str(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func (a args) boolean(key string, def bool) bool {
	switch t := a[key].(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	case float64:
		return t != 0
	}
	return def
}
