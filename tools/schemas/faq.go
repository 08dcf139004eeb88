package schemas

// FAQSchemas returns the schema for the hotel policy FAQ tool.
func FAQSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"faq_tool": {
			Description: "Answer frequently asked questions about hotel policies: refunds, loyalty program, check-in times, pets, breakfast.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "The user's question",
					},
				},
				"required": []string{"question"},
			},
		},
	}
}
