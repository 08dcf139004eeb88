package schemas

// SearchSchemas returns schemas for web, hotel and flight search tools.
func SearchSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"search_travel_info": {
			Description: "Search the web for travel information: hotel reviews, attractions, travel tips, restaurants, local events and weather.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query to look up travel information",
					},
				},
				"required": []string{"query"},
			},
		},
		"search_hotels": {
			Description: "Search for hotels in a location with optional dates and guest count.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{"type": "string", "description": "The city or area to search"},
					"checkin":  map[string]any{"type": "string", "description": "Check-in date, YYYY-MM-DD (optional)"},
					"checkout": map[string]any{"type": "string", "description": "Check-out date, YYYY-MM-DD (optional)"},
					"guests":   map[string]any{"type": "string", "description": "Number of guests (default 2)"},
				},
				"required": []string{"location"},
			},
		},
		"search_flights": {
			Description: "Search for flights between two locations with optional date and passenger count.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"origin":      map[string]any{"type": "string", "description": "Departure city or airport"},
					"destination": map[string]any{"type": "string", "description": "Arrival city or airport"},
					"date":        map[string]any{"type": "string", "description": "Travel date, YYYY-MM-DD (optional)"},
					"passengers":  map[string]any{"type": "string", "description": "Number of passengers (default 1)"},
				},
				"required": []string{"origin", "destination"},
			},
		},
	}
}
