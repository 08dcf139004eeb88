package schemas

// BookingSchemas returns schemas for booking management tools.
func BookingSchemas() map[string]ToolSchema {
	bookingID := map[string]any{
		"type":        "string",
		"description": "The numeric booking ID, e.g. \"3\"",
	}
	return map[string]ToolSchema{
		"lookup_booking": {
			Description: "Look up existing booking details by booking ID.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"booking_id": bookingID,
				},
				"required": []string{"booking_id"},
			},
		},
		"create_booking": {
			Description: "Create a new hotel reservation. Collect hotel name, city, country, check-in and check-out dates, and price before calling.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"hotel_name":    map[string]any{"type": "string", "description": "Name of the hotel"},
					"hotel_city":    map[string]any{"type": "string", "description": "City of the hotel"},
					"hotel_country": map[string]any{"type": "string", "description": "Country of the hotel"},
					"checkin_date":  map[string]any{"type": "string", "description": "Check-in date, YYYY-MM-DD"},
					"checkout_date": map[string]any{"type": "string", "description": "Check-out date, YYYY-MM-DD"},
					"booking_price": map[string]any{"type": "number", "description": "Total price in euros"},
					"is_paid":       map[string]any{"type": "boolean", "description": "Whether the booking is already paid (default false)"},
				},
				"required": []string{"hotel_name", "hotel_city", "hotel_country", "checkin_date", "checkout_date", "booking_price"},
			},
		},
		"update_payment_status": {
			Description: "Update the payment status of an existing booking.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"booking_id": bookingID,
					"is_paid": map[string]any{
						"type":        "boolean",
						"description": "New payment status (default true)",
					},
				},
				"required": []string{"booking_id"},
			},
		},
	}
}
