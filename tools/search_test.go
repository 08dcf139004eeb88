package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestHotelQuery(t *testing.T) {
	tests := []struct {
		location, in, out, guests string
		want                      string
	}{
		{"Lisbon", "", "", "2", "hotels in Lisbon"},
		{"Lisbon", "2025-06-01", "2025-06-05", "2", "hotels in Lisbon 2025-06-01 to 2025-06-05"},
		{"Lisbon", "2025-06-01", "", "4", "hotels in Lisbon for 4 guests"},
		{"Porto", "", "", "", "hotels in Porto"},
	}
	for _, tt := range tests {
		if got := HotelQuery(tt.location, tt.in, tt.out, tt.guests); got != tt.want {
			t.Errorf("HotelQuery = %q, want %q", got, tt.want)
		}
	}
}

func TestFlightQuery(t *testing.T) {
	if got := FlightQuery("Lisbon", "Paris", "", "1"); got != "flights from Lisbon to Paris" {
		t.Errorf("FlightQuery = %q", got)
	}
	if got := FlightQuery("Lisbon", "Paris", "2025-07-01", "3"); got != "flights from Lisbon to Paris on 2025-07-01 for 3 passengers" {
		t.Errorf("FlightQuery = %q", got)
	}
}

func TestSearch_FormatsResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("api_key") != "key" || r.URL.Query().Get("num") != "5" {
			t.Errorf("unexpected params: %v", r.URL.Query())
		}
		var results []string
		for i := 1; i <= 6; i++ {
			results = append(results, fmt.Sprintf(`{"title":"Hotel %d","link":"https://example.com/%d","snippet":"Nice place %d"}`, i, i, i))
		}
		fmt.Fprintf(w, `{"organic_results":[%s]}`, strings.Join(results, ","))
	}))
	defer srv.Close()

	reg := NewRegistry(zerolog.Nop(), nil)
	reg.RegisterSearchTools(NewSearchClient("key", srv.URL))

	got := call(t, reg, "search_hotels", map[string]any{"location": "Lisbon", "guests": "3"})
	if gotQuery != "hotels in Lisbon for 3 guests" {
		t.Errorf("query = %q", gotQuery)
	}
	entries := strings.Split(got, "\n\n")
	if len(entries) != 5 {
		t.Fatalf("expected 5 results, got %d", len(entries))
	}
	if entries[0] != "1. **Hotel 1**\n   Nice place 1\n   🔗 https://example.com/1" {
		t.Errorf("first entry = %q", entries[0])
	}
}

func TestSearch_Errors(t *testing.T) {
	if got := NewSearchClient("", "").Search(context.Background(), "q"); got != "Error: SERPAPI_API_KEY not found in environment variables." {
		t.Errorf("missing key = %q", got)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "broken":
			fmt.Fprint(w, `{"error":"Invalid API key."}`)
		default:
			fmt.Fprint(w, `{"organic_results":[]}`)
		}
	}))
	defer srv.Close()
	client := NewSearchClient("key", srv.URL)

	if got := client.Search(context.Background(), "broken"); got != "Search API error: Invalid API key." {
		t.Errorf("api error = %q", got)
	}
	if got := client.Search(context.Background(), "nothing"); got != "No search results found for your query." {
		t.Errorf("empty = %q", got)
	}
}

func TestSearchTools_RequireArguments(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.RegisterSearchTools(NewSearchClient("key", "http://127.0.0.1:0"))

	if got := call(t, reg, "search_flights", map[string]any{"origin": "Lisbon"}); !strings.Contains(got, "origin and destination") {
		t.Errorf("search_flights = %q", got)
	}
	if got := call(t, reg, "search_travel_info", map[string]any{}); got != "Please provide a search query." {
		t.Errorf("search_travel_info = %q", got)
	}
}
