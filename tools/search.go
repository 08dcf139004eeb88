package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultSearchEndpoint is the SerpAPI JSON endpoint.
	DefaultSearchEndpoint = "https://serpapi.com/search.json"
	searchResultLimit     = 5
	defaultSearchTimeout  = 15 * time.Second
)

// SearchClient runs Google searches through SerpAPI.
type SearchClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewSearchClient creates a SearchClient. An empty endpoint uses SerpAPI.
func NewSearchClient(apiKey, endpoint string) *SearchClient {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	return &SearchClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultSearchTimeout},
	}
}

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search returns formatted results for query. Failures are reported in the
// returned text so the model can relay them.
func (c *SearchClient) Search(ctx context.Context, query string) string {
	if c.apiKey == "" {
		return "Error: SERPAPI_API_KEY not found in environment variables."
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("num", fmt.Sprint(searchResultLimit))
	params.Set("gl", "us")
	params.Set("hl", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}
	defer resp.Body.Close()

	var data serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}
	if data.Error != "" {
		return fmt.Sprintf("Search API error: %s", data.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Search API error: %s", resp.Status)
	}
	if len(data.OrganicResults) == 0 {
		return "No search results found for your query."
	}

	var out []string
	for i, r := range data.OrganicResults {
		if i == searchResultLimit {
			break
		}
		title, link := r.Title, r.Link
		if title == "" {
			title = "No title"
		}
		if link == "" {
			link = "No link"
		}
		out = append(out, fmt.Sprintf("%d. **%s**\n   %s\n   🔗 %s", i+1, title, r.Snippet, link))
	}
	return strings.Join(out, "\n\n")
}

// HotelQuery builds the search query for a hotel search.
func HotelQuery(location, checkin, checkout, guests string) string {
	q := "hotels in " + location
	if checkin != "" && checkout != "" {
		q += fmt.Sprintf(" %s to %s", checkin, checkout)
	}
	if guests != "" && guests != "2" {
		q += fmt.Sprintf(" for %s guests", guests)
	}
	return q
}

// FlightQuery builds the search query for a flight search.
func FlightQuery(origin, destination, date, passengers string) string {
	q := fmt.Sprintf("flights from %s to %s", origin, destination)
	if date != "" {
		q += " on " + date
	}
	if passengers != "" && passengers != "1" {
		q += fmt.Sprintf(" for %s passengers", passengers)
	}
	return q
}

// RegisterSearchTools registers web, hotel and flight search.
func (r *Registry) RegisterSearchTools(client *SearchClient) {
	r.Register("search_travel_info", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		q := a.str("query")
		if q == "" {
			return "Please provide a search query.", nil
		}
		return client.Search(ctx, q), nil
	})

	r.Register("search_hotels", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		if a.str("location") == "" {
			return "Please provide a location to search for hotels.", nil
		}
		return client.Search(ctx, HotelQuery(a.str("location"), a.str("checkin"), a.str("checkout"), a.str("guests"))), nil
	})

	r.Register("search_flights", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		if a.str("origin") == "" || a.str("destination") == "" {
			return "Please provide both origin and destination to search for flights.", nil
		}
		return client.Search(ctx, FlightQuery(a.str("origin"), a.str("destination"), a.str("date"), a.str("passengers"))), nil
	})
}
