package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// freshness maps the tool's recency argument to Brave's freshness codes.
var freshness = map[string]string{
	"day":   "pd",
	"week":  "pw",
	"month": "pm",
	"year":  "py",
}

// WebSearch looks up background facts through the Brave Search API.
type WebSearch struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewWebSearch(apiKey string) *WebSearch {
	return &WebSearch{
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1/web/search",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebSearch) Name() string { return "web_search" }
func (w *WebSearch) Description() string {
	return "Search the web for current facts and sources to ground a post"
}
func (w *WebSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"count": {"type": "integer", "description": "Number of results (default: 5, max: 10)"},
			"recency": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "Only return pages this recent"}
		},
		"required": ["query"]
	}`)
}

func (w *WebSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query   string `json:"query"`
		Count   int    `json:"count"`
		Recency string `json:"recency"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", err
	}
	if in.Query == "" {
		return "", errors.New("query is required")
	}
	in.Count = min(max(in.Count, 0), 10)
	if in.Count == 0 {
		in.Count = 5
	}

	results, err := w.search(ctx, in.Query, in.Count, freshness[in.Recency])
	if err != nil {
		return "", err
	}
	return formatResults(results), nil
}

func (w *WebSearch) search(ctx context.Context, query string, count int, fresh string) ([]SearchResult, error) {
	u, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, err
	}
	q := url.Values{"q": {query}, "count": {strconv.Itoa(count)}}
	if fresh != "" {
		q.Set("freshness", fresh)
	}
	u.RawQuery = q.Encode()

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	header := http.Header{"Accept": {"application/json"}, "X-Subscription-Token": {w.apiKey}}
	if err := getJSON(ctx, w.client, "brave", u, header, &resp); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		out = append(out, SearchResult{Title: r.Title, Link: r.URL, Snippet: r.Description})
	}
	return out, nil
}
