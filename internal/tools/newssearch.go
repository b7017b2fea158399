package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ericgreene/go-serp"
)

// SearchResult is one hit from a search backend.
type SearchResult struct {
	Title   string
	Snippet string
	Link    string
}

// SearchFunc runs a SerpApi query.
type SearchFunc func(params map[string]string) ([]SearchResult, error)

// NewsSearch finds recent coverage of a topic through SerpApi.
type NewsSearch struct {
	apiKey string
	search SearchFunc
}

func NewNewsSearch(apiKey string) *NewsSearch {
	return &NewsSearch{apiKey: apiKey, search: serpSearch}
}

// NewNewsSearchWith uses search in place of the live SerpApi client.
func NewNewsSearchWith(apiKey string, search SearchFunc) *NewsSearch {
	return &NewsSearch{apiKey: apiKey, search: search}
}

func serpSearch(params map[string]string) ([]SearchResult, error) {
	query := serp.NewGoogleSearch(params)
	results, err := query.GetJSON()
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(results.OrganicResults))
	for _, r := range results.OrganicResults {
		out = append(out, SearchResult{Title: r.Title, Snippet: r.Snippet, Link: r.Link})
	}
	return out, nil
}

func (n *NewsSearch) Name() string { return "news_search" }
func (n *NewsSearch) Description() string {
	return "Search news coverage from the past day on a topic"
}
func (n *NewsSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "News topic to search for"},
			"max_results": {"type": "integer", "description": "Number of results (default: 5, max: 10)"}
		},
		"required": ["query"]
	}`)
}

func (n *NewsSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if n.apiKey == "" {
		return "", fmt.Errorf("SERP_API_KEY not set")
	}
	if params.MaxResults <= 0 || params.MaxResults > 10 {
		params.MaxResults = 5
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	results, err := n.search(map[string]string{
		"q":   params.Query,
		"key": n.apiKey,
		"num": strconv.Itoa(params.MaxResults),
		"tbs": "qdr:d",
	})
	if err != nil {
		return "", fmt.Errorf("news search: %w", err)
	}
	if len(results) > params.MaxResults {
		results = results[:params.MaxResults]
	}
	return formatResults(results), nil
}
