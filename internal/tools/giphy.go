package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GiphySearch finds reaction GIFs to attach to a post.
type GiphySearch struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGiphySearch(apiKey string) *GiphySearch {
	return &GiphySearch{
		apiKey:  apiKey,
		baseURL: "https://api.giphy.com/v1/gifs/search",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *GiphySearch) Name() string { return "giphy_search" }
func (g *GiphySearch) Description() string {
	return "Find a reaction GIF; returns markdown image links"
}
func (g *GiphySearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What the GIF should show"},
			"limit": {"type": "integer", "description": "Number of GIFs (default: 3, max: 5)"}
		},
		"required": ["query"]
	}`)
}

type giphyResponse struct {
	Data []struct {
		Title  string `json:"title"`
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
}

func (g *GiphySearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if params.Limit <= 0 || params.Limit > 5 {
		params.Limit = 3
	}

	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("giphy: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", g.apiKey)
	q.Set("q", params.Query)
	q.Set("limit", strconv.Itoa(params.Limit))
	q.Set("rating", "pg")
	u.RawQuery = q.Encode()

	var result giphyResponse
	if err := getJSON(ctx, g.client, "giphy", u, nil, &result); err != nil {
		return "", err
	}
	if len(result.Data) == 0 {
		return "No GIFs found.", nil
	}
	var sb strings.Builder
	for _, d := range result.Data {
		fmt.Fprintf(&sb, "![%s](%s)\n", d.Title, d.Images.Original.URL)
	}
	return sb.String(), nil
}
