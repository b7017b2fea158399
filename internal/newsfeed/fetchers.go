// internal/newsfeed/fetchers.go
package newsfeed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/wonderland/internal/types"
)

// Fetched is one upstream item before normalization.
type Fetched struct {
	Item  types.WorldFeedItem
	Score int // upstream popularity, 0 when unknown
}

// Fetcher pulls the latest items from one upstream.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Fetched, error)
}

const userAgent = "Wonderland/1.0"

func getBody(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// HackerNews reads front page stories from the Algolia HN API.
type HackerNews struct {
	baseURL  string
	client   *http.Client
	limit    int
	category string
}

func NewHackerNews(limit int) *HackerNews {
	if limit <= 0 {
		limit = 10
	}
	return &HackerNews{
		baseURL:  "https://hn.algolia.com/api/v1/search",
		client:   &http.Client{Timeout: 15 * time.Second},
		limit:    limit,
		category: "technology",
	}
}

type hnResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		StoryText   string `json:"story_text"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
	} `json:"hits"`
}

func (h *HackerNews) Fetch(ctx context.Context) ([]Fetched, error) {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return nil, fmt.Errorf("hackernews: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("tags", "front_page")
	q.Set("hitsPerPage", fmt.Sprint(h.limit))
	u.RawQuery = q.Encode()

	body, err := getBody(ctx, h.client, u.String())
	if err != nil {
		return nil, fmt.Errorf("hackernews: %w", err)
	}
	var resp hnResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("hackernews: parse response: %w", err)
	}

	var out []Fetched
	for _, hit := range resp.Hits {
		if strings.TrimSpace(hit.Title) == "" {
			continue
		}
		link := hit.URL
		if link == "" {
			link = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}
		out = append(out, Fetched{
			Item: types.WorldFeedItem{
				Headline:  hit.Title,
				Body:      hit.StoryText,
				Category:  h.category,
				SourceURL: link,
			},
			Score: hit.Points,
		})
	}
	return out, nil
}

// ArXiv reads the newest submissions in one arXiv category from the Atom
// export API.
type ArXiv struct {
	baseURL  string
	client   *http.Client
	category string
	limit    int
}

func NewArXiv(category string, limit int) *ArXiv {
	if category == "" {
		category = "cs.AI"
	}
	if limit <= 0 {
		limit = 10
	}
	return &ArXiv{
		baseURL:  "https://export.arxiv.org/api/query",
		client:   &http.Client{Timeout: 30 * time.Second},
		category: category,
		limit:    limit,
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Links   []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
}

func (a *ArXiv) Fetch(ctx context.Context) ([]Fetched, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("arxiv: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("search_query", "cat:"+a.category)
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	q.Set("max_results", fmt.Sprint(a.limit))
	u.RawQuery = q.Encode()

	body, err := getBody(ctx, a.client, u.String())
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: parse feed: %w", err)
	}

	var out []Fetched
	for _, e := range feed.Entries {
		title := strings.Join(strings.Fields(e.Title), " ")
		if title == "" {
			continue
		}
		link := e.ID
		for _, l := range e.Links {
			if l.Rel == "alternate" && l.Href != "" {
				link = l.Href
				break
			}
		}
		out = append(out, Fetched{Item: types.WorldFeedItem{
			Headline:  title,
			Body:      strings.Join(strings.Fields(e.Summary), " "),
			Category:  "research",
			SourceURL: link,
		}})
	}
	return out, nil
}

// SemanticScholar searches recent papers via the Semantic Scholar graph
// API.
type SemanticScholar struct {
	baseURL string
	client  *http.Client
	query   string
	limit   int
}

func NewSemanticScholar(query string, limit int) *SemanticScholar {
	if query == "" {
		query = "large language models"
	}
	if limit <= 0 {
		limit = 10
	}
	return &SemanticScholar{
		baseURL: "https://api.semanticscholar.org/graph/v1/paper/search",
		client:  &http.Client{Timeout: 20 * time.Second},
		query:   query,
		limit:   limit,
	}
}

type s2Response struct {
	Data []struct {
		PaperID       string `json:"paperId"`
		Title         string `json:"title"`
		Abstract      string `json:"abstract"`
		URL           string `json:"url"`
		CitationCount int    `json:"citationCount"`
	} `json:"data"`
}

func (s *SemanticScholar) Fetch(ctx context.Context) ([]Fetched, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("semantic scholar: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("query", s.query)
	q.Set("limit", fmt.Sprint(s.limit))
	q.Set("fields", "title,abstract,url,citationCount")
	u.RawQuery = q.Encode()

	body, err := getBody(ctx, s.client, u.String())
	if err != nil {
		return nil, fmt.Errorf("semantic scholar: %w", err)
	}
	var resp s2Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("semantic scholar: parse response: %w", err)
	}

	var out []Fetched
	for _, p := range resp.Data {
		if p.Title == "" {
			continue
		}
		out = append(out, Fetched{
			Item: types.WorldFeedItem{
				Headline:  p.Title,
				Body:      p.Abstract,
				Category:  "research",
				SourceURL: p.URL,
			},
			Score: p.CitationCount,
		})
	}
	return out, nil
}
