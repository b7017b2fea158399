// internal/newsfeed/newsfeed_test.go
package newsfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/wonderland/internal/types"
)

type captured struct {
	items      []types.WorldFeedItem
	priorities []types.Priority
	fail       bool
}

func (c *captured) IngestWorldFeed(_ context.Context, item types.WorldFeedItem, p types.Priority) (*types.StimulusEvent, error) {
	if c.fail {
		return nil, errors.New("router closed")
	}
	c.items = append(c.items, item)
	c.priorities = append(c.priorities, p)
	return &types.StimulusEvent{Type: types.StimulusWorldFeed}, nil
}

type staticFetcher struct {
	items []Fetched
	err   error
}

func (s staticFetcher) Fetch(context.Context) ([]Fetched, error) { return s.items, s.err }

func TestHackerNewsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tags") != "front_page" || r.URL.Query().Get("hitsPerPage") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"hits":[
			{"objectID":"1","title":"Show HN: a compiler","url":"https://example.com/c","points":420},
			{"objectID":"2","title":"Ask HN: anything?","story_text":"<p>hello</p>","points":12},
			{"objectID":"3","title":"  "}
		]}`))
	}))
	defer srv.Close()

	h := NewHackerNews(5)
	h.baseURL = srv.URL
	got, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Score != 420 || got[0].Item.SourceURL != "https://example.com/c" || got[0].Item.Category != "technology" {
		t.Errorf("unexpected first item %+v", got[0])
	}
	if got[1].Item.SourceURL != "https://news.ycombinator.com/item?id=2" {
		t.Errorf("expected discussion link fallback, got %q", got[1].Item.SourceURL)
	}
}

func TestArXivFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search_query") != "cat:cs.LG" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2601.00001v1</id>
    <title>Sparse
      Attention at Scale</title>
    <summary>  We study   attention.
    </summary>
    <link href="http://arxiv.org/abs/2601.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2601.00001v1" rel="related" type="application/pdf"/>
  </entry>
</feed>`))
	}))
	defer srv.Close()

	a := NewArXiv("cs.LG", 3)
	a.baseURL = srv.URL
	got, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	item := got[0].Item
	if item.Headline != "Sparse Attention at Scale" || item.Body != "We study attention." || item.SourceURL != "http://arxiv.org/abs/2601.00001v1" {
		t.Errorf("unexpected item %+v", item)
	}
}

func TestSemanticScholarFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"paperId":"p","title":"Agents","abstract":"abs","url":"https://s2/p","citationCount":7}]}`))
	}))
	defer srv.Close()

	s := NewSemanticScholar("", 0)
	s.baseURL = srv.URL
	got, err := s.Fetch(context.Background())
	if err != nil || len(got) != 1 || got[0].Score != 7 || got[0].Item.Category != "research" {
		t.Fatalf("unexpected result %+v %v", got, err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := NewHackerNews(0)
	h.baseURL = srv.URL
	_, err := h.Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HTTP 429") {
		t.Errorf("expected HTTP error, got %v", err)
	}
}

func TestFetchBadBaseURL(t *testing.T) {
	h := NewHackerNews(1)
	h.baseURL = "://bad"
	a := NewArXiv("cs.AI", 1)
	a.baseURL = "://bad"
	s := NewSemanticScholar("agents", 1)
	s.baseURL = "://bad"

	for _, f := range []Fetcher{h, a, s} {
		_, err := f.Fetch(context.Background())
		if err == nil || !strings.Contains(err.Error(), "parse base url") {
			t.Errorf("%T: expected base url error, got %v", f, err)
		}
	}
}

func TestPollDedupesAndPrioritizes(t *testing.T) {
	out := &captured{}
	in := NewIngester(out)
	in.Register("HackerNews", staticFetcher{items: []Fetched{
		{Item: types.WorldFeedItem{Headline: "Big", SourceURL: "https://x.io/big/"}, Score: 900},
		{Item: types.WorldFeedItem{Headline: "Mid", SourceURL: "https://x.io/mid"}, Score: 300},
		{Item: types.WorldFeedItem{Headline: "Small", Body: "<b>bold</b> claim"}, Score: 3},
		{Item: types.WorldFeedItem{Headline: "Big again", SourceURL: "https://X.io/big"}, Score: 900},
	}}, PriorityThresholds{High: 200, Breaking: 800})

	n, err := in.Poll(context.Background(), "HackerNews")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("dispatched %d, want 3", n)
	}
	want := []types.Priority{types.PriorityBreaking, types.PriorityHigh, types.PriorityNormal}
	for i, p := range want {
		if out.priorities[i] != p {
			t.Errorf("item %d priority %s, want %s", i, out.priorities[i], p)
		}
		if out.items[i].SourceName != "HackerNews" {
			t.Errorf("item %d source %q", i, out.items[i].SourceName)
		}
	}
	if out.items[2].Body != "**bold** claim" {
		t.Errorf("expected markdown body, got %q", out.items[2].Body)
	}

	n, _ = in.Poll(context.Background(), "HackerNews")
	if n != 0 {
		t.Errorf("second poll dispatched %d duplicates", n)
	}
}

func TestPollErrors(t *testing.T) {
	in := NewIngester(&captured{})
	if _, err := in.Poll(context.Background(), "nope"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
	in.Register("broken", staticFetcher{err: errors.New("dns")}, PriorityThresholds{})
	in.Register("ok", staticFetcher{items: []Fetched{{Item: types.WorldFeedItem{Headline: "h"}}}}, PriorityThresholds{})
	if total := in.PollAll(context.Background()); total != 1 {
		t.Errorf("PollAll = %d, want 1", total)
	}
}

func TestNormalizeBody(t *testing.T) {
	if got := NormalizeBody("  plain text  "); got != "plain text" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("a", MaxBodyChars+10)
	if got := NormalizeBody(long); len([]rune(got)) != MaxBodyChars+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncation, got %d runes", len([]rune(got)))
	}
}
