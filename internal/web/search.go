package web

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const searchEndpoint = "https://html.duckduckgo.com/html/"

// extractDDGURL extracts the actual URL from DuckDuckGo's redirect URL format
// Input: //duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com&rut=...
// Output: https://example.com
func extractDDGURL(ddgURL string) string {
	if strings.HasPrefix(ddgURL, "//duckduckgo.com/l/") {
		ddgURL = "https:" + ddgURL
	}
	u, err := url.Parse(ddgURL)
	if err != nil {
		return ddgURL
	}
	// Query() already unescapes the value.
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	return ddgURL
}

type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// Searcher queries the DuckDuckGo HTML endpoint. Result pages are read through
// a PageCache, so repeated queries share its TTL and access counters.
type Searcher struct {
	pages    *PageCache
	endpoint string
}

func NewSearcher(pages *PageCache) *Searcher {
	return &Searcher{pages: pages, endpoint: searchEndpoint}
}

// QueryURL is the page key a query is cached under.
func (s *Searcher) QueryURL(q string) string {
	values := url.Values{"q": {q}, "kl": {"us-en"}}
	return s.endpoint + "?" + values.Encode()
}

func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 || limit > 20 {
		limit = 10
	}
	body, err := s.pages.Get(ctx, s.QueryURL(q))
	if err != nil {
		return nil, err
	}
	return parseResults(body, limit)
}

func parseResults(body string, limit int) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, limit)
	doc.Find("div.result.results_links.results_links_deep.web-result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a := s.Find("a.result__a").First()
		link := strings.TrimSpace(a.AttrOr("href", ""))
		title := singleLine(a.Text())
		desc := singleLine(s.Find("a.result__snippet").First().Text())
		if title != "" && link != "" {
			results = append(results, SearchResult{Title: title, Description: desc, Link: extractDDGURL(link)})
		}
		return len(results) < limit
	})

	if len(results) == 0 {
		// Fallback: scan anchor list and nearest snippet up the tree
		doc.Find("a.result__a").EachWithBreak(func(_ int, n *goquery.Selection) bool {
			title := singleLine(n.Text())
			link := strings.TrimSpace(n.AttrOr("href", ""))
			desc := singleLine(n.Parents().Find("a.result__snippet").First().Text())
			results = append(results, SearchResult{Title: title, Description: desc, Link: extractDDGURL(link)})
			return len(results) < limit
		})
	}
	return results, nil
}

// singleLine trims and collapses internal whitespace/newlines to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
