package web

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 1 * 1024 * 1024 // 1MB
)

// CollyFetcher is the HTTP collaborator behind a PageCache. It returns the
// response body of text documents and rejects binary content.
type CollyFetcher struct {
	c *colly.Collector
}

var _ Fetcher = (*CollyFetcher)(nil)

func NewCollyFetcher() *CollyFetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       1 * time.Second,
	})
	c.SetRequestTimeout(RequestTimeout)
	return &CollyFetcher{c: c}
}

func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", errors.New("url must start with http:// or https://")
	}

	// Clones share the backend and limits but not callbacks.
	c := f.c.Clone()
	c.Context = ctx

	var body []byte
	var contentType string
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", NextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		contentType = r.Headers.Get("Content-Type")
	})

	if err := c.Visit(rawURL); err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if len(body) == 0 {
		return "", errors.New("empty response body")
	}
	if ct := strings.ToLower(contentType); ct != "" && !strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "xml") {
		return "", errors.New("unsupported content type: binary files like images or PDFs are not supported")
	}

	if len(body) > MaxResponseSize {
		body = append(body[:MaxResponseSize:MaxResponseSize], []byte("... [response trimmed due to size]")...)
	}
	return string(body), nil
}
