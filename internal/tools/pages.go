package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/webcache-mcp/internal/web"
)

// PageStatsHandler reports how many times a URL has been looked up.
func PageStatsHandler(pages *web.PageCache) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		url = upgradeScheme(url)
		n, err := pages.Accesses(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s was accessed %d times", url, n)), nil
	}
}

// WebPrefetchHandler warms the page cache for a list of URLs.
func WebPrefetchHandler(pages *web.PageCache, workers int) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := req.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(urls) == 0 {
			return mcp.NewToolResultError("urls must not be empty"), nil
		}
		for i := range urls {
			urls[i] = upgradeScheme(strings.TrimSpace(urls[i]))
		}
		if err := pages.Prefetch(ctx, urls, workers); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Prefetched %d URLs", len(urls))), nil
	}
}
