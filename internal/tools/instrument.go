package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/webcache-mcp/internal/blobs"
	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/instrument"
)

// CallReplayHandler renders the recorded call history of an operation.
func CallReplayHandler(store cache.KeyStore) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		op, err := req.RequireString("operation")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		trace, err := instrument.Replay(ctx, store, op)
		if err != nil && !errors.Is(err, instrument.ErrLogMismatch) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text := trace.String()
		if err != nil {
			// A call may still be running.
			text = "warning: " + err.Error() + "\n\n" + text
		}
		return mcp.NewToolResultText(text), nil
	}
}

// BlobStoreHandler saves text and returns its generated key.
func BlobStoreHandler(store *blobs.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := req.RequireString("data")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		key, err := store.Put(ctx, []byte(data))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(key), nil
	}
}

// BlobGetHandler returns the text stored under key.
func BlobGetHandler(store *blobs.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		key = strings.TrimSpace(key)
		s, err := store.GetString(ctx, key)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			return mcp.NewToolResultError("no blob stored under " + key), nil
		case err != nil:
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(s), nil
	}
}
