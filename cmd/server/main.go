package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leonardcser/webcache-mcp/internal/blobs"
	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/config"
	"github.com/leonardcser/webcache-mcp/internal/instrument"
	"github.com/leonardcser/webcache-mcp/internal/logger"
	"github.com/leonardcser/webcache-mcp/internal/metrics"
	"github.com/leonardcser/webcache-mcp/internal/tools"
	"github.com/leonardcser/webcache-mcp/internal/web"
)

// daemonBinary is the cache-server executable started when the socket is down.
const daemonBinary = "webcache-mcp-cache"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Path); err != nil {
		panic(err)
	}
	defer logger.Close()
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warnf("Invalid log level %q: %v", cfg.Log.Level, err)
	}

	logger.Infof("Starting Web MCP server")
	ctx := context.Background()

	store, err := openStore(ctx, cfg, configPath)
	if err != nil {
		logger.Errorf("Failed to open %s store: %v", cfg.Store.Backend, err)
		panic(err)
	}
	defer store.Close()
	logger.Infof("Using %s store", cfg.Store.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, reg)
	}

	rec := instrument.NewRecorder(store,
		instrument.WithMaxRecordLen(cfg.Instrument.MaxRecordLen),
		instrument.WithMetrics(m),
	)
	pages := web.NewPageCache(store, web.NewCollyFetcher(),
		web.WithTTL(cfg.Cache.TTL),
		web.WithCounterTTL(cfg.Cache.CounterTTL),
		web.WithMetrics(m),
	)
	searcher := web.NewSearcher(pages)
	blobStore := blobs.New(rec)
	logger.Infof("Initialized page cache (ttl %s) and recorder", cfg.Cache.TTL)

	s := server.NewMCPServer(
		"Web MCP",
		"0.2.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolFetch := mcp.NewTool("web-fetch",
		mcp.WithDescription(multiline(
			"Fetches content from a specified URL and returns the parsed content",
			"\nFunctionality:",
			"- Takes a URL as input",
			"- Fetches the URL content and parses it",
			"- Returns the structured content including title, description, text, and links",
			"\nUsage notes:",
			"- The URL must be a fully-formed valid URL",
			"- HTTP URLs will be automatically upgraded to HTTPS",
			"- This tool is read-only and does not modify any files",
			fmt.Sprintf("- Responses are cached for %s; every call is recorded and can be inspected with call-replay", cfg.Cache.TTL),
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch content from")),
	)
	s.AddTool(toolFetch, tools.WebFetchHandler(instrument.Wrap(rec, tools.OpWebFetch, pages.Get)))

	toolSearch := mcp.NewTool("web-search",
		mcp.WithDescription(multiline(
			"Allows you to search the web and use the results to inform responses",
			"\nFunctionality:",
			"- Provides up-to-date information for current events and recent data",
			"- Returns search result information formatted as search result blocks",
			"- Use this tool for accessing information beyond your knowledge cutoff",
			"\nUsage notes:",
			"- Web search is only available in the US",
			"- Account for Today's date in environment (e.g., use 2025 when appropriate)",
		)),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query to use")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (1-20, default 10)")),
	)
	s.AddTool(toolSearch, tools.WebSearchHandler(searcher))

	toolPrefetch := mcp.NewTool("web-prefetch",
		mcp.WithDescription("Fetches several URLs concurrently so later web-fetch calls are served from the cache"),
		mcp.WithArray("urls", mcp.Required(),
			mcp.Description("URLs to warm"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
	s.AddTool(toolPrefetch, tools.WebPrefetchHandler(pages, cfg.Cache.PrefetchWorkers))

	toolStats := mcp.NewTool("page-stats",
		mcp.WithDescription("Reports how many times a URL has been looked up through the page cache"),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to report on")),
	)
	s.AddTool(toolStats, tools.PageStatsHandler(pages))

	toolReplay := mcp.NewTool("call-replay",
		mcp.WithDescription(multiline(
			"Shows the recorded history of an instrumented operation, one line per call",
			"\nKnown operations:",
			"- "+tools.OpWebFetch,
			"- "+blobs.OpPut,
		)),
		mcp.WithString("operation", mcp.Required(), mcp.Description("The operation name")),
	)
	s.AddTool(toolReplay, tools.CallReplayHandler(store))

	toolBlobStore := mcp.NewTool("blob-store",
		mcp.WithDescription("Stores text under a newly generated key and returns the key"),
		mcp.WithString("data", mcp.Required(), mcp.Description("The text to store")),
	)
	s.AddTool(toolBlobStore, tools.BlobStoreHandler(blobStore))

	toolBlobGet := mcp.NewTool("blob-get",
		mcp.WithDescription("Returns the text stored under a key returned by blob-store"),
		mcp.WithString("key", mcp.Required(), mcp.Description("The blob key")),
	)
	s.AddTool(toolBlobGet, tools.BlobGetHandler(blobStore))
	logger.Infof("Registered tools")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Infof("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("metrics server failed: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, configPath string) (cache.KeyStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return cache.NewMemory(nil), nil
	case config.BackendBolt:
		return cache.Open(cfg.Store.Path, cache.Options{Bucket: cfg.Store.Bucket, DefaultTTL: cfg.Store.DefaultTTL})
	case config.BackendRedis:
		return cache.DialRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
	default:
		return connectDaemon(ctx, cfg.Store.Socket, configPath)
	}
}

// connectDaemon connects to the cache daemon, starting it if needed.
func connectDaemon(ctx context.Context, sock, configPath string) (*cache.Client, error) {
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	client := cache.NewClient(sock)
	err := client.Ping(ctx)
	if err == nil {
		return client, nil
	}

	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if startErr := startCacheDaemon(configPath); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
	} else {
		logger.Infof("Cache daemon started")
	}

	// wait for socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err = client.Ping(ctx); err == nil {
			logger.Infof("Successfully connected to cache daemon")
			return client, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, fmt.Errorf("cache daemon at %s: %w", sock, err)
}

func startCacheDaemon(configPath string) error {
	var args []string
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
		args = []string{"-config", configPath}
	}

	candidates := make([]string, 0, 3)
	// 1) next to this executable, 2) on PATH, 3) in the working directory
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), daemonBinary))
	}
	if path, err := exec.LookPath(daemonBinary); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, "./"+daemonBinary)

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin, args...)
		cmd.Stdout = nil
		cmd.Stderr = nil
		cmd.Env = os.Environ()
		return cmd.Start()
	}
	return exec.ErrNotFound
}
