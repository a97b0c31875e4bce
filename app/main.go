package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billtracker/app/api"
	"billtracker/app/bill"
	"billtracker/app/cfg"
	"billtracker/app/extract"
	"billtracker/app/fetch"
	"billtracker/app/pipeline"
	"billtracker/app/render"
	"billtracker/app/search"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg)

	selectors, err := extract.LoadSelectors(appCfg.SelectorsFile)
	if err != nil {
		slog.Error("Failed to load selectors", "error", err)
		os.Exit(1)
	}

	fetchMode := fetch.FetchReal
	if appCfg.SkipDownloads {
		slog.Info("Document downloads disabled", "flag", "no-extract")
		fetchMode = fetch.FetchMetadataOnly
	}

	renderer := render.NewHTTPRenderer(nil, appCfg.UserAgent, appCfg.OutputDir, selectors.ReadyMarkers)
	extractor := extract.NewExtractor(selectors)
	resolver := bill.NewResolver(appCfg.SiteOrigin)
	engine := fetch.NewEngine(fetch.Options{
		OutputDir: appCfg.OutputDir,
		Origin:    appCfg.SiteOrigin,
		Mode:      fetchMode,
		Workers:   appCfg.WorkerCount,
		UserAgent: appCfg.UserAgent,
	})

	p := pipeline.New(renderer, extractor, resolver, engine, appCfg.OutputDir)

	// Search pages carry no readiness markers: an empty final results page
	// is a normal outcome, so the search renderer probes nothing.
	searchRenderer := render.NewHTTPRenderer(nil, appCfg.UserAgent, "", nil)
	searcher := search.NewSearcher(searchRenderer, selectors.Search, appCfg.SiteOrigin)

	if appCfg.SearchDate != "" {
		runSearch(searcher, appCfg.SearchDate)
		return
	}
	if url := cfg.OneShotURL(); url != "" {
		runOnce(p, url, appCfg)
		return
	}

	runServer(p, searcher, appCfg)
}

// runSearch executes a filing-date search and prints the result as JSON on
// stdout, mirroring the one-shot extraction contract.
func runSearch(s *search.Searcher, date string) {
	result, err := s.ByDate(context.Background(), date)

	enc := json.NewEncoder(os.Stdout)
	if err != nil {
		_ = enc.Encode(map[string]string{"error": err.Error()})
		os.Exit(1)
	}
	if encErr := enc.Encode(result); encErr != nil {
		slog.Error("Failed to serialize search result", "error", encErr)
		os.Exit(1)
	}
}

// runOnce executes the pipeline for a single URL and prints the record as
// JSON on stdout, for callers that shell out per bill instead of keeping a
// server running.
func runOnce(p *pipeline.Pipeline, url string, appCfg *cfg.Cfg) {
	opts := pipeline.Options{
		DownloadDocuments: !appCfg.SkipDownloads,
	}

	rec, err := p.Extract(context.Background(), url, opts)

	enc := json.NewEncoder(os.Stdout)
	if err != nil {
		_ = enc.Encode(map[string]string{"error": err.Error()})
		os.Exit(1)
	}
	if encErr := enc.Encode(rec); encErr != nil {
		slog.Error("Failed to serialize record", "error", encErr)
		os.Exit(1)
	}
}

func runServer(p *pipeline.Pipeline, s *search.Searcher, appCfg *cfg.Cfg) {
	handler := api.NewHandler(p, s, appCfg.Version)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "version", appCfg.Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

func setupLogger(appCfg *cfg.Cfg) {
	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
