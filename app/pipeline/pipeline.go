package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"billtracker/app/bill"
	"billtracker/app/extract"
	"billtracker/app/fetch"
	"billtracker/app/render"
)

// ErrNoRecord marks a page that rendered fine but produced no valid bill
// record (no measure number). Such records are discarded, not returned
// partially.
var ErrNoRecord = errors.New("no valid bill record found")

// Options controls one pipeline invocation.
type Options struct {
	TimeBoxed         bool
	DownloadDocuments bool
	ExtractText       bool
}

// Pipeline sequences render, extract, resolve, fetch and normalize into one
// invocation producing a serializable record. It is the only layer that
// turns failures into a terminal error; everything below degrades.
type Pipeline struct {
	renderer  render.Renderer
	extractor *extract.Extractor
	resolver  *bill.Resolver
	engine    *fetch.Engine
	outputDir string
}

func New(renderer render.Renderer, extractor *extract.Extractor, resolver *bill.Resolver, engine *fetch.Engine, outputDir string) *Pipeline {
	return &Pipeline{
		renderer:  renderer,
		extractor: extractor,
		resolver:  resolver,
		engine:    engine,
		outputDir: outputDir,
	}
}

// Extract runs the full pipeline for one bill URL.
//
// Fatal errors (renderer retry ceiling, unusable markup, no measure number)
// return a nil record and non-nil error. Field-level absence and
// document-level fetch or decode failures never fail the run; the latter are
// aggregated into the record's Errors list.
func (p *Pipeline) Extract(ctx context.Context, url string, opts Options) (*bill.Record, error) {
	started := time.Now()

	html, err := p.renderer.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	mode := extract.FullMode()
	if opts.TimeBoxed {
		mode = extract.TimeBoxedMode()
	}

	extraction, err := p.extractor.Run(html, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to extract bill data: %w", err)
	}

	rec := extraction.Record
	rec.Events = bill.Merge(extraction.Steps, extraction.Votes)
	if !rec.Valid() {
		return nil, fmt.Errorf("%w at %s", ErrNoRecord, url)
	}

	// Resolve against page order so the first-seen description for a
	// duplicated URL is the one that appears first on the page, then sort
	// into the served timeline.
	refs := p.resolver.Run(rec)
	bill.SortEvents(rec.Events)

	if opts.DownloadDocuments {
		results, errs := p.engine.FetchAll(ctx, refs, opts.ExtractText)
		bill.ApplyResults(rec, results)
		rec.Errors = errs
	}

	p.cleanup()

	slog.Info("Pipeline completed",
		"measure", rec.Identifier,
		"events", len(rec.Events),
		"documents", len(refs),
		"document_errors", len(rec.Errors),
		"duration", time.Since(started).String())

	return rec, nil
}

// FetchDocument retrieves and decodes a single document synchronously.
func (p *Pipeline) FetchDocument(ctx context.Context, url string) (bill.DocumentRef, error) {
	return p.engine.FetchOne(ctx, url)
}

// cleanup removes transient debug artifacts left behind by the renderer.
// Failures are logged, never escalated.
func (p *Pipeline) cleanup() {
	if p.outputDir == "" {
		return
	}

	artifacts := []string{
		filepath.Join(p.outputDir, render.DebugDumpFile),
		filepath.Join(p.outputDir, "error_screenshot.png"),
	}
	if shots, err := filepath.Glob(filepath.Join(p.outputDir, "loading_attempt_*.png")); err == nil {
		artifacts = append(artifacts, shots...)
	}

	for _, path := range artifacts {
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("Failed to remove debug artifact", "path", path, "error", err)
			}
			continue
		}
		slog.Debug("Removed debug artifact", "path", path)
	}
}
