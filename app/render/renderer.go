package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DebugDumpFile is the transient page dump written beside the document
// cache. The pipeline removes it after a successful run.
const DebugDumpFile = "page_source.html"

const (
	DefaultMaxAttempts = 5
	DefaultBaseWait    = 10 * time.Second
)

// Renderer produces the rendered markup of a bill page. Implementations are
// opaque to the rest of the pipeline: anything that can turn a URL into a
// final HTML string satisfies it.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// HTTPRenderer fetches a page over plain HTTP and verifies readiness by
// probing for known marker selectors, retrying with a doubling wait when the
// page has not finished rendering its content.
type HTTPRenderer struct {
	client       *http.Client
	userAgent    string
	outputDir    string
	readyMarkers []string
	maxAttempts  int
	baseWait     time.Duration
	sleep        func(time.Duration)
}

func NewHTTPRenderer(client *http.Client, userAgent string, outputDir string, readyMarkers []string) *HTTPRenderer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRenderer{
		client:       client,
		userAgent:    userAgent,
		outputDir:    outputDir,
		readyMarkers: readyMarkers,
		maxAttempts:  DefaultMaxAttempts,
		baseWait:     DefaultBaseWait,
		sleep:        time.Sleep,
	}
}

// Render fetches the page and returns its markup once a readiness marker is
// present. After the retry ceiling it fails hard; the orchestrator treats
// that as a pipeline-level error.
func (r *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := r.baseWait * (1 << (attempt - 1))
			slog.Warn("Page not ready, retrying", "url", url, "attempt", attempt+1, "wait", wait.String())
			r.sleep(wait)
		}

		html, err := r.fetch(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}

		r.dump(html)

		if r.ready(html) {
			return html, nil
		}
		lastErr = fmt.Errorf("no readiness marker found on page")
	}

	return "", fmt.Errorf("page failed to render after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *HTTPRenderer) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(data), nil
}

// ready reports whether any known marker selector matches the page.
func (r *HTTPRenderer) ready(html string) bool {
	if len(r.readyMarkers) == 0 {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, marker := range r.readyMarkers {
		if doc.Find(marker).Length() > 0 {
			return true
		}
	}
	return false
}

// dump writes the page source for post-mortem debugging. Best effort only.
func (r *HTTPRenderer) dump(html string) {
	if r.outputDir == "" {
		return
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(r.outputDir, DebugDumpFile)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		slog.Debug("Failed to write page dump", "path", path, "error", err)
	}
}
