package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"billtracker/app/bill"
)

// FetchMode selects how the engine treats document references. It is fixed
// at construction time; there is no runtime switching.
type FetchMode int

const (
	// FetchReal downloads and caches document bytes.
	FetchReal FetchMode = iota
	// FetchMetadataOnly returns references untouched (URL and description
	// only), for callers that want structural data fast and will resolve
	// documents lazily.
	FetchMetadataOnly
)

const (
	DefaultWorkers   = 5
	defaultRetries   = 3
	defaultBaseDelay = 5 * time.Second
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	OutputDir string
	Origin    string
	Mode      FetchMode
	Workers   int
	UserAgent string
	Client    *http.Client
	Decoders  *Registry
}

// Engine downloads bill documents into the on-disk cache and optionally
// decodes them to text. Cached files are named by the URL's cache key plus
// the original extension, so a renamed-but-identical URL never downloads
// twice and two distinct URLs sharing a basename never collide.
type Engine struct {
	outputDir string
	origin    string
	mode      FetchMode
	workers   int
	userAgent string
	client    *http.Client
	decoders  *Registry

	retries   int
	baseDelay time.Duration
	sleep     func(time.Duration)
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		outputDir: opts.OutputDir,
		origin:    opts.Origin,
		mode:      opts.Mode,
		workers:   opts.Workers,
		userAgent: opts.UserAgent,
		client:    opts.Client,
		decoders:  opts.Decoders,
		retries:   defaultRetries,
		baseDelay: defaultBaseDelay,
		sleep:     time.Sleep,
	}
	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 60 * time.Second}
	}
	if e.decoders == nil {
		e.decoders = NewRegistry()
	}
	return e
}

// FetchAll processes a deduplicated document set with a fixed-size worker
// pool. A single document's failure never aborts the batch; it is recorded
// on the reference and aggregated into the returned error list. Result
// order follows worker completion, not input order.
func (e *Engine) FetchAll(ctx context.Context, refs []bill.DocumentRef, extractText bool) ([]bill.DocumentRef, []string) {
	if e.mode == FetchMetadataOnly {
		slog.Info("Document downloads skipped", "mode", "metadata-only", "documents", len(refs))
		return refs, nil
	}
	if len(refs) == 0 {
		return nil, nil
	}

	jobs := make(chan bill.DocumentRef, len(refs))
	for _, ref := range refs {
		jobs <- ref
	}
	close(jobs)

	var (
		mu      sync.Mutex
		results []bill.DocumentRef
		errs    []string
		wg      sync.WaitGroup
	)

	workers := e.workers
	if workers > len(refs) {
		workers = len(refs)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				processed := e.process(ctx, ref, extractText)

				mu.Lock()
				results = append(results, processed)
				if processed.DownloadError != "" {
					errs = append(errs, fmt.Sprintf("Error downloading %s: %s", processed.URL, processed.DownloadError))
				}
				if processed.ExtractionError != "" {
					errs = append(errs, fmt.Sprintf("Error extracting text from %s: %s", processed.URL, processed.ExtractionError))
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	slog.Info("Document batch completed", "documents", len(results), "errors", len(errs))
	return results, errs
}

// FetchOne synchronously fetches and decodes exactly one document, for
// callers that want a single attachment's text without paying for the rest.
func (e *Engine) FetchOne(ctx context.Context, url string) (bill.DocumentRef, error) {
	normalized, err := bill.NormalizeURL(url, e.origin)
	if err != nil {
		return bill.DocumentRef{}, err
	}

	ref := bill.DocumentRef{
		URL:         normalized,
		Description: filepath.Base(normalized),
		Name:        filepath.Base(normalized),
		CacheKey:    bill.CacheKey(normalized),
	}
	return e.process(ctx, ref, true), nil
}

func (e *Engine) process(ctx context.Context, ref bill.DocumentRef, extractText bool) bill.DocumentRef {
	if e.mode == FetchMetadataOnly {
		return ref
	}

	ext := strings.ToLower(filepath.Ext(ref.Name))
	if ext == "" {
		ext = ".bin"
	}
	ref.Path = filepath.Join(e.outputDir, ref.CacheKey+ext)
	ref.TextPath = ref.Path + ".txt"

	if fileExists(ref.Path) {
		slog.Debug("Cache hit", "url", ref.URL, "path", ref.Path)
		ref.Downloaded = true
	} else {
		if err := e.download(ctx, ref.URL, ref.Path); err != nil {
			ref.DownloadError = err.Error()
			return ref
		}
		ref.Downloaded = true
	}

	if !extractText {
		return ref
	}

	if fileExists(ref.TextPath) {
		data, err := os.ReadFile(ref.TextPath)
		if err != nil {
			ref.ExtractionError = fmt.Sprintf("failed to read cached text: %v", err)
			return ref
		}
		ref.ExtractedText = string(data)
		ref.TextExtracted = true
		return ref
	}

	text, err := e.decoders.Decode(ctx, ref.Path)
	if err != nil {
		ref.ExtractionError = err.Error()
		return ref
	}

	if err := os.WriteFile(ref.TextPath, []byte(text), 0o644); err != nil {
		slog.Warn("Failed to persist extracted text", "path", ref.TextPath, "error", err)
	}
	ref.ExtractedText = text
	ref.TextExtracted = true
	return ref
}

// download performs the HTTP fetch with bounded retries: transport-level
// failures back off exponentially (5s, 10s) before the next attempt, while
// a non-2xx response is terminal for the document.
func (e *Engine) download(ctx context.Context, url string, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay * (1 << (attempt - 1))
			slog.Warn("Retrying download", "url", url, "attempt", attempt+1, "delay", delay.String())
			e.sleep(delay)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if e.userAgent != "" {
			req.Header.Set("User-Agent", e.userAgent)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write cache file: %w", err)
		}

		slog.Debug("Downloaded document", "url", url, "path", path, "bytes", len(data))
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", e.retries, lastErr)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
