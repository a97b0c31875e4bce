package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"billtracker/app/bill"
	"billtracker/app/extract"
	"billtracker/app/fetch"
	"billtracker/app/pipeline"
	"billtracker/app/search"
)

const testOrigin = "https://sutra.oslpr.org"

type stubRenderer struct {
	html string
	err  error
}

func (s *stubRenderer) Render(ctx context.Context, url string) (string, error) {
	return s.html, s.err
}

func testServer(t *testing.T, pageRenderer, searchRenderer *stubRenderer) http.Handler {
	t.Helper()

	sel, err := extract.DefaultSelectors()
	if err != nil {
		t.Fatalf("Failed to load selectors: %v", err)
	}

	engine := fetch.NewEngine(fetch.Options{
		OutputDir: t.TempDir(),
		Origin:    testOrigin,
		Mode:      fetch.FetchMetadataOnly,
	})
	p := pipeline.New(pageRenderer, extract.NewExtractor(sel), bill.NewResolver(testOrigin), engine, "")

	s := search.NewSearcher(searchRenderer, sel.Search, testOrigin)

	return NewServer(NewHandler(p, s, "test"))
}

func doRequest(t *testing.T, server http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestExtractFatalFailureReturns500(t *testing.T) {
	server := testServer(t, &stubRenderer{err: errors.New("page failed to render after 5 attempts")}, &stubRenderer{})

	w := doRequest(t, server, http.MethodPost, "/api/extract", `{"url":"https://sutra.oslpr.org/medidas/198544"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 for a fatal pipeline failure, got: %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["error"] == "" || body["error"] == nil {
		t.Errorf("Expected error message in body, got: %v", body)
	}
	if _, ok := body["measure_number"]; ok {
		t.Errorf("Expected no record fields on the fatal path, got: %v", body)
	}
}

func TestExtractMissingURLReturns400(t *testing.T) {
	server := testServer(t, &stubRenderer{}, &stubRenderer{})

	w := doRequest(t, server, http.MethodPost, "/api/extract", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing url, got: %d", w.Code)
	}
}

func TestSearchInvalidDateReturns400(t *testing.T) {
	server := testServer(t, &stubRenderer{}, &stubRenderer{})

	w := doRequest(t, server, http.MethodPost, "/api/search", `{"date":"03/24/2025"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid date, got: %d", w.Code)
	}
}

func TestSearchReturnsBills(t *testing.T) {
	page := `<html><body><div>
<a href="/medidas/198544">
  <li class="relative border border-zinc-400">
    <h1 class="text-2xl"><span class="font-bold">Medida:</span> PS0348-25</h1>
    <p><strong>Radicada:</strong> 03/24/2025</p>
  </li>
</a>
<a aria-label="Página Siguiente" class="disabled">&gt;</a>
</div></body></html>`
	server := testServer(t, &stubRenderer{}, &stubRenderer{html: page})

	w := doRequest(t, server, http.MethodPost, "/api/search", `{"date":"2025-03-24"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got: %d (%s)", w.Code, w.Body.String())
	}

	var result search.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Count != 1 || len(result.Bills) != 1 {
		t.Fatalf("Expected 1 bill, got: %+v", result)
	}
	if result.Bills[0].Identifier != "PS0348-25" {
		t.Errorf("Expected measure 'PS0348-25', got: %q", result.Bills[0].Identifier)
	}
}

func TestGetHealth(t *testing.T) {
	server := testServer(t, &stubRenderer{}, &stubRenderer{})

	w := doRequest(t, server, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got: %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != "up" {
		t.Errorf("Expected status 'up', got: %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("Expected version 'test', got: %v", body["version"])
	}
}
