package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const readyPage = `<html><body><h1 class="listo">Medida: PS0348-25</h1></body></html>`
const loadingPage = `<html><body><div class="spinner">Cargando...</div></body></html>`

func testRenderer(server *httptest.Server, markers []string) (*HTTPRenderer, *[]time.Duration) {
	r := NewHTTPRenderer(server.Client(), "billtracker-test", "", markers)
	slept := &[]time.Duration{}
	r.sleep = func(d time.Duration) {
		*slept = append(*slept, d)
	}
	return r, slept
}

func TestRenderReadyFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(readyPage))
	}))
	defer server.Close()

	r, slept := testRenderer(server, []string{"h1.listo"})

	html, err := r.Render(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected render to succeed, got: %v", err)
	}
	if !strings.Contains(html, "PS0348-25") {
		t.Errorf("Expected page content, got: %q", html)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no waits on first-attempt success, got: %v", *slept)
	}
}

func TestRenderRetriesUntilReady(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte(loadingPage))
			return
		}
		w.Write([]byte(readyPage))
	}))
	defer server.Close()

	r, slept := testRenderer(server, []string{"h1.listo"})

	html, err := r.Render(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected render to recover, got: %v", err)
	}
	if !strings.Contains(html, "listo") {
		t.Errorf("Expected ready page returned, got: %q", html)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 fetches, got: %d", calls.Load())
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("Expected doubling waits %v, got: %v", want, *slept)
	}
}

func TestRenderFailsAfterRetryCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loadingPage))
	}))
	defer server.Close()

	r, slept := testRenderer(server, []string{"h1.listo"})

	_, err := r.Render(context.Background(), server.URL)
	if err == nil {
		t.Fatalf("Expected error after retry ceiling, got none")
	}
	if !strings.Contains(err.Error(), "after 5 attempts") {
		t.Errorf("Expected attempt count in error, got: %v", err)
	}
	if len(*slept) != DefaultMaxAttempts-1 {
		t.Errorf("Expected %d waits, got: %v", DefaultMaxAttempts-1, *slept)
	}
}

func TestRenderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(readyPage))
	}))
	defer server.Close()

	r, _ := testRenderer(server, []string{"h1.listo"})

	if _, err := r.Render(context.Background(), server.URL); err != nil {
		t.Fatalf("Expected retry past server error, got: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 fetches, got: %d", calls.Load())
	}
}

func TestRenderWithoutMarkersAcceptsAnyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loadingPage))
	}))
	defer server.Close()

	r, slept := testRenderer(server, nil)

	if _, err := r.Render(context.Background(), server.URL); err != nil {
		t.Fatalf("Expected markerless render to accept any page, got: %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no waits, got: %v", *slept)
	}
}

func TestRenderWritesDebugDump(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(readyPage))
	}))
	defer server.Close()

	outputDir := t.TempDir()
	r := NewHTTPRenderer(server.Client(), "", outputDir, []string{"h1.listo"})
	r.sleep = func(time.Duration) {}

	if _, err := r.Render(context.Background(), server.URL); err != nil {
		t.Fatalf("Expected render to succeed, got: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outputDir, DebugDumpFile))
	if err != nil {
		t.Fatalf("Expected debug dump written, got: %v", err)
	}
	if !strings.Contains(string(data), "PS0348-25") {
		t.Errorf("Expected dump to hold page source, got: %q", string(data))
	}
}
