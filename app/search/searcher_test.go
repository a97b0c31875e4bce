package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"billtracker/app/extract"
)

const testOrigin = "https://sutra.oslpr.org"

type stubRenderer struct {
	pages []string
	urls  []string
	err   error
}

func (s *stubRenderer) Render(ctx context.Context, url string) (string, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.urls) - 1
	if i >= len(s.pages) {
		return "<html><body></body></html>", nil
	}
	return s.pages[i], nil
}

func testSearcher(t *testing.T, renderer *stubRenderer) *Searcher {
	t.Helper()
	sel, err := extract.DefaultSelectors()
	if err != nil {
		t.Fatalf("Failed to load selectors: %v", err)
	}

	s := NewSearcher(renderer, sel.Search, testOrigin)
	s.now = func() time.Time {
		return time.Date(2025, 3, 24, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func resultItem(id, measure, filed, title, author string) string {
	return `<a href="/medidas/` + id + `">
  <li class="relative border border-zinc-400">
    <h1 class="text-2xl"><span class="font-bold">Medida:</span> ` + measure + `</h1>
    <p><strong>Radicada:</strong> ` + filed + `</p>
    <p><strong>Autor(es):</strong> <span class="text-xs">` + author + `</span></p>
    <p><strong>Título:</strong> ` + title + `</p>
    <span class="text-xs font-bold text-white">Radicado</span>
  </li>
</a>`
}

func searchPage(items string, nextEnabled bool) string {
	next := `<a aria-label="Página Siguiente" class="disabled">&gt;</a>`
	if nextEnabled {
		next = `<a aria-label="Página Siguiente" href="?page=2">&gt;</a>`
	}
	return `<html><body><div>` + items + next + `</div></body></html>`
}

func TestByDateWalksResultPages(t *testing.T) {
	renderer := &stubRenderer{pages: []string{
		searchPage(
			resultItem("198544", "PS0348-25", "03/24/2025", "Ley para enmendar la Ley de Contribuciones", "Rivera Schatz, Thomas")+
				resultItem("198001", "PC0100-25", "03/23/2025", "Medida del día anterior", "Hernández Montañez, Rafael"),
			true,
		),
		searchPage(
			resultItem("198600", "PS0349-25", "2025-03-24", "Ley de Transparencia Fiscal", "Santiago Negrón, María de Lourdes"),
			false,
		),
	}}
	s := testSearcher(t, renderer)

	result, err := s.ByDate(context.Background(), "2025-03-24")
	if err != nil {
		t.Fatalf("Expected search to succeed, got: %v", err)
	}

	if result.Count != 2 || len(result.Bills) != 2 {
		t.Fatalf("Expected 2 bills after date filtering, got: %d (%v)", result.Count, result.Bills)
	}
	if result.PagesProcessed != 2 {
		t.Errorf("Expected 2 pages processed, got: %d", result.PagesProcessed)
	}
	if result.SearchDate != "2025-03-24" {
		t.Errorf("Expected search date echoed, got: %s", result.SearchDate)
	}

	first := result.Bills[0]
	if first.Identifier != "PS0348-25" {
		t.Errorf("Expected measure 'PS0348-25', got: %q", first.Identifier)
	}
	if first.ID != "198544" {
		t.Errorf("Expected bill id '198544', got: %q", first.ID)
	}
	if first.URL != testOrigin+"/medidas/198544" {
		t.Errorf("Expected absolute bill URL, got: %q", first.URL)
	}
	if first.Title != "Ley para enmendar la Ley de Contribuciones" {
		t.Errorf("Expected title stripped of label, got: %q", first.Title)
	}
	if first.Authors != "Rivera Schatz, Thomas" {
		t.Errorf("Expected authors from span, got: %q", first.Authors)
	}
	if first.Status != "Radicado" {
		t.Errorf("Expected status badge text, got: %q", first.Status)
	}
	if first.FilingDate != "03/24/2025" {
		t.Errorf("Expected filing date as displayed, got: %q", first.FilingDate)
	}

	// The day-before bill matched the range query but not the target date.
	for _, b := range result.Bills {
		if b.Identifier == "PC0100-25" {
			t.Errorf("Expected bill filed the day before to be filtered out")
		}
	}
	if result.Bills[1].Identifier != "PS0349-25" {
		t.Errorf("Expected ISO-dated bill kept, got: %q", result.Bills[1].Identifier)
	}

	if len(renderer.urls) != 2 {
		t.Fatalf("Expected 2 page fetches, got: %v", renderer.urls)
	}
	wantQuery := "/medidas?cuatrienio_id=2025&fecha_radicacion_desde=2025-03-23&fecha_radicacion_hasta=2025-03-24"
	if !strings.HasSuffix(renderer.urls[0], wantQuery) {
		t.Errorf("Expected first page URL ending %q, got: %s", wantQuery, renderer.urls[0])
	}
	if !strings.HasSuffix(renderer.urls[1], "&page=2") {
		t.Errorf("Expected second page URL with page parameter, got: %s", renderer.urls[1])
	}
}

func TestByDateStopsOnEmptyPage(t *testing.T) {
	renderer := &stubRenderer{pages: []string{
		searchPage(resultItem("198544", "PS0348-25", "03/24/2025", "Título", "Autor"), true),
		searchPage("", true),
	}}
	s := testSearcher(t, renderer)

	result, err := s.ByDate(context.Background(), "2025-03-24")
	if err != nil {
		t.Fatalf("Expected search to succeed, got: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("Expected 1 bill, got: %d", result.Count)
	}
	if result.PagesProcessed != 2 {
		t.Errorf("Expected crawl to stop at the empty page, got: %d pages", result.PagesProcessed)
	}
	if len(renderer.urls) != 2 {
		t.Errorf("Expected no fetch past the empty page, got: %v", renderer.urls)
	}
}

func TestByDateNoResults(t *testing.T) {
	renderer := &stubRenderer{pages: []string{searchPage("", false)}}
	s := testSearcher(t, renderer)

	result, err := s.ByDate(context.Background(), "2025-03-24")
	if err != nil {
		t.Fatalf("Expected empty search to succeed, got: %v", err)
	}
	if result.Count != 0 || len(result.Bills) != 0 {
		t.Errorf("Expected no bills, got: %v", result.Bills)
	}
	if result.PagesProcessed != 1 {
		t.Errorf("Expected 1 page processed, got: %d", result.PagesProcessed)
	}
}

func TestByDateKeepsUnparsableFilingDate(t *testing.T) {
	renderer := &stubRenderer{pages: []string{
		searchPage(resultItem("198544", "PS0348-25", "pendiente", "Título", "Autor"), false),
	}}
	s := testSearcher(t, renderer)

	result, err := s.ByDate(context.Background(), "2025-03-24")
	if err != nil {
		t.Fatalf("Expected search to succeed, got: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("Expected bill with unparsable date kept, got: %d", result.Count)
	}
	if result.Bills[0].FilingDate != "pendiente" {
		t.Errorf("Expected raw filing date preserved, got: %q", result.Bills[0].FilingDate)
	}
}

func TestByDateRejectsInvalidDate(t *testing.T) {
	s := testSearcher(t, &stubRenderer{})

	for _, input := range []string{"03/24/2025", "2025-3-24", "mañana", ""} {
		if _, err := s.ByDate(context.Background(), input); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("Expected ErrInvalidDate for %q, got: %v", input, err)
		}
	}
}

func TestByDatePropagatesFetchFailure(t *testing.T) {
	s := testSearcher(t, &stubRenderer{err: errors.New("connection reset")})

	_, err := s.ByDate(context.Background(), "2025-03-24")
	if err == nil || !strings.Contains(err.Error(), "failed to fetch search page") {
		t.Errorf("Expected fetch failure surfaced, got: %v", err)
	}
}
