package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"billtracker/app/bill"
	"billtracker/app/extract"
	"billtracker/app/render"
)

// ErrInvalidDate marks a search date that is not a YYYY-MM-DD string.
var ErrInvalidDate = errors.New("invalid search date, expected YYYY-MM-DD")

const searchDateLayout = "2006-01-02"

var measureIDPattern = regexp.MustCompile(`medidas/(\d+)`)

// Result is the outcome of one filing-date search across every results
// page. JSON field names match the search output consumed by the frontend.
type Result struct {
	Bills          []bill.Summary `json:"bills"`
	Count          int            `json:"count"`
	SearchDate     string         `json:"search_date"`
	SearchURL      string         `json:"search_url"`
	PagesProcessed int            `json:"pages_processed"`
}

// Searcher walks the tracker's paginated filing-date search and collects a
// summary per bill. It reuses the render collaborator for fetching; search
// pages have no readiness markers (an empty final page is a normal result),
// so the renderer handed in should probe none.
type Searcher struct {
	renderer render.Renderer
	sel      extract.SearchSelectors
	origin   string
	now      func() time.Time
}

func NewSearcher(renderer render.Renderer, sel extract.SearchSelectors, origin string) *Searcher {
	return &Searcher{
		renderer: renderer,
		sel:      sel,
		origin:   origin,
		now:      time.Now,
	}
}

// ByDate returns the bills filed on the given date (YYYY-MM-DD), walking
// result pages until one comes back empty or the last-page link disappears.
// A fetch or parse failure is terminal; there is no partial result.
func (s *Searcher) ByDate(ctx context.Context, date string) (*Result, error) {
	target, err := time.Parse(searchDateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	// The search form takes a date range; query from the day before and
	// post-filter below so the result covers exactly the target day.
	desde := target.AddDate(0, 0, -1).Format(searchDateLayout)
	hasta := target.Format(searchDateLayout)
	baseURL := fmt.Sprintf("%s/medidas?cuatrienio_id=%d&fecha_radicacion_desde=%s&fecha_radicacion_hasta=%s",
		strings.TrimRight(s.origin, "/"), s.now().Year(), desde, hasta)

	result := &Result{
		Bills:      []bill.Summary{},
		SearchDate: target.Format(searchDateLayout),
		SearchURL:  baseURL,
	}

	for page := 1; ; page++ {
		pageURL := baseURL
		if page > 1 {
			pageURL = fmt.Sprintf("%s&page=%d", baseURL, page)
		}

		html, err := s.renderer.Render(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch search page %d: %w", page, err)
		}

		bills, hasNext, err := s.parsePage(html, target)
		if err != nil {
			return nil, err
		}
		result.PagesProcessed = page

		if len(bills) == 0 {
			slog.Debug("Empty search page, stopping", "page", page)
			break
		}
		result.Bills = append(result.Bills, bills...)

		if !hasNext {
			break
		}
	}

	result.Count = len(result.Bills)
	slog.Info("Search completed",
		"date", result.SearchDate,
		"bills", result.Count,
		"pages", result.PagesProcessed)
	return result, nil
}

func (s *Searcher) parsePage(html string, target time.Time) ([]bill.Summary, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse search markup: %w", err)
	}

	var bills []bill.Summary
	doc.Find(s.sel.ResultItem).Each(func(_ int, item *goquery.Selection) {
		if summary, ok := s.parseItem(item, target); ok {
			bills = append(bills, summary)
		}
	})

	next := doc.Find(s.sel.NextPage).First()
	hasNext := next.Length() > 0 && !next.HasClass("disabled")
	return bills, hasNext, nil
}

// parseItem reads one result row. Rows without a measure number are
// dropped, as are rows whose filing date parses to a day other than the
// target (the range query also matches the day before); rows with an
// unparsable filing date are kept.
func (s *Searcher) parseItem(item *goquery.Selection, target time.Time) (bill.Summary, bool) {
	var sum bill.Summary

	heading := strings.TrimSpace(item.Find(s.sel.Heading).First().Text())
	if idx := strings.Index(heading, "Medida:"); idx >= 0 {
		heading = heading[idx+len("Medida:"):]
	}
	sum.Identifier = strings.TrimSpace(heading)
	if sum.Identifier == "" {
		return bill.Summary{}, false
	}

	sum.FilingDate = s.labeledText(item, s.sel.FilingLabel)
	if parsed := bill.ParseEventDate(sum.FilingDate); parsed != nil && !sameDay(*parsed, target) {
		slog.Warn("Skipping bill outside target date",
			"measure", sum.Identifier, "filing_date", sum.FilingDate)
		return bill.Summary{}, false
	}

	sum.Title = s.labeledText(item, s.sel.TitleLabel)
	sum.Status = strings.TrimSpace(item.Find(s.sel.StatusBadge).First().Text())

	authorsEl := item.Find("strong").FilterFunction(func(_ int, strong *goquery.Selection) bool {
		return strings.Contains(strong.Text(), s.sel.AuthorsLabel)
	}).First()
	if authorsEl.Length() > 0 {
		sum.Authors = strings.TrimSpace(authorsEl.Parent().Find("span.text-xs").First().Text())
	}

	// The whole row is wrapped in the link to the bill page.
	if parent := item.Parent(); parent.Is("a[href]") {
		href := strings.TrimSpace(parent.AttrOr("href", ""))
		if normalized, err := bill.NormalizeURL(href, s.origin); err == nil {
			sum.URL = normalized
		}
	}
	if m := measureIDPattern.FindStringSubmatch(sum.URL); m != nil {
		sum.ID = m[1]
	}

	return sum, true
}

// labeledText locates the strong element carrying the label and returns its
// parent's text with the label stripped.
func (s *Searcher) labeledText(item *goquery.Selection, label string) string {
	if label == "" {
		return ""
	}
	el := item.Find("strong").FilterFunction(func(_ int, strong *goquery.Selection) bool {
		return strings.Contains(strong.Text(), label)
	}).First()
	if el.Length() == 0 {
		return ""
	}
	text := strings.Replace(el.Parent().Text(), label, "", 1)
	return strings.TrimSpace(text)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
