package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"billtracker/app/bill"
)

// ErrPageUnavailable marks a wholesale extraction failure: the rendered page
// is too small to be a bill page or carries the site's access-denied banner.
// Individual missing fields never produce this; they degrade to empty values.
var ErrPageUnavailable = errors.New("page unavailable or access denied")

const (
	minContentLength   = 1000
	accessDeniedMarker = "Access Denied"

	DefaultInitialBatch = 15
	DefaultSoftBudget   = 1 * time.Second
	DefaultHardCeiling  = 1800 * time.Millisecond
)

// Mode selects between processing every event on the page and the
// time-boxed variant that trades completeness for a bounded wall-clock
// budget. The time-boxed variant always processes an initial batch, then
// keeps going only while the soft budget holds, checking the hard ceiling
// between events (never mid-event), so its output is a strict prefix of the
// full result.
type Mode struct {
	TimeBoxed    bool
	InitialBatch int
	SoftBudget   time.Duration
	HardCeiling  time.Duration
}

func FullMode() Mode {
	return Mode{}
}

func TimeBoxedMode() Mode {
	return Mode{
		TimeBoxed:    true,
		InitialBatch: DefaultInitialBatch,
		SoftBudget:   DefaultSoftBudget,
		HardCeiling:  DefaultHardCeiling,
	}
}

// Extraction is the raw result of one extractor pass: the record's scalar
// fields plus the two event classes in document order. Merging and sorting
// them into the final timeline is the normalizer's job.
type Extraction struct {
	Record *bill.Record
	Steps  []bill.Event
	Votes  []bill.Event

	// Truncated is set when time-boxed mode abandoned remaining events.
	Truncated bool
}

// Extractor turns rendered bill-page markup into an Extraction. It is a
// pure transform: no network, no filesystem, no shared state.
type Extractor struct {
	sel *Selectors
	now func() time.Time
}

func NewExtractor(sel *Selectors) *Extractor {
	return &Extractor{sel: sel, now: time.Now}
}

func (x *Extractor) Run(html string, mode Mode) (*Extraction, error) {
	if len(html) < minContentLength || strings.Contains(html, accessDeniedMarker) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPageUnavailable, len(html))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	rec := &bill.Record{
		Authors: []string{},
		Extra:   map[string]string{},
		Events:  []bill.Event{},
	}

	rec.Identifier = x.extractIdentifier(doc)
	x.applyFieldRules(doc, rec)
	rec.Authors = x.extractAuthors(doc)

	result := &Extraction{Record: rec}
	x.extractEvents(doc, mode, result)
	rec.Documents = x.extractPageDocuments(doc, result)

	slog.Debug("Extraction completed",
		"measure", rec.Identifier,
		"steps", len(result.Steps),
		"votes", len(result.Votes),
		"page_documents", len(rec.Documents),
		"truncated", result.Truncated)

	return result, nil
}

func (x *Extractor) extractIdentifier(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find(x.sel.Heading).First().Text())
	if idx := strings.Index(text, "Medida:"); idx >= 0 {
		text = text[idx+len("Medida:"):]
	}
	return strings.TrimSpace(text)
}

// applyFieldRules evaluates every configured field rule independently. A
// rule whose label is absent leaves its field empty; no rule can fail the
// record.
func (x *Extractor) applyFieldRules(doc *goquery.Document, rec *bill.Record) {
	spans := doc.Find("span")

	for _, rule := range x.sel.Fields {
		value := evalNextSpanRule(spans, rule)
		if value == "" {
			continue
		}

		switch rule.Field {
		case "filing_date":
			rec.FilingDate = value
		case "title":
			rec.Title = value
		case "status":
			rec.Status = value
		case "topic":
			rec.Topic = value
		case "origin_chamber":
			rec.OriginChamber = value
		case "current_chamber":
			rec.CurrentChamber = value
		default:
			rec.Extra[rule.Field] = value
		}
	}
}

// evalNextSpanRule locates the first span matching the rule's label, then
// reads the nearest subsequent span matching the value selector.
func evalNextSpanRule(spans *goquery.Selection, rule FieldRule) string {
	labelSeen := false
	var value string

	spans.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if !labelSeen {
			if containsLabel(text, rule.Label) {
				labelSeen = true
			}
			return true
		}
		if rule.ValueSelector != "" && !s.Is(rule.ValueSelector) {
			return true
		}
		if text == "" || containsLabel(text, rule.Label) {
			return true
		}
		value = text
		return false
	})

	return value
}

func (x *Extractor) extractAuthors(doc *goquery.Document) []string {
	authors := []string{}

	doc.Find(x.sel.AuthorItem).Each(func(_ int, item *goquery.Selection) {
		name := strings.TrimSpace(item.Find(x.sel.AuthorName).First().Text())
		if name != "" {
			authors = append(authors, name)
		}
	})
	if len(authors) > 0 {
		return authors
	}

	// Older pages have no author list items, just a section header followed
	// by loose spans.
	section := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == x.sel.AuthorsSectionLabel
	}).First()
	if section.Length() == 0 {
		return authors
	}

	section.Next().Find("span").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		folded := fold(text)
		if strings.Contains(folded, "autor") || strings.Contains(folded, "fecha") {
			return
		}
		authors = append(authors, text)
	})

	return authors
}

func (x *Extractor) extractEvents(doc *goquery.Document, mode Mode, result *Extraction) {
	items := doc.Find(x.sel.EventItem)
	total := items.Length()
	start := x.now()

	for i := 0; i < total; i++ {
		if mode.TimeBoxed && i >= mode.InitialBatch {
			elapsed := x.now().Sub(start)
			if i == mode.InitialBatch && elapsed >= mode.SoftBudget {
				slog.Debug("Soft budget spent after initial batch", "processed", i, "total", total)
				result.Truncated = true
				return
			}
			if elapsed > mode.HardCeiling {
				slog.Debug("Hard ceiling reached, abandoning remaining events", "processed", i, "total", total)
				result.Truncated = true
				return
			}
		}

		event, isVote, ok := x.extractEvent(items.Eq(i))
		if !ok {
			continue
		}
		if isVote {
			result.Votes = append(result.Votes, event)
		} else {
			result.Steps = append(result.Steps, event)
		}
	}
}

func (x *Extractor) extractEvent(item *goquery.Selection) (bill.Event, bool, bool) {
	label := strings.TrimSpace(item.Find(x.sel.EventLabel).First().Text())
	if label == "" {
		return bill.Event{}, false, false
	}

	event := bill.Event{
		Description: label,
		Documents:   []bill.DocumentRef{},
	}

	event.RawDate = x.extractEventDate(item)
	event.Date = bill.ParseEventDate(event.RawDate)
	event.Commission = x.extractCommission(item)
	event.Documents = x.extractEventDocuments(item)

	if !containsAnyLabel(label, x.sel.VoteMarkers) {
		return event, false, true
	}

	event.Votes = x.extractVotes(item)
	if containsLabel(label, x.sel.SenateMarker) {
		event.Chamber = bill.ChamberSenate
	} else {
		event.Chamber = bill.ChamberHouse
	}
	return event, true, true
}

func (x *Extractor) extractEventDate(item *goquery.Selection) string {
	dateSpan := item.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), x.sel.DatePrefix)
	}).First()
	if dateSpan.Length() == 0 {
		return ""
	}

	text := dateSpan.Parent().Text()
	text = strings.Replace(text, x.sel.DatePrefix, "", 1)
	return strings.TrimSpace(text)
}

// extractCommission reads the commission name from the event's metadata
// paragraphs, skipping the date paragraph and any paragraph carrying
// document links.
func (x *Extractor) extractCommission(item *goquery.Selection) string {
	var commission string

	item.Find(x.sel.EventMetaParagraph).EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if p.Find("a").Length() > 0 {
			return true
		}
		hasDate := p.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), x.sel.DatePrefix)
		}).Length() > 0
		if hasDate {
			return true
		}

		text := strings.TrimSpace(p.Text())
		if text != "" && containsLabel(text, x.sel.CommissionMarker) {
			commission = text
			return false
		}
		return true
	})

	return commission
}

func (x *Extractor) extractEventDocuments(item *goquery.Selection) []bill.DocumentRef {
	docs := []bill.DocumentRef{}

	item.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" || strings.Contains(href, bill.SkipMarker) {
			return
		}

		desc := strings.TrimSpace(link.Find(x.sel.DocDescription).First().Text())
		if desc == "" {
			desc = "Document"
		}

		docs = append(docs, bill.DocumentRef{URL: href, Description: desc})
	})

	return docs
}

func (x *Extractor) extractVotes(item *goquery.Selection) map[string]any {
	votes := map[string]any{}

	for _, voteLabel := range x.sel.VoteLabels {
		span := item.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return containsLabel(s.Text(), voteLabel)
		}).First()
		if span.Length() == 0 {
			continue
		}

		text := span.Parent().Text()
		idx := strings.Index(text, voteLabel)
		if idx < 0 {
			text = span.Text()
			idx = strings.Index(text, voteLabel)
			if idx < 0 {
				continue
			}
		}

		rest := strings.TrimSpace(strings.TrimLeft(text[idx+len(voteLabel):], ": \t"))
		if rest == "" {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil {
			votes[voteLabel] = n
		} else {
			votes[voteLabel] = rest
		}
	}

	if len(votes) == 0 {
		return nil
	}
	return votes
}

// extractPageDocuments sweeps the whole page for document links that no
// event claimed, so attachments outside the timeline are still retrieved.
func (x *Extractor) extractPageDocuments(doc *goquery.Document, result *Extraction) []bill.DocumentRef {
	claimed := make(map[string]bool)
	for _, e := range result.Steps {
		for _, d := range e.Documents {
			claimed[d.URL] = true
		}
	}
	for _, e := range result.Votes {
		for _, d := range e.Documents {
			claimed[d.URL] = true
		}
	}

	docs := []bill.DocumentRef{}
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" || claimed[href] || strings.Contains(href, bill.SkipMarker) {
			return
		}
		if !x.hasDocumentExtension(href) {
			return
		}
		claimed[href] = true

		desc := strings.TrimSpace(link.Find(x.sel.DocDescription).First().Text())
		if desc == "" {
			desc = strings.TrimSpace(link.Text())
		}
		if desc == "" {
			desc = "Document"
		}

		docs = append(docs, bill.DocumentRef{URL: href, Description: desc})
	})

	return docs
}

func (x *Extractor) hasDocumentExtension(href string) bool {
	if idx := strings.IndexAny(href, "?#"); idx >= 0 {
		href = href[:idx]
	}
	href = strings.ToLower(href)
	for _, ext := range x.sel.DocumentExtensions {
		if strings.HasSuffix(href, ext) {
			return true
		}
	}
	return false
}
