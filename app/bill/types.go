package bill

import (
	"time"
)

type EventKind string

const (
	EventTramite  EventKind = "tramite"
	EventVotacion EventKind = "votacion"
)

type Chamber string

const (
	ChamberSenate Chamber = "Senado"
	ChamberHouse  Chamber = "Cámara"
)

// Record is the normalized representation of one legislative measure page.
// It is built once per pipeline invocation and immutable after Extract
// returns it. JSON field names match the output consumed by the frontend.
type Record struct {
	Identifier     string            `json:"measure_number"`
	Title          string            `json:"title"`
	Status         string            `json:"status"`
	FilingDate     string            `json:"filing_date"`
	Authors        []string          `json:"authors"`
	OriginChamber  string            `json:"origin_chamber"`
	CurrentChamber string            `json:"current_chamber"`
	Topic          string            `json:"topic"`
	Extra          map[string]string `json:"other_data"`
	Events         []Event           `json:"eventos"`
	Errors         []string          `json:"errors,omitempty"`

	// Documents holds page-level document links not attached to any event.
	// They are resolved and fetched like event documents but dropped from
	// the serialized record, matching the historical output shape.
	Documents []DocumentRef `json:"-"`
}

// Valid reports whether the record can be kept. A record without a measure
// number is discarded by the pipeline.
func (r *Record) Valid() bool {
	return r.Identifier != ""
}

// Summary is one row of a filing-date search: enough to identify a measure
// and link to its page, without the full event timeline. JSON field names
// match the search output consumed by the frontend.
type Summary struct {
	ID         string `json:"id,omitempty"`
	Identifier string `json:"measure_number"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	FilingDate string `json:"filing_date,omitempty"`
	Authors    string `json:"authors,omitempty"`
	URL        string `json:"url"`
}

// Event is one timestamped occurrence in a bill's lifecycle, either a
// procedural step (tramite) or a vote (votacion).
type Event struct {
	Kind        EventKind     `json:"tipo"`
	Description string        `json:"descripcion"`
	RawDate     string        `json:"fecha"`
	Commission  string        `json:"comision,omitempty"`
	Documents   []DocumentRef `json:"documents"`

	// Vote events only.
	Chamber Chamber        `json:"camara,omitempty"`
	Votes   map[string]any `json:"votes,omitempty"`

	// Result carries the legacy "resultado" field found in older vote
	// markup. Normalize folds it into Description.
	Result string `json:"resultado,omitempty"`

	// Date is the parsed sort key; nil when RawDate is absent or does not
	// match a supported format. Not serialized; RawDate is the display value.
	Date *time.Time `json:"-"`
}

// DocumentRef points to an externally hosted file associated with a bill or
// event. It is a value: the same normalized URL always derives the same
// cache key, no matter how many events reference it.
type DocumentRef struct {
	URL         string `json:"link_url"`
	Description string `json:"description"`
	Name        string `json:"name,omitempty"`
	CacheKey    string `json:"cache_key,omitempty"`

	Path     string `json:"filepath,omitempty"`
	TextPath string `json:"text_filepath,omitempty"`

	Downloaded    bool   `json:"downloaded"`
	TextExtracted bool   `json:"text_extracted"`
	ExtractedText string `json:"extracted_text,omitempty"`

	DownloadError   string `json:"download_error,omitempty"`
	ExtractionError string `json:"extraction_error,omitempty"`
}
