package extract

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yml
var defaultSelectorsYML []byte

// Selectors describes where bill data lives in the rendered markup. The
// site's class names are configuration, not code: a markup change on the
// tracker side is fixed by editing the YAML, not the extractor.
type Selectors struct {
	Heading string `yaml:"heading"`

	EventItem          string `yaml:"event_item"`
	EventLabel         string `yaml:"event_label"`
	EventMetaParagraph string `yaml:"event_meta_paragraph"`

	AuthorItem          string `yaml:"author_item"`
	AuthorName          string `yaml:"author_name"`
	AuthorsSectionLabel string `yaml:"authors_section_label"`

	DocDescription     string   `yaml:"doc_description"`
	DocumentExtensions []string `yaml:"document_extensions"`

	DatePrefix       string   `yaml:"date_prefix"`
	CommissionMarker string   `yaml:"commission_marker"`
	VoteMarkers      []string `yaml:"vote_markers"`
	SenateMarker     string   `yaml:"senate_marker"`
	VoteLabels       []string `yaml:"vote_labels"`

	ReadyMarkers []string `yaml:"ready_markers"`

	Search SearchSelectors `yaml:"search"`

	Fields []FieldRule `yaml:"fields"`
}

// SearchSelectors describes the filing-date search results page, whose
// markup differs from the bill detail page.
type SearchSelectors struct {
	ResultItem   string `yaml:"result_item"`
	Heading      string `yaml:"heading"`
	NextPage     string `yaml:"next_page"`
	FilingLabel  string `yaml:"filing_label"`
	AuthorsLabel string `yaml:"authors_label"`
	TitleLabel   string `yaml:"title_label"`
	StatusBadge  string `yaml:"status_badge"`
}

// FieldRule binds one scalar record field to a label matcher and a value
// locator strategy. Rules are evaluated independently: a rule whose label is
// absent from the page leaves its field empty and never affects the others.
type FieldRule struct {
	Field         string `yaml:"field"`
	Label         string `yaml:"label"`
	Strategy      string `yaml:"strategy"`
	ValueSelector string `yaml:"value_selector"`
}

const (
	StrategyNextSpan = "next_span"
)

// DefaultSelectors returns the embedded selector configuration.
func DefaultSelectors() (*Selectors, error) {
	return parseSelectors(defaultSelectorsYML)
}

// LoadSelectors reads a selector configuration file, falling back to the
// embedded defaults when path is empty.
func LoadSelectors(path string) (*Selectors, error) {
	if path == "" {
		return DefaultSelectors()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selectors file: %w", err)
	}
	return parseSelectors(data)
}

func parseSelectors(data []byte) (*Selectors, error) {
	var sel Selectors
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("failed to parse selectors YAML: %w", err)
	}
	if err := sel.validate(); err != nil {
		return nil, fmt.Errorf("invalid selectors: %w", err)
	}
	return &sel, nil
}

func (s *Selectors) validate() error {
	if s.Heading == "" {
		return fmt.Errorf("heading selector is required")
	}
	if s.EventItem == "" {
		return fmt.Errorf("event_item selector is required")
	}
	if s.EventLabel == "" {
		return fmt.Errorf("event_label selector is required")
	}
	for i, rule := range s.Fields {
		if rule.Field == "" {
			return fmt.Errorf("field rule at index %d has no field name", i)
		}
		if rule.Label == "" {
			return fmt.Errorf("field rule %q has no label", rule.Field)
		}
		if rule.Strategy != StrategyNextSpan {
			return fmt.Errorf("field rule %q has unknown strategy %q", rule.Field, rule.Strategy)
		}
	}
	return nil
}
