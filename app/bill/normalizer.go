package bill

import (
	"sort"
)

// Merge combines procedural steps and vote events into a single slice in
// document order (steps first, then votes, each in extraction order),
// tagging kinds, folding the legacy "resultado" field into "descripcion"
// and parsing dates. Document resolution runs against this order, so the
// first-seen description for a duplicated URL is the one that appears first
// on the page. Sorting into the served timeline is a separate step.
func Merge(steps []Event, votes []Event) []Event {
	events := make([]Event, 0, len(steps)+len(votes))

	for _, e := range steps {
		e.Kind = EventTramite
		events = append(events, normalizeEvent(e))
	}
	for _, e := range votes {
		e.Kind = EventVotacion
		events = append(events, normalizeEvent(e))
	}

	return events
}

// SortEvents orders events by parsed date descending, undated events last.
// The sort is stable, so ties (equal dates, or two undated events) keep
// their input order and sorting twice is a no-op.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Date, events[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// normalizeEvent folds the legacy "resultado" field into "descripcion" and
// fills in the parsed date when the extractor has not done so already.
func normalizeEvent(e Event) Event {
	if e.Result != "" {
		e.Description = e.Result
		e.Result = ""
	}
	if e.Date == nil {
		e.Date = ParseEventDate(e.RawDate)
	}
	return e
}
