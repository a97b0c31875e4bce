package bill

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// SkipMarker flags legacy manually-uploaded files that must be excluded from
// extraction and retrieval entirely.
const SkipMarker = "User-Manual"

// NormalizeURL rewrites a document link to its canonical absolute form:
// relative links are resolved against the site origin and the query string
// and fragment are dropped, so renamed-but-identical links dedupe cleanly.
func NormalizeURL(raw string, origin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty document URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse document URL %q: %w", raw, err)
	}

	if !u.IsAbs() {
		base, err := url.Parse(origin)
		if err != nil {
			return "", fmt.Errorf("failed to parse site origin %q: %w", origin, err)
		}
		u = base.ResolveReference(u)
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// CacheKey derives the deterministic on-disk identifier for a normalized
// document URL. Identical URLs always map to identical keys, which is what
// bounds retrieval to at most one fetch per document per run.
func CacheKey(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// Resolver canonicalizes every document reference reachable from a record
// and produces the deduplicated set handed to the retrieval engine.
type Resolver struct {
	origin string
}

func NewResolver(origin string) *Resolver {
	return &Resolver{origin: origin}
}

// Run normalizes the document references inside rec (event documents and the
// page-level list) in place and returns the deduplicated retrieval set in
// first-seen order. References carrying the skip marker are removed from the
// record, not just excluded from the result. The first-seen description wins
// for duplicated URLs.
func (r *Resolver) Run(rec *Record) []DocumentRef {
	seen := make(map[string]bool)
	var unique []DocumentRef

	collect := func(refs []DocumentRef) []DocumentRef {
		kept := refs[:0]
		for _, ref := range refs {
			normalized, err := NormalizeURL(ref.URL, r.origin)
			if err != nil {
				continue
			}
			name := path.Base(normalized)
			if strings.Contains(normalized, SkipMarker) || strings.Contains(name, SkipMarker) {
				continue
			}

			ref.URL = normalized
			ref.Name = name
			ref.CacheKey = CacheKey(normalized)
			kept = append(kept, ref)

			if !seen[ref.CacheKey] {
				seen[ref.CacheKey] = true
				unique = append(unique, ref)
			}
		}
		return kept
	}

	for i := range rec.Events {
		rec.Events[i].Documents = collect(rec.Events[i].Documents)
	}
	rec.Documents = collect(rec.Documents)

	return unique
}

// ApplyResults copies retrieval outcomes back onto every reference in the
// record that shares a cache key with a processed document.
func ApplyResults(rec *Record, results []DocumentRef) {
	byKey := make(map[string]DocumentRef, len(results))
	for _, res := range results {
		byKey[res.CacheKey] = res
	}

	apply := func(refs []DocumentRef) {
		for i, ref := range refs {
			res, ok := byKey[ref.CacheKey]
			if !ok {
				continue
			}
			res.Description = ref.Description
			refs[i] = res
		}
	}

	for i := range rec.Events {
		apply(rec.Events[i].Documents)
	}
	apply(rec.Documents)
}
