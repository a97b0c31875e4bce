package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// The tracker mixes accented and unaccented spellings of its Spanish labels
// ("Título" vs "Titulo"), so label matching strips combining marks before
// comparing.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func containsLabel(text, label string) bool {
	if label == "" {
		return false
	}
	return strings.Contains(fold(text), fold(label))
}

func containsAnyLabel(text string, labels []string) bool {
	for _, label := range labels {
		if containsLabel(text, label) {
			return true
		}
	}
	return false
}
