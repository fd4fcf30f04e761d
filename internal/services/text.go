package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var keywordFolder = cases.Fold()

// normalizeText composes s to NFC and collapses runs of whitespace, so
// titles and names entered from different keyboards compare and display
// consistently.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// normalizeKeywords splits comma-bearing entries, normalizes each keyword and
// drops case-insensitive duplicates, keeping the first spelling.
func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			k := normalizeText(part)
			if k == "" {
				continue
			}
			key := keywordFolder.String(k)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
