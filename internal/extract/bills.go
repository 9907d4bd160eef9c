package extract

import (
	"regexp"
	"sort"
)

var (
	namedBill = regexp.MustCompile(`[A-Z][\w'’\-]*(?:\s+(?:[A-Z][\w'’\-()]*|of|and|for|&))*\s+(?:\(Amendment\)\s+)?Bill\b(?:,?\s+\d{4})?`)
	numbered  = regexp.MustCompile(`\bBill\s+No\.?\s*\d+(?:\s+of\s+\d{4})?`)
)

// BillPatternExtractor finds named ("The Finance Bill, 2025") and numbered
// ("Bill No. 12 of 2024") references.
type BillPatternExtractor struct{}

// NewBillPatternExtractor creates a BillPatternExtractor.
func NewBillPatternExtractor() *BillPatternExtractor {
	return &BillPatternExtractor{}
}

// ExtractBillReferences returns distinct references in order of first
// appearance.
func (BillPatternExtractor) ExtractBillReferences(text string) []string {
	type hit struct {
		pos int
		ref string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{namedBill, numbered} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{pos: loc[0], ref: normalize(text[loc[0]:loc[1]])})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, dup := seen[h.ref]; dup {
			continue
		}
		seen[h.ref] = struct{}{}
		out = append(out, h.ref)
	}
	return out
}
