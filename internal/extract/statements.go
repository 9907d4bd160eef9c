package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

var (
	speakerLine = regexp.MustCompile(`^\s*(` +
		`(?:The\s+)?(?:Hon|Mr|Mrs|Ms|Dr|Prof|Sen|Madam)\.?\s+[A-Z][\w.'’\-]*(?:\s+[A-Z][\w.'’\-]*){0,4}` +
		`|(?:THE\s+)?(?:TEMPORARY\s+|DEPUTY\s+)?(?:SPEAKER|CHAIRPERSON|CLERK)` +
		`|[A-Z][A-Z.'’\-]+(?:\s+[A-Z][A-Z.'’\-]+){0,4}` +
		`)\s*(?:\([^)]*\))?\s*:\s*(.*)$`)

	notSpeakers = map[string]struct{}{
		"NOTE": {}, "PAGE": {}, "TIME": {}, "DATE": {}, "PRESENT": {}, "ABSENT": {},
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// SpeakerLineExtractor splits page text at "Speaker Name: ..." lines. Text up
// to the next speaker line belongs to the current speaker; text before the
// first speaker line is dropped.
type SpeakerLineExtractor struct {
	bills BillExtractor
}

// NewSpeakerLineExtractor creates a SpeakerLineExtractor that also tags each
// statement with its bill references.
func NewSpeakerLineExtractor() *SpeakerLineExtractor {
	return &SpeakerLineExtractor{bills: NewBillPatternExtractor()}
}

// ExtractStatements returns statements in document order.
func (e *SpeakerLineExtractor) ExtractStatements(pages []Page) ([]hansard.Statement, error) {
	var (
		out     []hansard.Statement
		current *hansard.Statement
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Text = normalize(strings.Join(body, " "))
		if current.Text != "" {
			current.BillReferences = e.bills.ExtractBillReferences(current.Text)
			out = append(out, *current)
		}
		current, body = nil, nil
	}

	for _, page := range pages {
		for _, line := range strings.Split(page.Text, "\n") {
			if m := speakerLine.FindStringSubmatch(line); m != nil && isSpeaker(m[1]) {
				flush()
				current = &hansard.Statement{Speaker: normalize(m[1]), Page: page.Number}
				body = append(body, m[2])
				continue
			}
			if current != nil {
				body = append(body, line)
			}
		}
	}
	flush()
	return out, nil
}

func isSpeaker(name string) bool {
	_, blocked := notSpeakers[strings.ToUpper(strings.TrimSpace(name))]
	return !blocked
}

func normalize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
