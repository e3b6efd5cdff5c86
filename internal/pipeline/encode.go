package pipeline

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/rag"
)

const (
	// maxCitationLength caps citation content in the complete event.
	// Kept long to preserve markdown in the common case.
	maxCitationLength        = 10000
	citationTruncationNotice = "...\n\n*Content truncated due to length*"

	// fallbackCitationLength is the harder cap applied when the full
	// event cannot be encoded.
	fallbackCitationLength   = 1000
	fallbackTruncationNotice = "... (truncated)"
)

// encodeFailure is the absolute last resort line when nothing else can be
// marshaled.
const encodeFailure = `{"type":"error","message":"Failed to encode response"}`

// buildCitations converts retrieved documents into the client-facing
// citation array, sanitized and capped.
func buildCitations(docs []casestudy.ScoredDocument) []Citation {
	citations := make([]Citation, 0, len(docs))
	for _, d := range docs {
		content := rag.Sanitize(d.Content)
		if len(content) > maxCitationLength {
			content = cutAtRune(content, maxCitationLength) + citationTruncationNotice
		}
		citations = append(citations, Citation{
			CompanyName: rag.Sanitize(d.CompanyName),
			Content:     content,
			Link:        rag.Sanitize(d.Link),
		})
	}
	return citations
}

// cutAtRune truncates s to at most max bytes without splitting a rune.
func cutAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// marshalComplete encodes the terminal complete event, degrading in
// stages when encoding fails: full citations, then hard-capped citations,
// then no citations at all. The answer itself survives every stage.
func (p *Pipeline) marshalComplete(ev CompleteEvent) []byte {
	data, err := json.Marshal(ev)
	if err == nil {
		return data
	}
	p.logger.Error("encoding complete response, degrading citations", "error", err)

	simplified := ev
	simplified.CitationArray = make([]Citation, len(ev.CitationArray))
	for i, c := range ev.CitationArray {
		simplified.CitationArray[i] = Citation{
			CompanyName: c.CompanyName,
			Content:     cutAtRune(c.Content, fallbackCitationLength) + fallbackTruncationNotice,
			Link:        c.Link,
		}
	}
	if data, err = json.Marshal(simplified); err == nil {
		return data
	}
	p.logger.Error("encoding simplified response, dropping citations", "error", err)

	minimal := ev
	minimal.CitationArray = []Citation{}
	if data, err = json.Marshal(minimal); err == nil {
		return data
	}
	p.logger.Error("encoding minimal response", "error", err)
	return []byte(encodeFailure)
}
