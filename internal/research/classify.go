// Package research runs long-form deep-research tasks per competitor and
// orchestrates batches of them: fan-out with per-entity exclusivity, fan-in
// aggregation, and a single retrieval index rebuild per batch.
package research

import (
	"strings"

	"github.com/google/uuid"
)

// minContentLen is the shortest raw response accepted as a real report.
// Anything at or below this is treated as a failed run.
const minContentLen = 50

// Kind tags a research outcome.
type Kind int

const (
	// Completed means usable report content was produced.
	Completed Kind = iota
	// Warning means the model flagged its own output but content is usable.
	Warning
	// Failed means no usable content; the persisted Markdown is a diagnostic.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Warning:
		return "warning"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Classification is the typed result of inspecting raw model output.
// Content is always non-empty: report text for Completed and Warning, a
// Markdown diagnostic for Failed.
type Classification struct {
	Kind    Kind
	Content string
	Reason  string
}

// Outcome reports one research run to the orchestrator. Runs never surface
// errors directly; every exit path folds into an Outcome.
type Outcome struct {
	CompetitorID uuid.UUID
	Kind         Kind
	Reason       string
}

// Classify inspects raw model output and produces a typed result.
//
// A "## Error" marker means the model itself reported failure; the marker
// text is preserved verbatim as the diagnostic. A "## Warning" marker keeps
// the content but flags it. Short or empty output fails with a generated
// diagnostic. Output that starts with prose but contains a heading later is
// trimmed to the first heading.
func Classify(raw string) Classification {
	text := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(text, "## Error"):
		return Classification{Kind: Failed, Content: text, Reason: "model reported an error"}
	case strings.HasPrefix(text, "## Warning"):
		return Classification{Kind: Warning, Content: text}
	}
	if len(text) <= minContentLen {
		return Classification{
			Kind:    Failed,
			Content: "## Error\nReceived invalid or insufficient content from the research model.",
			Reason:  "insufficient content",
		}
	}
	if !strings.HasPrefix(text, "#") {
		if idx := firstHeading(text); idx > 0 {
			text = text[idx:]
		}
	}
	return Classification{Kind: Completed, Content: text}
}

// firstHeading returns the byte offset of the first Markdown heading line,
// or -1 if none exists.
func firstHeading(text string) int {
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			return offset
		}
		offset += len(line)
	}
	return -1
}
