package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

type FormatTarget string

const (
	FormatStructured FormatTarget = "structured"
	FormatMarkup     FormatTarget = "markup"
)

// Citation pairs a cited passage with enough metadata to display a source.
type Citation struct {
	PassageID  string `json:"passage_id"`
	DocumentID string `json:"document_id"`
	Excerpt    string `json:"excerpt"`
}

// StructuredAnswer is the transport-agnostic result object. NoContent marks
// runs that finished without any retrieved passages, so an empty answer is
// never ambiguous in the body itself.
type StructuredAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Truncated bool       `json:"truncated"`
	NoContent bool       `json:"no_content,omitempty"`
	LatencyMS float64    `json:"latency_ms"`
}

const noContentMessage = "No relevant content was found for this question."

// FormattedAnswer is the rendered output of one format target.
type FormattedAnswer struct {
	ContentType string
	Body        []byte
}

// Format is pure: it converts a generation result plus the cited passage
// set into the requested rendering. The only failure path is an unknown
// target.
func Format(result *domain.GenerationResult, bundle *domain.ContextBundle, target FormatTarget) (*FormattedAnswer, error) {
	switch target {
	case FormatStructured:
		body, err := json.Marshal(buildStructured(result, bundle))
		if err != nil {
			return nil, fmt.Errorf("marshal structured answer: %w", err)
		}
		return &FormattedAnswer{ContentType: "application/json", Body: body}, nil
	case FormatMarkup:
		return &FormattedAnswer{
			ContentType: "text/markdown; charset=utf-8",
			Body:        []byte(renderMarkup(result, bundle)),
		}, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidFormatTarget, "format", fmt.Errorf("unknown target %q", target))
	}
}

func buildStructured(result *domain.GenerationResult, bundle *domain.ContextBundle) StructuredAnswer {
	return StructuredAnswer{
		Answer:    result.AnswerText,
		Citations: buildCitations(result, bundle),
		Truncated: result.Truncated,
		NoContent: isNoContent(result, bundle),
		LatencyMS: float64(result.Latency.Microseconds()) / 1000.0,
	}
}

func isNoContent(result *domain.GenerationResult, bundle *domain.ContextBundle) bool {
	return result.AnswerText == "" && len(bundle.Passages) == 0
}

func buildCitations(result *domain.GenerationResult, bundle *domain.ContextBundle) []Citation {
	byID := make(map[string]domain.PassageRef, len(bundle.Passages))
	for _, fp := range bundle.Passages {
		byID[fp.Passage.ID] = fp.Passage
	}

	citations := make([]Citation, 0, len(result.CitedPassageIDs))
	for _, id := range result.CitedPassageIDs {
		ref, ok := byID[id]
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			PassageID:  ref.ID,
			DocumentID: ref.DocumentID,
			Excerpt:    excerpt(ref.Text, 160),
		})
	}
	return citations
}

func renderMarkup(result *domain.GenerationResult, bundle *domain.ContextBundle) string {
	if isNoContent(result, bundle) {
		return noContentMessage + "\n"
	}

	var b strings.Builder
	b.WriteString(result.AnswerText)
	b.WriteString("\n")

	citations := buildCitations(result, bundle)
	if len(citations) > 0 {
		b.WriteString("\n**Sources**\n\n")
		for i, c := range citations {
			fmt.Fprintf(&b, "%d. `%s`: %s\n", i+1, c.DocumentID, c.Excerpt)
		}
	}
	return b.String()
}

func excerpt(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxChars {
		return text
	}
	cut := strings.LastIndexByte(text[:maxChars], ' ')
	if cut <= 0 {
		cut = maxChars
	}
	return text[:cut] + "…"
}
