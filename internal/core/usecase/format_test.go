package usecase

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

func formatFixtures() (*domain.GenerationResult, *domain.ContextBundle) {
	bundle := testBundle("reset from the account settings page", "contact support via chat")
	result := &domain.GenerationResult{
		AnswerText:      "Open account settings and choose reset [1].",
		CitedPassageIDs: []string{"p1"},
		Latency:         120 * time.Millisecond,
	}
	return result, bundle
}

func TestFormatStructuredIncludesCitations(t *testing.T) {
	result, bundle := formatFixtures()
	formatted, err := Format(result, bundle, FormatStructured)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if formatted.ContentType != "application/json" {
		t.Fatalf("unexpected content type %s", formatted.ContentType)
	}

	var structured StructuredAnswer
	if err := json.Unmarshal(formatted.Body, &structured); err != nil {
		t.Fatalf("unmarshal structured answer: %v", err)
	}
	if structured.Answer == "" {
		t.Fatalf("expected answer text")
	}
	if len(structured.Citations) != 1 || structured.Citations[0].PassageID != "p1" {
		t.Fatalf("unexpected citations: %v", structured.Citations)
	}
}

func TestFormatMarkupRendersSources(t *testing.T) {
	result, bundle := formatFixtures()
	formatted, err := Format(result, bundle, FormatMarkup)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	body := string(formatted.Body)
	if !strings.Contains(body, result.AnswerText) {
		t.Fatalf("markup missing answer text:\n%s", body)
	}
	if !strings.Contains(body, "**Sources**") {
		t.Fatalf("markup missing sources section:\n%s", body)
	}
}

func TestFormatMarksNoContentRuns(t *testing.T) {
	result := &domain.GenerationResult{}
	bundle := &domain.ContextBundle{}

	formatted, err := Format(result, bundle, FormatStructured)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	var structured StructuredAnswer
	if err := json.Unmarshal(formatted.Body, &structured); err != nil {
		t.Fatalf("unmarshal structured answer: %v", err)
	}
	if !structured.NoContent {
		t.Fatalf("expected explicit no-content marker, got %+v", structured)
	}

	markup, err := Format(result, bundle, FormatMarkup)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(string(markup.Body), "No relevant content") {
		t.Fatalf("markup missing no-content message:\n%s", markup.Body)
	}

	// A real answer never carries the marker.
	result, fullBundle := formatFixtures()
	formatted, err = Format(result, fullBundle, FormatStructured)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	structured = StructuredAnswer{}
	if err := json.Unmarshal(formatted.Body, &structured); err != nil {
		t.Fatalf("unmarshal structured answer: %v", err)
	}
	if structured.NoContent {
		t.Fatalf("no-content marker set on an answered run")
	}
}

func TestFormatRejectsUnknownTarget(t *testing.T) {
	result, bundle := formatFixtures()
	_, err := Format(result, bundle, FormatTarget("xml"))
	if !domain.IsKind(err, domain.ErrInvalidFormatTarget) {
		t.Fatalf("expected ErrInvalidFormatTarget, got %v", err)
	}
}

func TestFormatDropsCitationsMissingFromBundle(t *testing.T) {
	result, bundle := formatFixtures()
	result.CitedPassageIDs = []string{"p1", "ghost"}

	formatted, err := Format(result, bundle, FormatStructured)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	var structured StructuredAnswer
	if err := json.Unmarshal(formatted.Body, &structured); err != nil {
		t.Fatalf("unmarshal structured answer: %v", err)
	}
	if len(structured.Citations) != 1 {
		t.Fatalf("expected ghost citation dropped, got %v", structured.Citations)
	}
}
